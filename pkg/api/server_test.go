package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spf13/afero"

	"github.com/medscribe/medscribe/pkg/admission"
	"github.com/medscribe/medscribe/pkg/audio"
	"github.com/medscribe/medscribe/pkg/cmdrun"
	"github.com/medscribe/medscribe/pkg/engine"
	"github.com/medscribe/medscribe/pkg/logging"
	"github.com/medscribe/medscribe/pkg/notify"
	"github.com/medscribe/medscribe/pkg/pipeline"
	"github.com/medscribe/medscribe/pkg/store"
)

// stubEngine returns a fixed transcript.
type stubEngine struct{ transcript string }

func (s *stubEngine) Transcribe(_ context.Context, _ string) (string, error) {
	return s.transcript, nil
}
func (s *stubEngine) Reset() {}

// stubRunner never needs to convert: tests upload canonical WAV names.
type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ string, _ []string, _ string) (cmdrun.Result, error) {
	return cmdrun.Result{Stdout: "1.0"}, nil
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/work", 0o755))
	logger := logging.NewTestLogger()

	jobStore, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { jobStore.Close() })

	pool, err := engine.NewPool(2, func(int) (engine.Transcriber, error) {
		return &stubEngine{transcript: "El paciente refiere dolor."}, nil
	})
	require.NoError(t, err)

	normalizer := audio.NewNormalizer(fs, stubRunner{}, "ffmpeg", "ffprobe", logger)
	notifier := notify.NewRegistry(logger)

	dispatcher := pipeline.NewDispatcher(fs, pipeline.Config{WorkDir: "/work", Workers: 2},
		jobStore, admission.NewGate(2), pool, normalizer, notifier, logger)
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	return NewServer("127.0.0.1:0", dispatcher, jobStore, notifier, logger), jobStore
}

func multipartAudio(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = h.Write([]byte("RIFF\x24\x00\x00\x00WAVEfmt "))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doRequest(s *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestStatusUnknownEncounterIsNotFoundSentinel(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/transcribe/42/status", nil, "")

	require.Equal(t, http.StatusOK, rec.Code, "absence is not an HTTP error")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.StatusNotFound, resp["status"])
	assert.EqualValues(t, 0, resp["transcription_id"])
	assert.Equal(t, "", resp["content"])
}

func TestSubmitQueuesAndCompletes(t *testing.T) {
	t.Parallel()

	s, jobStore := newTestServer(t)

	body, contentType := multipartAudio(t, "file", "visita.wav")
	rec := doRequest(s, http.MethodPost, "/api/transcribe/42", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, store.StatusProcessing, receipt["status"])
	assert.EqualValues(t, 42, receipt["encounter_id"])

	require.Eventually(t, func() bool {
		r, err := jobStore.GetByEncounter(42)
		require.NoError(t, err)
		return r.Status == store.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	statusRec := doRequest(s, http.MethodGet, "/api/transcribe/42/status", nil, "")
	assert.Contains(t, statusRec.Body.String(), "El paciente refiere dolor.")
}

func TestSubmitWithoutFileIsRejected(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.Close())

	rec := doRequest(s, http.MethodPost, "/api/transcribe/42", &buf, w.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file uploaded")
}

func TestSubmitRejectsNonNumericEncounter(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	body, contentType := multipartAudio(t, "file", "visita.wav")
	rec := doRequest(s, http.MethodPost, "/api/transcribe/abc", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndDeleteTranscriptions(t *testing.T) {
	t.Parallel()

	s, jobStore := newTestServer(t)

	rec := doRequest(s, http.MethodDelete, "/api/transcriptions/7", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id, err := jobStore.EnsureProcessing(7)
	require.NoError(t, err)
	require.NoError(t, jobStore.MarkCompleted(id, "texto"))

	listRec := doRequest(s, http.MethodGet, "/api/transcriptions/7", nil, "")
	require.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "texto")

	delRec := doRequest(s, http.MethodDelete, "/api/transcriptions/7", nil, "")
	require.Equal(t, http.StatusOK, delRec.Code)
	assert.Contains(t, delRec.Body.String(), "Deleted 1")
}

func TestWebsocketReceivesCompletion(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/transcription/42"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler registers the subscriber just after the handshake; give it
	// a beat before work is queued so the completion event cannot race past.
	time.Sleep(50 * time.Millisecond)

	body, contentType := multipartAudio(t, "file", "visita.wav")
	resp, err := http.Post(ts.URL+"/api/transcribe/42", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event map[string]string
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, store.StatusCompleted, event["status"])
	assert.Equal(t, "El paciente refiere dolor.", event["content"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
