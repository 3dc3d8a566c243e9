// Package pipeline accepts transcription requests and runs them to completion
// on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/medscribe/medscribe/pkg/admission"
	"github.com/medscribe/medscribe/pkg/audio"
	"github.com/medscribe/medscribe/pkg/engine"
	"github.com/medscribe/medscribe/pkg/logging"
	"github.com/medscribe/medscribe/pkg/notify"
	"github.com/medscribe/medscribe/pkg/store"
)

// ErrValidation marks upload rejections that surface synchronously to the
// submitter before any pipeline resource is consumed. Boundary code maps it
// to a 4xx response.
var ErrValidation = errors.New("invalid upload")

// ErrStopped is returned by Submit after the dispatcher has been stopped.
var ErrStopped = errors.New("dispatcher stopped")

// ErrBusy is returned by Submit when the job queue is full. Boundary code maps
// it to a retryable 5xx response.
var ErrBusy = errors.New("transcription queue full")

const defaultQueueDepth = 32

// Receipt is the immediate acknowledgment returned by Submit. The submitter
// never waits for transcription; failures are only observable through the
// status query or the notification channel.
type Receipt struct {
	Status      string `json:"status"`
	EncounterID int64  `json:"encounter_id"`
	Detail      string `json:"detail"`
}

type job struct {
	encounterID int64
	rawPath     string
}

// Config carries dispatcher tunables from the composition root.
type Config struct {
	WorkDir    string
	Workers    int
	QueueDepth int
}

// Dispatcher validates submissions, stores the upload, and schedules job
// runners on a fixed-size worker pool. All collaborators are injected; the
// dispatcher owns no global state.
type Dispatcher struct {
	fs         afero.Fs
	cfg        Config
	store      *store.Store
	gate       *admission.Gate
	pool       *engine.Pool
	normalizer *audio.Normalizer
	notifier   *notify.Registry
	logger     *logging.Logger

	jobs  chan job
	wg    sync.WaitGroup
	locks *keyLocks

	mu      sync.Mutex
	stopped bool
}

// NewDispatcher wires a dispatcher from its collaborators.
func NewDispatcher(
	fs afero.Fs,
	cfg Config,
	jobStore *store.Store,
	gate *admission.Gate,
	pool *engine.Pool,
	normalizer *audio.Normalizer,
	notifier *notify.Registry,
	logger *logging.Logger,
) *Dispatcher {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.Workers < gate.Capacity() {
		// Fewer workers than admission slots would leave capacity idle.
		cfg.Workers = gate.Capacity()
	}

	return &Dispatcher{
		fs:         fs,
		cfg:        cfg,
		store:      jobStore,
		gate:       gate,
		pool:       pool,
		normalizer: normalizer,
		notifier:   notifier,
		logger:     logger,
		jobs:       make(chan job, cfg.QueueDepth),
		locks:      newKeyLocks(),
	}
}

// Start launches the worker pool. ctx bounds the lifetime of queued waits;
// cancel it only on process shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func(workerID int) {
			defer d.wg.Done()
			for j := range d.jobs {
				d.runJob(ctx, j)
			}
			d.logger.Debug("worker drained", "worker", workerID)
		}(i)
	}
	d.logger.Info("dispatcher started",
		"workers", d.cfg.Workers,
		"admissionCapacity", d.gate.Capacity(),
		"engines", d.pool.Size())
}

// Stop refuses further submissions, drains the queue, and waits for running
// jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Submit validates the upload, writes it to the work directory, and enqueues
// a job runner. It returns as soon as the job is queued; transcription
// latency never reaches the caller.
func (d *Dispatcher) Submit(encounterID int64, data []byte, filename, contentType string) (Receipt, error) {
	if len(data) == 0 {
		return Receipt{}, fmt.Errorf("%w: uploaded file is empty", ErrValidation)
	}
	if !isAudio(data, contentType) {
		return Receipt{}, fmt.Errorf("%w: file must be an audio file", ErrValidation)
	}

	rawPath := filepath.Join(d.cfg.WorkDir, audio.UniqueName(filename))
	if err := afero.WriteFile(d.fs, rawPath, data, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("failed to store upload: %w", err)
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.removeQuietly(rawPath)
		return Receipt{}, ErrStopped
	}
	// Non-blocking send: the mutex is never held across a queue wait, so a
	// full queue backs up submitters, not Stop.
	select {
	case d.jobs <- job{encounterID: encounterID, rawPath: rawPath}:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.removeQuietly(rawPath)
		return Receipt{}, ErrBusy
	}

	d.logger.Info("transcription queued", "encounterID", encounterID, "file", rawPath, "bytes", len(data))
	return Receipt{
		Status:      store.StatusProcessing,
		EncounterID: encounterID,
		Detail:      "Transcription queued",
	}, nil
}

// isAudio accepts uploads that declare an audio content type. The sniff is a
// fallback for clients that declare nothing useful, never an override: a
// declared non-audio type is rejected without looking at the bytes.
func isAudio(data []byte, contentType string) bool {
	if strings.HasPrefix(contentType, "audio/") {
		return true
	}
	if contentType != "" && contentType != "application/octet-stream" {
		return false
	}
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "audio/") {
			return true
		}
	}
	return false
}

func (d *Dispatcher) removeQuietly(path string) {
	if path == "" {
		return
	}
	if exists, _ := afero.Exists(d.fs, path); !exists {
		return
	}
	if err := d.fs.Remove(path); err != nil {
		d.logger.Warn("failed to remove temporary file", "path", path, "error", err)
	}
}
