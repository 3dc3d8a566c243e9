package engine

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/medscribe/medscribe/pkg/cmdrun"
	"github.com/medscribe/medscribe/pkg/logging"
)

// WhisperEngine invokes a local whisper-cpp style binary as a subprocess.
// Decoding runs at full precision: accuracy over speed for clinical audio.
type WhisperEngine struct {
	cfg    Config
	fs     afero.Fs
	runner cmdrun.Runner
	logger *logging.Logger
}

// NewWhisperEngine verifies the model weights exist and returns a ready
// engine. Verification happens here so a broken install fails at pool
// construction instead of on the first job.
func NewWhisperEngine(cfg Config, fs afero.Fs, runner cmdrun.Runner, logger *logging.Logger) (*WhisperEngine, error) {
	if cfg.ModelPath == "" {
		return nil, &ModelLoadError{Detail: "no model path configured"}
	}

	exists, err := afero.Exists(fs, cfg.ModelPath)
	if err != nil {
		return nil, &ModelLoadError{Detail: cfg.ModelPath, Err: err}
	}
	if !exists {
		return nil, &ModelLoadError{Detail: "model file not found: " + cfg.ModelPath}
	}

	logger.Info("transcription model loaded", "model", cfg.ModelPath, "language", cfg.Language)
	return &WhisperEngine{cfg: cfg, fs: fs, runner: runner, logger: logger}, nil
}

// Transcribe runs the engine binary against wavPath and reads the transcript
// it writes alongside the input file.
func (w *WhisperEngine) Transcribe(ctx context.Context, wavPath string) (string, error) {
	outBase := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))

	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", wavPath,
		"-otxt",
		"-of", outBase,
		"-np",
	}
	if w.cfg.Language != "" {
		args = append(args, "-l", w.cfg.Language)
	}
	if w.cfg.Prompt != "" {
		args = append(args, "--prompt", w.cfg.Prompt)
	}

	res, err := w.runner.Run(ctx, w.cfg.Binary, args, "")
	if err != nil || res.ExitCode != 0 {
		return "", &TranscriptionError{WavPath: wavPath, Stderr: res.Stderr, Err: err}
	}

	transcriptPath := outBase + ".txt"
	content, err := afero.ReadFile(w.fs, transcriptPath)
	if err != nil {
		return "", &TranscriptionError{WavPath: wavPath, Stderr: "engine produced no transcript file", Err: err}
	}

	// The transcript file has served its purpose; leaving it behind would
	// leak one artifact per job.
	if err := w.fs.Remove(transcriptPath); err != nil {
		w.logger.Warn("failed to remove transcript artifact", "path", transcriptPath, "error", err)
	}

	return strings.TrimSpace(string(content)), nil
}

// Reset clears per-engine state. Subprocess engines keep no resident state
// between invocations, so there is nothing to clear; the hook exists for
// engines with in-process caches.
func (w *WhisperEngine) Reset() {}
