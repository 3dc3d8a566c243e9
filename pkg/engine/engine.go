// Package engine owns the transcription engines and the pool that rotates
// jobs across them.
package engine

import (
	"context"
	"fmt"
)

// Transcriber converts a canonical-format audio file into text.
type Transcriber interface {
	// Transcribe runs speech recognition on the WAV file at wavPath and
	// returns the transcript. The call is synchronous and may take as long
	// as the recording itself.
	Transcribe(ctx context.Context, wavPath string) (string, error)

	// Reset clears any per-engine state left by a previous job so runs do
	// not contaminate each other.
	Reset()
}

// Config describes one transcription engine instance.
type Config struct {
	// Binary is the whisper-cpp style executable invoked per job.
	Binary string

	// ModelPath points at the model weights loaded by the binary.
	ModelPath string

	// Language is the ISO language hint passed to the engine.
	Language string

	// Prompt is the domain priming text that biases decoding toward
	// clinical vocabulary.
	Prompt string
}

// ModelLoadError is fatal: a pool cannot start with a missing or broken
// engine, so startup must abort.
type ModelLoadError struct {
	Detail string
	Err    error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load transcription model: %s", e.Detail)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// TranscriptionError reports an engine invocation failure for an admitted job.
type TranscriptionError struct {
	WavPath string
	Stderr  string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed for %s: %s", e.WavPath, e.Stderr)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
