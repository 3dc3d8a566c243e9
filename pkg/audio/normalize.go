// Package audio prepares uploaded recordings for the transcription engines.
//
// Engines require canonical input: mono, 16kHz WAV. Anything else is rewritten
// through ffmpeg; files that already carry the canonical extension pass
// untouched.
package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/medscribe/medscribe/pkg/cmdrun"
	"github.com/medscribe/medscribe/pkg/logging"
)

// CanonicalExt is the extension of normalized audio files.
const CanonicalExt = ".wav"

// ConversionError reports a failed format conversion.
type ConversionError struct {
	Source string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("audio conversion failed for %s: %s", e.Source, e.Stderr)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Normalizer converts uploads into the canonical sample format.
type Normalizer struct {
	fs          afero.Fs
	runner      cmdrun.Runner
	ffmpegPath  string
	ffprobePath string
	logger      *logging.Logger
}

// NewNormalizer builds a Normalizer around the given command runner.
func NewNormalizer(fs afero.Fs, runner cmdrun.Runner, ffmpegPath, ffprobePath string, logger *logging.Logger) *Normalizer {
	return &Normalizer{
		fs:          fs,
		runner:      runner,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

// NormalizedPath returns the derived path a normalized copy of sourcePath
// would be written to: same stem, canonical extension.
func NormalizedPath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + CanonicalExt
}

// Normalize rewrites sourcePath as mono 16kHz WAV and returns the derived
// path. Sources already carrying the canonical extension are returned as-is
// with no copy performed.
func (n *Normalizer) Normalize(ctx context.Context, sourcePath string) (string, error) {
	if strings.EqualFold(filepath.Ext(sourcePath), CanonicalExt) {
		return sourcePath, nil
	}

	target := NormalizedPath(sourcePath)
	args := []string{"-y", "-i", sourcePath, "-ar", "16000", "-ac", "1", target}

	res, err := n.runner.Run(ctx, n.ffmpegPath, args, "")
	if err != nil || res.ExitCode != 0 {
		return "", &ConversionError{Source: sourcePath, Stderr: res.Stderr, Err: err}
	}

	exists, err := afero.Exists(n.fs, target)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &ConversionError{Source: sourcePath, Stderr: "converter produced no output file"}
	}

	n.logger.Debug("audio normalized", "source", sourcePath, "target", target)
	return target, nil
}

// Duration reports the length of an audio file in seconds using ffprobe.
// Probe failures are logged and reported as 0; duration is informational only
// and must never fail a job.
func (n *Normalizer) Duration(ctx context.Context, path string) float64 {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	res, err := n.runner.Run(ctx, n.ffprobePath, args, "")
	if err != nil || res.ExitCode != 0 {
		n.logger.Error("failed to probe audio duration", "path", path, "error", err, "stderr", res.Stderr)
		return 0
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil {
		n.logger.Error("unparseable ffprobe duration", "path", path, "output", res.Stdout)
		return 0
	}
	return seconds
}
