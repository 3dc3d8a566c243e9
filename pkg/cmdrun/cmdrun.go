// Package cmdrun executes external commands for the audio and engine layers.
package cmdrun

import (
	"context"

	execute "github.com/alexellis/go-execute/v2"

	"github.com/medscribe/medscribe/pkg/logging"
)

// Result captures one external command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution so the pipeline can be tested without
// ffmpeg or a transcription binary on PATH.
type Runner interface {
	Run(ctx context.Context, command string, args []string, workingDir string) (Result, error)
}

// ExecRunner runs commands through go-execute.
type ExecRunner struct {
	Logger *logging.Logger
}

// NewExecRunner returns a Runner backed by real process execution.
func NewExecRunner(logger *logging.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger}
}

// Run executes a command with an optional working directory, waiting for it to
// finish. The returned Result is populated even when err is non-nil so callers
// can surface stderr.
func (r *ExecRunner) Run(ctx context.Context, command string, args []string, workingDir string) (Result, error) {
	r.Logger.Debug("executing", "command", command, "args", args, "dir", workingDir)

	task := execute.ExecTask{
		Command: command,
		Args:    args,
		Cwd:     workingDir,
	}

	res, err := task.Execute(ctx)
	out := Result{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
	if err != nil {
		r.Logger.Error("command execution failed", "command", command, "error", err)
		return out, err
	}

	if out.ExitCode != 0 {
		r.Logger.Warn("command exited non-zero", "command", command, "code", out.ExitCode, "stderr", out.Stderr)
	}
	return out, nil
}
