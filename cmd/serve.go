package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/medscribe/medscribe/pkg/admission"
	"github.com/medscribe/medscribe/pkg/api"
	"github.com/medscribe/medscribe/pkg/audio"
	"github.com/medscribe/medscribe/pkg/cmdrun"
	"github.com/medscribe/medscribe/pkg/engine"
	"github.com/medscribe/medscribe/pkg/environment"
	"github.com/medscribe/medscribe/pkg/logging"
	"github.com/medscribe/medscribe/pkg/notify"
	"github.com/medscribe/medscribe/pkg/pipeline"
	"github.com/medscribe/medscribe/pkg/store"
)

// NewServeCommand builds the serve command: the process composition root.
// Every pipeline collaborator is constructed here and injected by reference;
// nothing in the pipeline reaches for global state.
func NewServeCommand(fs afero.Fs, ctx context.Context, environ *environment.Environment, logger *logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the transcription API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(fs, ctx, environ, logger)
		},
	}
}

func runServe(fs afero.Fs, ctx context.Context, environ *environment.Environment, logger *logging.Logger) error {
	jobStore, err := store.Open(environ.DBPath, logger)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	runner := cmdrun.NewExecRunner(logger)

	// A broken model install must abort startup, not the first job.
	pool, err := engine.NewPool(environ.PoolSize, func(int) (engine.Transcriber, error) {
		return engine.NewWhisperEngine(engine.Config{
			Binary:    environ.WhisperBin,
			ModelPath: environ.WhisperModel,
			Language:  environ.Language,
			Prompt:    environ.PrimingPrompt,
		}, fs, runner, logger)
	})
	if err != nil {
		return err
	}

	gate := admission.NewGate(environ.AdmissionCapacity)
	normalizer := audio.NewNormalizer(fs, runner, environ.FFmpegPath, environ.FFprobePath, logger)
	notifier := notify.NewRegistry(logger)

	dispatcher := pipeline.NewDispatcher(fs, pipeline.Config{
		WorkDir: environ.WorkDir,
		Workers: environ.Workers,
	}, jobStore, gate, pool, normalizer, notifier, logger)

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	server := api.NewServer(environ.Addr(), dispatcher, jobStore, notifier, logger)
	return server.Run(ctx)
}
