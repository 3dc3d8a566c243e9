package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/medscribe/medscribe/pkg/environment"
	"github.com/medscribe/medscribe/pkg/logging"
	"github.com/medscribe/medscribe/pkg/version"
)

// NewRootCommand returns the root command with all subcommands attached.
func NewRootCommand(fs afero.Fs, ctx context.Context, environ *environment.Environment, logger *logging.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "medscribe",
		Short: "Background audio-transcription service for clinical encounters.",
		Long: `Medscribe accepts encounter audio over REST, transcribes it in the background
on a bounded engine pool, and pushes completion events to websocket
subscribers. Submissions are acknowledged immediately; results are observed
through the status endpoint or the per-encounter subscription channel.`,
		Version: version.String(),
	}

	rootCmd.AddCommand(NewServeCommand(fs, ctx, environ, logger))

	return rootCmd
}
