package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/medscribe/medscribe/cmd"
	"github.com/medscribe/medscribe/pkg/environment"
	"github.com/medscribe/medscribe/pkg/logging"
)

func main() {
	fs := afero.NewOsFs()

	// .env is optional; OS environment always wins.
	if err := godotenv.Load(); err == nil {
		logging.GetLogger().Debug("loaded .env file")
	}

	logger := logging.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	environ, err := environment.NewEnvironment(fs, nil)
	if err != nil {
		logger.Error("failed to set up environment", "error", err)
		os.Exit(1)
	}

	rootCmd := cmd.NewRootCommand(fs, ctx, environ, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
