package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/config"
	"github.com/romariotrain/vod-platform/internal/logging"
)

const shutdownGrace = 30 * time.Second

type Runner func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error

// Run loads configuration, installs signal handling and runs run until it returns
// or the process is asked to stop. It returns the process exit code.
func Run(serviceName string, run Runner) int {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	logger := logging.New(cfg.Log, serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return supervise(ctx, serviceName, logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
}

func supervise(ctx context.Context, serviceName string, logger zerolog.Logger, run func(context.Context) error) int {
	logger.Info().Msgf("%s starting", serviceName)

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info().Msgf("%s shutting down", serviceName)
	case err := <-errCh:
		return exitCode(logger, serviceName, err)
	}

	// Give the runner time to drain in-flight work and close its connections.
	select {
	case err := <-errCh:
		return exitCode(logger, serviceName, err)
	case <-time.After(shutdownGrace):
		logger.Warn().Dur("grace", shutdownGrace).Msgf("%s did not stop in time", serviceName)
		return 1
	}
}

func exitCode(logger zerolog.Logger, serviceName string, err error) int {
	if err != nil {
		logger.Error().Err(err).Msgf("%s failed", serviceName)
		return 1
	}
	logger.Info().Msgf("%s stopped", serviceName)
	return 0
}
