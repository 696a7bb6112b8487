package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/app"
	"github.com/romariotrain/vod-platform/internal/config"
)

// processing runs only the transcode worker, for hosts that have ffmpeg and the
// artifact volume but serve no HTTP traffic.
func main() {
	code := app.Run("processing", func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		svcs, err := app.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svcs.Close()

		worker, err := svcs.NewWorker()
		if err != nil {
			return err
		}
		return worker.Run(ctx)
	})
	os.Exit(code)
}
