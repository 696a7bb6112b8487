package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/vod-platform/internal/app"
	"github.com/romariotrain/vod-platform/internal/config"
)

// publish keeps the search index in step with the store: it drains the outbox
// and periodically removes orphaned documents.
func main() {
	code := app.Run("publish", func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		svcs, err := app.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svcs.Close()

		publisher, err := svcs.NewOutboxPublisher()
		if err != nil {
			return err
		}
		reconciler := svcs.NewReconciler()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return publisher.Start(gctx) })
		g.Go(func() error {
			reconciler.Start(gctx)
			return nil
		})
		return g.Wait()
	})
	os.Exit(code)
}
