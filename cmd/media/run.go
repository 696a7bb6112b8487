package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/vod-platform/internal/app"
	"github.com/romariotrain/vod-platform/internal/config"
)

// run serves the HTTP API and, depending on configuration, the transcode worker,
// the outbox publisher and the index reconciler in the same process.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if err := errors.Join(cfg.Validate(), cfg.Auth.Validate()); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	svcs, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	// Unfinished uploads are re-dispatched before any new request is accepted.
	if _, err := svcs.NewRecoverer().Run(ctx); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	handler, err := svcs.NewHTTPHandler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.ServeHTTP(gctx, srv, cfg.HTTP.ShutdownTimeout, logger)
	})

	if cfg.Worker.Enabled {
		worker, err := svcs.NewWorker()
		if err != nil {
			return err
		}
		g.Go(func() error { return worker.Run(gctx) })
	}

	if cfg.Outbox.Enabled {
		publisher, err := svcs.NewOutboxPublisher()
		if err != nil {
			return err
		}
		g.Go(func() error { return publisher.Start(gctx) })
	}

	if cfg.Reconcile.Enabled {
		reconciler := svcs.NewReconciler()
		g.Go(func() error {
			reconciler.Start(gctx)
			return nil
		})
	}

	return g.Wait()
}
