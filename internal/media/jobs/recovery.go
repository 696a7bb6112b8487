package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

type JobDispatcher interface {
	Dispatch(ctx context.Context, m *models.Media) error
}

type RecoveryReport struct {
	Scanned    int
	Dispatched int
	Failed     int
}

// Recoverer re-dispatches every record that has not reached ready. It is run once
// at process start, before requests are served.
type Recoverer struct {
	repo       repository.MediaRepository
	dispatcher JobDispatcher
	logger     zerolog.Logger
}

func NewRecoverer(repo repository.MediaRepository, dispatcher JobDispatcher, logger zerolog.Logger) *Recoverer {
	return &Recoverer{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "recovery").Logger(),
	}
}

// Run returns an error only if the store cannot be scanned; individual dispatch
// failures are counted and left for the next start.
func (r *Recoverer) Run(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	pending, err := r.repo.ListUnfinished(ctx)
	if err != nil {
		return report, fmt.Errorf("list unfinished: %w", err)
	}
	report.Scanned = len(pending)

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.dispatcher.Dispatch(ctx, m); err != nil {
			report.Failed++
			r.logger.Error().
				Err(err).
				Str("media_uuid", m.UUID.String()).
				Str("status", string(m.Status)).
				Msg("re-dispatch failed")
			continue
		}
		report.Dispatched++
	}

	r.logger.Info().
		Int("scanned", report.Scanned).
		Int("dispatched", report.Dispatched).
		Int("failed", report.Failed).
		Msg("recovery completed")
	return report, nil
}
