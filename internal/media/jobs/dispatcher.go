package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Dispatcher hands transcode jobs to the broker and marks records queued once the
// broker has acknowledged them.
type Dispatcher struct {
	publisher Publisher
	repo      repository.MediaRepository
	logger    zerolog.Logger
}

func NewDispatcher(publisher Publisher, repo repository.MediaRepository, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		repo:      repo,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch publishes the job for m. A publish error is returned unchanged apart from
// wrapping and leaves the record as it was; nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, m *models.Media) error {
	msg := NewMessage(m)
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	if err := d.publisher.Publish(ctx, msg.Key(), body); err != nil {
		return fmt.Errorf("dispatch %s: %w", m.UUID, err)
	}

	log := d.logger.With().Str("media_uuid", m.UUID.String()).Logger()

	advanced, err := d.repo.AdvanceStatus(ctx, m.UUID, models.QueuedStatus)
	switch {
	case errors.Is(err, models.ErrNotFound):
		// Deleted between publish and ack; the worker will discard the job.
		log.Info().Msg("record gone after dispatch")
	case err != nil:
		// The job is on the broker; the worker moves the record forward from created.
		log.Warn().Err(err).Msg("failed to mark record queued")
	case advanced:
		log.Info().Msg("job dispatched")
	default:
		log.Debug().Str("status", string(m.Status)).Msg("job re-dispatched, status kept")
	}
	return nil
}
