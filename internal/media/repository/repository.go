package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

type MediaRepository interface {
	Create(ctx context.Context, m *models.Media) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Media, error)

	// AdvanceStatus moves the record to `to` only from one of its allowed predecessors.
	// It reports false without error when the record is already at or past `to`.
	AdvanceStatus(ctx context.Context, id uuid.UUID, to models.Status) (bool, error)

	// MarkReady moves processing -> ready and records a MediaReady outbox event atomically.
	MarkReady(ctx context.Context, id uuid.UUID) (bool, error)

	UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error
	Delete(ctx context.Context, id uuid.UUID, owner string) error

	// ListUnfinished returns every record whose status is not ready, oldest first.
	ListUnfinished(ctx context.Context) ([]*models.Media, error)

	// GetMany returns the records that still exist among ids, keyed by uuid.
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Media, error)
}

// OutboxStore is the read side of the outbox consumed by the publisher.
type OutboxStore interface {
	GetPending(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id int64) error
}
