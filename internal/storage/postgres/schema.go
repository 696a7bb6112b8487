package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS media (
		id             BIGSERIAL PRIMARY KEY,
		uuid           UUID        NOT NULL UNIQUE,
		owner_identity TEXT        NOT NULL,
		media_kind     TEXT        NOT NULL CHECK (media_kind IN ('audio', 'video', 'video_without_audio')),
		title          TEXT        NOT NULL,
		status         TEXT        NOT NULL CHECK (status IN ('created', 'queued', 'processing', 'ready')),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS media_unfinished_idx ON media (id) WHERE status <> 'ready'`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id           BIGSERIAL PRIMARY KEY,
		event_id     TEXT        NOT NULL UNIQUE,
		event_type   TEXT        NOT NULL,
		aggregate_id TEXT        NOT NULL,
		payload      JSONB       NOT NULL,
		occurred_at  TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE processed_at IS NULL`,
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
