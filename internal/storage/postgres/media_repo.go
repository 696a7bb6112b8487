package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/vod-platform/internal/media/domain"
	"github.com/romariotrain/vod-platform/internal/media/models"
)

const mediaColumns = `id, uuid, owner_identity, media_kind, title, status, created_at, updated_at`

const uniqueViolation = "23505"

type MediaRepo struct {
	db     *sqlx.DB
	outbox *OutboxRepo
	clock  func() time.Time
}

func NewMediaRepo(db *sqlx.DB) *MediaRepo {
	return &MediaRepo{
		db:     db,
		outbox: NewOutboxRepo(db),
		clock:  time.Now,
	}
}

func (r *MediaRepo) Create(ctx context.Context, m *models.Media) error {
	const q = `
		INSERT INTO media (uuid, owner_identity, media_kind, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, q,
		m.UUID, m.OwnerIdentity, m.Kind, m.Title, m.Status, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ErrConflict
		}
		return fmt.Errorf("media create: %w", err)
	}
	m.UpdatedAt = m.CreatedAt
	return nil
}

func (r *MediaRepo) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const q = `SELECT ` + mediaColumns + ` FROM media WHERE uuid = $1`

	var m models.Media
	if err := r.db.GetContext(ctx, &m, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("media get by uuid: %w", err)
	}
	return &m, nil
}

func (r *MediaRepo) AdvanceStatus(ctx context.Context, id uuid.UUID, to models.Status) (bool, error) {
	from := domain.Predecessors(to)
	if len(from) == 0 {
		return false, fmt.Errorf("%w: nothing advances to %s", domain.ErrInvalidTransition, to)
	}

	q, args, err := sqlx.In(
		`UPDATE media SET status = ?, updated_at = NOW() WHERE uuid = ? AND status IN (?)`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("media advance status: %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return false, fmt.Errorf("media advance status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("media advance status: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	return false, r.ensureExists(ctx, r.db, id)
}

func (r *MediaRepo) MarkReady(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE media
		SET status = $2, updated_at = NOW()
		WHERE uuid = $1 AND status = $3
		RETURNING ` + mediaColumns

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var m models.Media
	if err := tx.GetContext(ctx, &m, q, id, models.ReadyStatus, models.ProcessingStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, r.ensureExists(ctx, tx, id)
		}
		return false, fmt.Errorf("media mark ready: %w", err)
	}

	if err := r.outbox.Add(ctx, tx, models.NewMediaReady(&m, r.clock())); err != nil {
		return false, fmt.Errorf("add outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (r *MediaRepo) UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error {
	const q = `
		UPDATE media
		SET title = $3, updated_at = NOW()
		WHERE uuid = $1 AND owner_identity = $2
	`
	res, err := r.db.ExecContext(ctx, q, id, owner, title)
	if err != nil {
		return fmt.Errorf("media update title: %w", err)
	}
	return expectRows(res)
}

func (r *MediaRepo) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	const q = `DELETE FROM media WHERE uuid = $1 AND owner_identity = $2`

	res, err := r.db.ExecContext(ctx, q, id, owner)
	if err != nil {
		return fmt.Errorf("media delete: %w", err)
	}
	return expectRows(res)
}

func (r *MediaRepo) ListUnfinished(ctx context.Context) ([]*models.Media, error) {
	const q = `SELECT ` + mediaColumns + ` FROM media WHERE status <> $1 ORDER BY id ASC`

	var out []*models.Media
	if err := r.db.SelectContext(ctx, &out, q, models.ReadyStatus); err != nil {
		return nil, fmt.Errorf("media list unfinished: %w", err)
	}
	return out, nil
}

func (r *MediaRepo) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Media, error) {
	out := make(map[uuid.UUID]*models.Media, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q, args, err := sqlx.In(`SELECT `+mediaColumns+` FROM media WHERE uuid IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("media get many: %w", err)
	}

	var found []*models.Media
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("media get many: %w", err)
	}
	for _, m := range found {
		out[m.UUID] = m
	}
	return out, nil
}

// ensureExists distinguishes "row missing" from "guard did not match" after a zero-row update.
func (r *MediaRepo) ensureExists(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM media WHERE uuid = $1)`, id); err != nil {
		return fmt.Errorf("media exists: %w", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return nil
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
