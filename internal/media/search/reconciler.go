package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

type DocumentSource interface {
	Page(ctx context.Context, after string, size int) ([]models.SearchDocument, error)
	Upsert(ctx context.Context, doc models.SearchDocument) error
	DeleteByUUIDs(ctx context.Context, ids []uuid.UUID) error
}

type RecordSource interface {
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Media, error)
}

// Reconciler brings the index back in line with the record store. Edit and delete
// write the index directly, and a ready event may be published after a later edit,
// so documents can be orphaned or carry a stale title.
type Reconciler struct {
	docs     DocumentSource
	records  RecordSource
	interval time.Duration
	pageSize int
	logger   zerolog.Logger
}

type SweepResult struct {
	Scanned   int
	Removed   int
	Refreshed int
}

func NewReconciler(docs DocumentSource, records RecordSource, interval time.Duration, pageSize int, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Reconciler{
		docs:     docs,
		records:  records,
		interval: interval,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "search_reconciler").Logger(),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Int("page_size", r.pageSize).Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep walks the whole index once. Documents without a record are deleted and
// documents that disagree with their ready record are rewritten from it.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	after := ""

	for {
		docs, err := r.docs.Page(ctx, after, r.pageSize)
		if err != nil {
			return res, fmt.Errorf("page after %q: %w", after, err)
		}
		if len(docs) == 0 {
			break
		}
		res.Scanned += len(docs)

		ids := make([]uuid.UUID, len(docs))
		for n, d := range docs {
			ids[n] = d.MediaUUID
		}
		records, err := r.records.GetMany(ctx, ids)
		if err != nil {
			return res, fmt.Errorf("load records: %w", err)
		}

		var orphans []uuid.UUID
		for _, doc := range docs {
			m, ok := records[doc.MediaUUID]
			if !ok {
				orphans = append(orphans, doc.MediaUUID)
				continue
			}
			if m.Status != models.ReadyStatus {
				continue
			}
			want := models.NewSearchDocument(m)
			if stale(doc, want) {
				if err := r.docs.Upsert(ctx, want); err != nil {
					return res, fmt.Errorf("refresh %s: %w", doc.MediaUUID, err)
				}
				res.Refreshed++
			}
		}
		if len(orphans) > 0 {
			if err := r.docs.DeleteByUUIDs(ctx, orphans); err != nil {
				return res, fmt.Errorf("delete orphans: %w", err)
			}
			res.Removed += len(orphans)
		}

		if len(docs) < r.pageSize {
			break
		}
		after = ids[len(ids)-1].String()
	}

	r.logger.Info().
		Int("scanned", res.Scanned).
		Int("removed", res.Removed).
		Int("refreshed", res.Refreshed).
		Msg("sweep completed")
	return res, nil
}

func stale(have, want models.SearchDocument) bool {
	return have.Title != want.Title ||
		have.OwnerIdentity != want.OwnerIdentity ||
		have.Kind != want.Kind
}
