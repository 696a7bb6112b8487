package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/vod-platform/internal/media/domain"
	"github.com/romariotrain/vod-platform/internal/media/models"
)

// MemoryRepository keeps records and outbox rows in process memory.
// It applies the same forward-only rules as the Postgres store.
type MemoryRepository struct {
	mu     sync.RWMutex
	data   map[uuid.UUID]*models.Media
	nextID int64

	outbox    []memoryOutboxRow
	nextEvent int64
	clock     func() time.Time
}

type memoryOutboxRow struct {
	record    models.OutboxRecord
	processed bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data:  make(map[uuid.UUID]*models.Media),
		clock: time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, m *models.Media) error {
	if m == nil || m.UUID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[m.UUID]; exists {
		return models.ErrConflict
	}

	r.nextID++
	m.ID = r.nextID
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	cp := *m
	r.data[m.UUID] = &cp
	return nil
}

func (r *MemoryRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.data[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, to models.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(domain.Predecessors(to)) == 0 {
		return false, fmt.Errorf("%w: nothing advances to %s", domain.ErrInvalidTransition, to)
	}

	m, ok := r.data[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if domain.ValidateTransition(m.Status, to) != nil {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = r.clock()
	return true, nil
}

func (r *MemoryRepository) MarkReady(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if domain.ValidateTransition(m.Status, models.ReadyStatus) != nil {
		return false, nil
	}

	now := r.clock()
	event := models.NewMediaReady(m, now)
	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	m.Status = models.ReadyStatus
	m.UpdatedAt = now

	r.nextEvent++
	r.outbox = append(r.outbox, memoryOutboxRow{record: models.OutboxRecord{
		ID:          r.nextEvent,
		EventID:     event.EventID().String(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID().String(),
		Payload:     payload,
		OccurredAt:  now,
	}})
	return true, nil
}

func (r *MemoryRepository) UpdateTitle(ctx context.Context, id uuid.UUID, owner, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok || !m.OwnedBy(owner) {
		return models.ErrNotFound
	}
	m.Title = title
	m.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok || !m.OwnedBy(owner) {
		return models.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *MemoryRepository) ListUnfinished(ctx context.Context) ([]*models.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Media
	for _, m := range r.data {
		if m.Status == models.ReadyStatus {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Media) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *MemoryRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uuid.UUID]*models.Media, len(ids))
	for _, id := range ids {
		if m, ok := r.data[id]; ok {
			cp := *m
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetPending(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.OutboxRecord
	for _, row := range r.outbox {
		if row.processed {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, row.record)
	}
	return out, nil
}

func (r *MemoryRepository) MarkProcessed(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.outbox {
		if r.outbox[i].record.ID == id {
			r.outbox[i].processed = true
			return nil
		}
	}
	return models.ErrNotFound
}
