package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

// memoryDocs pages over a fixed, sorted document set.
type memoryDocs struct {
	docs      []models.SearchDocument
	deleted   []uuid.UUID
	upserted  []models.SearchDocument
	pageErr   error
	upsertErr error
}

func (m *memoryDocs) Page(_ context.Context, after string, size int) ([]models.SearchDocument, error) {
	if m.pageErr != nil {
		return nil, m.pageErr
	}
	var out []models.SearchDocument
	for _, d := range m.docs {
		if after != "" && d.MediaUUID.String() <= after {
			continue
		}
		if len(out) == size {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *memoryDocs) Upsert(_ context.Context, doc models.SearchDocument) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, doc)
	for i := range m.docs {
		if m.docs[i].MediaUUID == doc.MediaUUID {
			m.docs[i] = doc
		}
	}
	return nil
}

func (m *memoryDocs) DeleteByUUIDs(_ context.Context, ids []uuid.UUID) error {
	m.deleted = append(m.deleted, ids...)
	return nil
}

func TestReconciler_SweepRemovesOrphans(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	docs := &memoryDocs{}
	var kept []uuid.UUID
	for i := 0; i < 5; i++ {
		m := &models.Media{
			UUID:          uuid.New(),
			OwnerIdentity: "owner-1",
			Kind:          models.Audio,
			Title:         "Track",
			Status:        models.ReadyStatus,
			CreatedAt:     time.Now(),
		}
		if i%2 == 0 {
			require.NoError(t, repo.Create(ctx, m))
			kept = append(kept, m.UUID)
		}
		docs.docs = append(docs.docs, models.NewSearchDocument(m))
	}
	slices.SortFunc(docs.docs, func(a, b models.SearchDocument) int {
		return strings.Compare(a.MediaUUID.String(), b.MediaUUID.String())
	})

	r := NewReconciler(docs, repo, time.Minute, 2, zerolog.Nop())
	res, err := r.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 2, res.Removed)
	assert.Zero(t, res.Refreshed)
	assert.Empty(t, docs.upserted)
	require.Len(t, docs.deleted, 2)
	for _, id := range docs.deleted {
		assert.NotContains(t, kept, id)
	}
}

func TestReconciler_SweepEmptyIndex(t *testing.T) {
	r := NewReconciler(&memoryDocs{}, repository.NewMemoryRepository(), 0, 0, zerolog.Nop())
	res, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

func TestReconciler_SweepPageError(t *testing.T) {
	r := NewReconciler(&memoryDocs{pageErr: errors.New("index unavailable")}, repository.NewMemoryRepository(), 0, 0, zerolog.Nop())
	_, err := r.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func readyMedia(title string) *models.Media {
	return &models.Media{
		UUID:          uuid.New(),
		OwnerIdentity: "owner-1",
		Kind:          models.Video,
		Title:         title,
		Status:        models.ProcessingStatus,
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// A ready event published after a title edit leaves the old title in the index.
func TestReconciler_SweepRefreshesStaleTitle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	m := readyMedia("Old Title")
	require.NoError(t, repo.Create(ctx, m))
	_, err := repo.MarkReady(ctx, m.UUID)
	require.NoError(t, err)
	snapshot := models.NewSearchDocument(m)
	require.NoError(t, repo.UpdateTitle(ctx, m.UUID, "owner-1", "New Title"))

	docs := &memoryDocs{docs: []models.SearchDocument{snapshot}}
	r := NewReconciler(docs, repo, time.Minute, 10, zerolog.Nop())

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Refreshed)
	assert.Zero(t, res.Removed)
	require.Len(t, docs.docs, 1)
	assert.Equal(t, "New Title", docs.docs[0].Title)
	assert.Equal(t, m.CreatedAt, docs.docs[0].CreatedAt)

	// A second pass finds nothing to do.
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Refreshed)
}

func TestReconciler_SweepLeavesUnfinishedRecordsAlone(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	m := readyMedia("Still Processing")
	require.NoError(t, repo.Create(ctx, m))
	doc := models.NewSearchDocument(m)
	doc.Title = "Something Else"

	docs := &memoryDocs{docs: []models.SearchDocument{doc}}
	res, err := NewReconciler(docs, repo, 0, 0, zerolog.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Refreshed)
	assert.Zero(t, res.Removed)
	assert.Empty(t, docs.upserted)
}

func TestReconciler_SweepUpsertError(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	m := readyMedia("Old Title")
	require.NoError(t, repo.Create(ctx, m))
	_, err := repo.MarkReady(ctx, m.UUID)
	require.NoError(t, err)
	doc := models.NewSearchDocument(m)
	require.NoError(t, repo.UpdateTitle(ctx, m.UUID, "owner-1", "New Title"))

	docs := &memoryDocs{docs: []models.SearchDocument{doc}, upsertErr: errors.New("index read-only")}
	_, err = NewReconciler(docs, repo, 0, 0, zerolog.Nop()).Sweep(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index read-only")
}
