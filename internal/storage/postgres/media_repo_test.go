package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

// Runs against a real database when MEDIA_TEST_DATABASE_URL is set.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("MEDIA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MEDIA_TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn, PoolConfig{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db))
	return db
}

func newMedia(owner string) *models.Media {
	return &models.Media{
		UUID:          uuid.New(),
		OwnerIdentity: owner,
		Kind:          models.Video,
		Title:         "Integration Clip",
		Status:        models.CreatedStatus,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestMediaRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewMediaRepo(db)
	outbox := NewOutboxRepo(db)
	ctx := context.Background()

	m := newMedia("alice")
	require.NoError(t, repo.Create(ctx, m))
	assert.NotZero(t, m.ID)
	t.Cleanup(func() { _ = repo.Delete(ctx, m.UUID, "alice") })

	require.ErrorIs(t, repo.Create(ctx, m), models.ErrConflict)

	_, err := repo.MarkReady(ctx, m.UUID)
	require.NoError(t, err)
	got, err := repo.GetByUUID(ctx, m.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.CreatedStatus, got.Status, "ready must not skip processing")

	for _, to := range []models.Status{models.QueuedStatus, models.ProcessingStatus} {
		ok, err := repo.AdvanceStatus(ctx, m.UUID, to)
		require.NoError(t, err)
		assert.True(t, ok, to)
	}

	ok, err := repo.AdvanceStatus(ctx, m.UUID, models.QueuedStatus)
	require.NoError(t, err)
	assert.False(t, ok, "status never moves backwards")

	ok, err = repo.MarkReady(ctx, m.UUID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkReady(ctx, m.UUID)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := outbox.GetPending(ctx, 1000)
	require.NoError(t, err)
	var events []models.OutboxRecord
	for _, rec := range pending {
		if rec.AggregateID == m.UUID.String() {
			events = append(events, rec)
		}
	}
	require.Len(t, events, 1)
	assert.Equal(t, models.MediaReadyEventType, events[0].EventType)
	require.NoError(t, outbox.MarkProcessed(ctx, events[0].ID))

	unfinished, err := repo.ListUnfinished(ctx)
	require.NoError(t, err)
	for _, u := range unfinished {
		assert.NotEqual(t, m.UUID, u.UUID)
	}
}

func TestMediaRepo_OwnerScopedMutations(t *testing.T) {
	db := openTestDB(t)
	repo := NewMediaRepo(db)
	ctx := context.Background()

	m := newMedia("alice")
	require.NoError(t, repo.Create(ctx, m))

	require.ErrorIs(t, repo.UpdateTitle(ctx, m.UUID, "mallory", "Hijacked"), models.ErrNotFound)
	require.NoError(t, repo.UpdateTitle(ctx, m.UUID, "alice", "Renamed Clip"))

	got, err := repo.GetByUUID(ctx, m.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Clip", got.Title)

	missing := uuid.New()
	found, err := repo.GetMany(ctx, []uuid.UUID{m.UUID, missing})
	require.NoError(t, err)
	require.Contains(t, found, m.UUID)
	assert.Equal(t, "Renamed Clip", found[m.UUID].Title)
	assert.NotContains(t, found, missing)

	require.ErrorIs(t, repo.Delete(ctx, m.UUID, "mallory"), models.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, m.UUID, "alice"))

	_, err = repo.GetByUUID(ctx, m.UUID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.AdvanceStatus(ctx, m.UUID, models.QueuedStatus)
	require.ErrorIs(t, err, models.ErrNotFound)
}
