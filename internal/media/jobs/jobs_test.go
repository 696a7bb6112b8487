package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/vod-platform/internal/media/artifacts"
	"github.com/romariotrain/vod-platform/internal/media/kafka"
	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

type fixture struct {
	repo       *repository.MemoryRepository
	tree       *artifacts.Tree
	transcoder *fakeTranscoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tree, err := artifacts.NewTree(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		repo:       repository.NewMemoryRepository(),
		tree:       tree,
		transcoder: &fakeTranscoder{err: errors.New("ffmpeg exited with status 1")},
	}
}

func (f *fixture) seed(t *testing.T, status models.Status) *models.Media {
	t.Helper()
	m := &models.Media{
		UUID:          uuid.New(),
		OwnerIdentity: "owner-1",
		Kind:          models.Video,
		Title:         "My Clip",
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.repo.Create(context.Background(), m))
	require.NoError(t, os.WriteFile(f.tree.UploadPath(m.UUID), []byte("raw"), 0o644))
	return m
}

func (f *fixture) worker() *Worker {
	return NewWorker(nil, f.repo, f.transcoder, f.tree, WorkerConfig{
		RetryBackoff: time.Millisecond,
		MaxBackoff:   4 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
}

func (f *fixture) status(t *testing.T, id uuid.UUID) models.Status {
	t.Helper()
	m, err := f.repo.GetByUUID(context.Background(), id)
	require.NoError(t, err)
	return m.Status
}

func message(t *testing.T, m *models.Media, offset int64) kafka.Message {
	t.Helper()
	body, err := NewMessage(m).Encode()
	require.NoError(t, err)
	return kafka.Message{Key: []byte(m.UUID.String()), Value: body, Offset: offset}
}

func TestDecodeMessage(t *testing.T) {
	m := &models.Media{UUID: uuid.New(), Kind: models.Audio, OwnerIdentity: "sub"}
	body, err := NewMessage(m).Encode()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"v":1`)

	got, err := DecodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, m.UUID, got.MediaUUID)
	assert.Equal(t, m.UUID.String(), got.Key())

	bad := []string{
		`not json`,
		`{"v":2,"media_uuid":"` + m.UUID.String() + `","media_kind":"audio","owner_identity":"sub"}`,
		`{"v":1,"media_kind":"audio","owner_identity":"sub"}`,
		`{"v":1,"media_uuid":"` + m.UUID.String() + `","media_kind":"image","owner_identity":"sub"}`,
		`{"v":1,"media_uuid":"` + m.UUID.String() + `","media_kind":"audio"}`,
	}
	for _, b := range bad {
		_, err := DecodeMessage([]byte(b))
		require.ErrorIs(t, err, ErrMalformedMessage, b)
	}
}

func TestDispatcher_MarksQueuedAfterAck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.seed(t, models.CreatedStatus)

	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, m.UUID.String(), mock.Anything).
		Run(func(args mock.Arguments) {
			job, err := DecodeMessage(args.Get(2).([]byte))
			require.NoError(t, err)
			assert.Equal(t, m.UUID, job.MediaUUID)
			assert.Equal(t, "owner-1", job.OwnerIdentity)
			// Not queued until the broker has acknowledged.
			assert.Equal(t, models.CreatedStatus, f.status(t, m.UUID))
		}).
		Return(nil).
		Once()

	d := NewDispatcher(pub, f.repo, zerolog.Nop())
	require.NoError(t, d.Dispatch(ctx, m))
	assert.Equal(t, models.QueuedStatus, f.status(t, m.UUID))
	pub.AssertExpectations(t)
}

func TestDispatcher_PublishFailureLeavesCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.seed(t, models.CreatedStatus)

	brokerErr := errors.New("leader not available")
	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(brokerErr).Once()

	err := NewDispatcher(pub, f.repo, zerolog.Nop()).Dispatch(ctx, m)
	require.ErrorIs(t, err, brokerErr)
	assert.Equal(t, models.CreatedStatus, f.status(t, m.UUID))
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestDispatcher_RedispatchKeepsLaterStatus(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, models.ProcessingStatus)

	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, NewDispatcher(pub, f.repo, zerolog.Nop()).Dispatch(context.Background(), m))
	assert.Equal(t, models.ProcessingStatus, f.status(t, m.UUID))
}

func TestWorker_HandleSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.seed(t, models.QueuedStatus)

	require.NoError(t, f.worker().Handle(ctx, message(t, m, 1)))

	assert.Equal(t, models.ReadyStatus, f.status(t, m.UUID))
	dir, err := f.tree.MediaDir(m.OwnerIdentity, m.UUID)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "playlist.m3u8"))
	assert.NoFileExists(t, f.tree.UploadPath(m.UUID))

	pending, err := f.repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m.UUID.String(), pending[0].AggregateID)
}

func TestWorker_HandleDiscards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ready := f.seed(t, models.ReadyStatus)
	deleted := &models.Media{UUID: uuid.New(), Kind: models.Audio, OwnerIdentity: "owner-1"}

	w := f.worker()
	require.NoError(t, w.Handle(ctx, message(t, ready, 1)))
	require.NoError(t, w.Handle(ctx, message(t, deleted, 2)))
	require.NoError(t, w.Handle(ctx, kafka.Message{Value: []byte("garbage"), Offset: 3}))

	assert.Equal(t, 0, f.transcoder.Calls())
	assert.Equal(t, models.ReadyStatus, f.status(t, ready.UUID))
}

func TestWorker_HandleFailureKeepsProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.transcoder.failFirst = 1
	m := f.seed(t, models.QueuedStatus)

	err := f.worker().Handle(ctx, message(t, m, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcode")

	assert.Equal(t, models.ProcessingStatus, f.status(t, m.UUID))
	assert.FileExists(t, f.tree.UploadPath(m.UUID))
	pending, err := f.repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorker_RunRetriesUntilSuccessThenCommits(t *testing.T) {
	f := newFixture(t)
	f.transcoder.failFirst = 2
	m := f.seed(t, models.QueuedStatus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src := &fakeSource{queue: []kafka.Message{message(t, m, 7)}, drained: cancel}
	w := f.worker()
	w.source = src

	require.NoError(t, w.Run(ctx))

	assert.Equal(t, 3, f.transcoder.Calls())
	require.Len(t, src.committed, 1)
	assert.Equal(t, int64(7), src.committed[0].Offset)
	assert.Equal(t, models.ReadyStatus, f.status(t, m.UUID))
}

func TestWorker_RedeliveryAfterReadyIsNoop(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, models.QueuedStatus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src := &fakeSource{
		queue:   []kafka.Message{message(t, m, 1), message(t, m, 2)},
		drained: cancel,
	}
	w := f.worker()
	w.source = src

	require.NoError(t, w.Run(ctx))

	assert.Equal(t, 1, f.transcoder.Calls())
	assert.Len(t, src.committed, 2)
	assert.Equal(t, models.ReadyStatus, f.status(t, m.UUID))

	pending, err := f.repo.GetPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "duplicate delivery must not emit a second index event")
}

func TestWorker_Backoff(t *testing.T) {
	w := NewWorker(nil, nil, nil, nil, WorkerConfig{
		RetryBackoff: 100 * time.Millisecond,
		MaxBackoff:   time.Second,
		Logger:       zerolog.Nop(),
	})

	assert.Equal(t, 100*time.Millisecond, w.backoff(0))
	assert.Equal(t, 200*time.Millisecond, w.backoff(1))
	assert.Equal(t, 800*time.Millisecond, w.backoff(3))
	assert.Equal(t, time.Second, w.backoff(4))
	assert.Equal(t, time.Second, w.backoff(40))
}

func TestRecoverer_RedispatchesUnfinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.seed(t, models.CreatedStatus)
	queued := f.seed(t, models.QueuedStatus)
	processing := f.seed(t, models.ProcessingStatus)
	ready := f.seed(t, models.ReadyStatus)

	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, queued.UUID.String(), mock.Anything).Return(errors.New("broker down")).Once()
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	rec := NewRecoverer(f.repo, NewDispatcher(pub, f.repo, zerolog.Nop()), zerolog.Nop())
	report, err := rec.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, RecoveryReport{Scanned: 3, Dispatched: 2, Failed: 1}, report)
	assert.Equal(t, models.QueuedStatus, f.status(t, created.UUID))
	assert.Equal(t, models.ProcessingStatus, f.status(t, processing.UUID))
	pub.AssertNotCalled(t, "Publish", mock.Anything, ready.UUID.String(), mock.Anything)
}

func TestRecovery_StuckProcessingReachesReady(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, models.ProcessingStatus)

	// Capture what recovery publishes and feed it to a fresh worker.
	var published [][]byte
	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = append(published, args.Get(2).([]byte)) }).
		Return(nil)

	_, err := NewRecoverer(f.repo, NewDispatcher(pub, f.repo, zerolog.Nop()), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, published, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src := &fakeSource{queue: []kafka.Message{{Value: published[0]}}, drained: cancel}
	w := f.worker()
	w.source = src
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, models.ReadyStatus, f.status(t, m.UUID))
}
