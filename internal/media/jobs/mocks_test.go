package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/vod-platform/internal/media/kafka"
	"github.com/romariotrain/vod-platform/internal/media/models"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// fakeSource serves queued messages and cancels the run once they are drained.
type fakeSource struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	drained   context.CancelFunc
}

func (s *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		s.drained()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	return m, nil
}

func (s *fakeSource) Commit(_ context.Context, m kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, m)
	return nil
}

// fakeTranscoder writes a playlist into the output directory after failing
// the first failFirst calls.
type fakeTranscoder struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	err       error
}

func (f *fakeTranscoder) Transcode(_ context.Context, input string, kind models.MediaKind, outDir string) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call <= f.failFirst {
		return f.err
	}
	if _, err := os.Stat(input); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "playlist.m3u8"), []byte("#EXTM3U\n#"+string(kind)+"\n"), 0o644)
}

func (f *fakeTranscoder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
