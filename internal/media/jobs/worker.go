package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/artifacts"
	"github.com/romariotrain/vod-platform/internal/media/domain"
	"github.com/romariotrain/vod-platform/internal/media/kafka"
	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Transcoder interface {
	Transcode(ctx context.Context, input string, kind models.MediaKind, outDir string) error
}

type WorkerConfig struct {
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// TranscodeTimeout bounds one transcoder run; zero means no deadline.
	TranscodeTimeout time.Duration
	LockRetryDelay   time.Duration
	Logger           zerolog.Logger
}

// Worker consumes transcode jobs one at a time. A message is committed only after
// the record is ready or the message was deliberately discarded; a failed job is
// handled again in place, since committing a later offset would acknowledge it.
type Worker struct {
	source     Source
	repo       repository.MediaRepository
	transcoder Transcoder
	tree       *artifacts.Tree
	cfg        WorkerConfig
	logger     zerolog.Logger
}

func NewWorker(source Source, repo repository.MediaRepository, transcoder Transcoder, tree *artifacts.Tree, cfg WorkerConfig) *Worker {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = 250 * time.Millisecond
	}
	return &Worker{
		source:     source,
		repo:       repo,
		transcoder: transcoder,
		tree:       tree,
		cfg:        cfg,
		logger:     cfg.Logger.With().Str("component", "transcode_worker").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Dur("retry_backoff", w.cfg.RetryBackoff).
		Dur("max_backoff", w.cfg.MaxBackoff).
		Dur("transcode_timeout", w.cfg.TranscodeTimeout).
		Msg("worker started")

	fetchFailures := 0
	for {
		msg, err := w.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("worker stopped")
				return nil
			}
			w.logger.Warn().Err(err).Msg("fetch failed")
			if !w.sleep(ctx, w.backoff(fetchFailures)) {
				return nil
			}
			fetchFailures++
			continue
		}
		fetchFailures = 0

		if !w.process(ctx, msg) {
			w.logger.Info().Msg("worker stopped")
			return nil
		}
	}
}

// process handles msg until it can be committed. It returns false if ctx ended first.
func (w *Worker) process(ctx context.Context, msg kafka.Message) bool {
	log := w.logger.With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Logger()

	for attempt := 0; ; attempt++ {
		err := w.Handle(ctx, msg)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return false
		}
		delay := w.backoff(attempt)
		log.Error().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("job failed, will retry")
		if !w.sleep(ctx, delay) {
			return false
		}
	}

	if err := w.source.Commit(ctx, msg); err != nil {
		// Uncommitted work is redelivered later and handled idempotently.
		log.Warn().Err(err).Msg("commit failed")
	}
	return true
}

// Handle runs one delivery of msg. A nil error means the message may be acknowledged.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	job, err := DecodeMessage(msg.Value)
	if err != nil {
		w.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("discarding malformed message")
		return nil
	}
	log := w.logger.With().Str("media_uuid", job.MediaUUID.String()).Logger()

	m, err := w.repo.GetByUUID(ctx, job.MediaUUID)
	if errors.Is(err, models.ErrNotFound) {
		log.Info().Msg("record deleted, discarding job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if domain.IsTerminal(m.Status) {
		log.Debug().Msg("record already ready, discarding job")
		return nil
	}

	outDir, err := w.tree.MediaDir(m.OwnerIdentity, m.UUID)
	if err != nil {
		log.Error().Err(err).Str("owner", m.OwnerIdentity).Msg("record cannot be laid out, discarding job")
		return nil
	}

	if _, err := w.repo.AdvanceStatus(ctx, m.UUID, models.ProcessingStatus); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Info().Msg("record deleted, discarding job")
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	lock := flock.New(w.tree.LockPath(m.UUID))
	if _, err := lock.TryLockContext(ctx, w.cfg.LockRetryDelay); err != nil {
		return fmt.Errorf("lock %s: %w", m.UUID, err)
	}
	defer lock.Unlock()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tctx := ctx
	if w.cfg.TranscodeTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, w.cfg.TranscodeTimeout)
		defer cancel()
	}

	started := time.Now()
	log.Info().Str("kind", string(m.Kind)).Str("out_dir", outDir).Msg("transcoding")
	if err := w.transcoder.Transcode(tctx, w.tree.UploadPath(m.UUID), m.Kind, outDir); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}

	ready, err := w.repo.MarkReady(ctx, m.UUID)
	if errors.Is(err, models.ErrNotFound) {
		log.Info().Msg("record deleted while transcoding, dropping output")
		_ = w.tree.RemoveMedia(m.OwnerIdentity, m.UUID)
		_ = w.tree.RemoveUpload(m.UUID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	if err := w.tree.RemoveUpload(m.UUID); err != nil {
		log.Warn().Err(err).Msg("failed to remove raw upload")
	}
	log.Info().Bool("advanced", ready).Dur("took", time.Since(started)).Msg("media ready")
	return nil
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.RetryBackoff
	for i := 0; i < attempt && d < w.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, w.cfg.MaxBackoff)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
