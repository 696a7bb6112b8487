package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/auth"
	"github.com/romariotrain/vod-platform/internal/config"
	"github.com/romariotrain/vod-platform/internal/media/artifacts"
	"github.com/romariotrain/vod-platform/internal/media/ffmpeg"
	"github.com/romariotrain/vod-platform/internal/media/httpapi"
	"github.com/romariotrain/vod-platform/internal/media/jobs"
	"github.com/romariotrain/vod-platform/internal/media/kafka"
	"github.com/romariotrain/vod-platform/internal/media/outbox"
	"github.com/romariotrain/vod-platform/internal/media/search"
	"github.com/romariotrain/vod-platform/internal/media/service"
	"github.com/romariotrain/vod-platform/internal/storage/postgres"
)

// Services holds the connections shared by every task of a process. It is built
// once by Open and released by Close.
type Services struct {
	Config *config.Config
	Logger zerolog.Logger

	DB         *sqlx.DB
	Repo       *postgres.MediaRepo
	Outbox     *postgres.OutboxRepo
	Producer   *kafka.Producer
	Dispatcher *jobs.Dispatcher
	Index      *search.Index
	Tree       *artifacts.Tree

	closers []func() error
}

func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	s := &Services{Config: cfg, Logger: logger}
	if err := s.open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) open(ctx context.Context) error {
	cfg, logger := s.Config, s.Logger

	var err error

	s.DB, err = postgres.Connect(ctx, cfg.Database.DSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	s.closers = append(s.closers, s.DB.Close)

	if cfg.Database.AutoMigrate {
		if err = postgres.Migrate(ctx, s.DB); err != nil {
			return err
		}
	}
	s.Repo = postgres.NewMediaRepo(s.DB)
	s.Outbox = postgres.NewOutboxRepo(s.DB)

	if s.Tree, err = artifacts.NewTree(cfg.Storage.UploadDir); err != nil {
		return err
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
		logger.Warn().Err(err).Str("topic", cfg.Kafka.Topic).Msg("could not ensure topic")
	}
	s.Producer, err = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		WriteTimeout: cfg.Kafka.WriteTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	if err := s.Producer.HealthCheck(ctx); err != nil {
		logger.Warn().Err(err).Msg("kafka brokers unreachable")
	}
	s.closers = append(s.closers, s.closeProducer)
	s.Dispatcher = jobs.NewDispatcher(s.Producer, s.Repo, logger)

	s.Index, err = search.New(search.Config{
		Addresses: cfg.Search.Addresses,
		Index:     cfg.Search.Index,
		Username:  cfg.Search.Username,
		Password:  cfg.Search.Password,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := s.Index.EnsureIndex(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not ensure search index")
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Services) closeProducer() error {
	m := s.Producer.GetMetrics()
	s.Logger.Info().
		Int64("published", m.MessagesPublished).
		Int64("failed", m.MessagesFailed).
		Dur("avg_publish", m.AvgPublishTime).
		Msg("producer closing")
	return s.Producer.Close()
}

func (s *Services) NewRecoverer() *jobs.Recoverer {
	return jobs.NewRecoverer(s.Repo, s.Dispatcher, s.Logger)
}

func (s *Services) NewHTTPHandler() (http.Handler, error) {
	verifier, err := auth.NewJWTVerifier(s.Config.Auth.JWTSecret, s.Config.Auth.Issuer, s.Config.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	svc := service.New(service.Deps{
		Repo:       s.Repo,
		Tree:       s.Tree,
		Classifier: ffmpeg.NewProber(s.Config.Transcode.FFprobePath, s.Logger),
		Dispatcher: s.Dispatcher,
		Index:      s.Index,
		Logger:     s.Logger,
	})

	h := httpapi.New(svc, verifier, httpapi.Config{
		PublicURL:      s.Config.HTTP.PublicURL,
		MaxUploadBytes: s.Config.HTTP.MaxUploadBytes,
		UploaderRole:   s.Config.Auth.UploaderRole,
		Logger:         s.Logger,
	})
	return httpapi.NewRouter(h), nil
}

// NewWorker joins the consumer group. The consumer is closed by Close.
func (s *Services) NewWorker() (*jobs.Worker, error) {
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: s.Config.Kafka.Brokers,
		Topic:   s.Config.Kafka.Topic,
		GroupID: s.Config.Kafka.GroupID,
		Logger:  s.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	s.closers = append(s.closers, consumer.Close)

	transcoder := ffmpeg.NewHLSTranscoder(ffmpeg.HLSConfig{
		Binary:         s.Config.Transcode.FFmpegPath,
		SegmentSeconds: s.Config.Transcode.SegmentSeconds,
		VideoPreset:    s.Config.Transcode.VideoPreset,
		Logger:         s.Logger,
	})

	return jobs.NewWorker(consumer, s.Repo, transcoder, s.Tree, jobs.WorkerConfig{
		RetryBackoff:     s.Config.Kafka.RetryBackoff,
		MaxBackoff:       s.Config.Kafka.MaxBackoff,
		TranscodeTimeout: s.Config.Transcode.Timeout,
		Logger:           s.Logger,
	}), nil
}

func (s *Services) NewOutboxPublisher() (*outbox.Publisher, error) {
	return outbox.NewPublisher(outbox.PublisherConfig{
		Store:     s.Outbox,
		Records:   s.Repo,
		Sink:      s.Index,
		Interval:  s.Config.Outbox.Interval,
		BatchSize: s.Config.Outbox.BatchSize,
		Logger:    s.Logger,
	})
}

func (s *Services) NewReconciler() *search.Reconciler {
	return search.NewReconciler(s.Index, s.Repo, s.Config.Reconcile.Interval, s.Config.Reconcile.PageSize, s.Logger)
}
