package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
	"github.com/romariotrain/vod-platform/internal/media/repository"
)

// Sink receives search documents for ready records. Upserts must be idempotent.
type Sink interface {
	Upsert(ctx context.Context, doc models.SearchDocument) error
}

// RecordReader resolves the current state of a record. The outbox payload is a
// snapshot taken when the record became ready and may predate a title edit.
type RecordReader interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Media, error)
}

// Publisher drains MediaReady rows from the outbox into the search index.
// Delivery is at-least-once: a row is marked processed only after the sink accepted it.
type Publisher struct {
	store     repository.OutboxStore
	records   RecordReader
	sink      Sink
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

type PublisherConfig struct {
	Store     repository.OutboxStore
	Records   RecordReader
	Sink      Sink
	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("outbox store is required")
	}
	if cfg.Records == nil {
		return nil, fmt.Errorf("record reader is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("search sink is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got: %v", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got: %d", cfg.BatchSize)
	}

	return &Publisher{
		store:     cfg.Store,
		records:   cfg.Records,
		sink:      cfg.Sink,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With().Str("component", "outbox_publisher").Logger(),
	}, nil
}

// Start polls the outbox every interval until ctx is cancelled.
// A failing batch is logged and retried on the next tick.
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox publisher stopped")
			return nil

		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error().
					Err(err).
					Msg("failed to publish batch")
			}
		}
	}
}

// PublishBatch handles one batch of pending rows and reports how many reached the sink.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	res, err := p.publishBatch(ctx)
	return res.published, err
}

// Drain publishes batches until the outbox is empty. It stops with an error when a
// batch retires no row, since the next batch would return the same rows.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		res, err := p.publishBatch(ctx)
		total += res.published
		if err != nil {
			return total, err
		}
		if res.total == 0 {
			return total, nil
		}
		if res.retired == 0 {
			return total, fmt.Errorf("outbox stuck: %d pending rows failed to publish", res.failed)
		}
	}
}

type batchResult struct {
	total     int
	published int
	failed    int
	dropped   int
	retired   int
}

func (p *Publisher) publishBatch(ctx context.Context) (batchResult, error) {
	var res batchResult

	records, err := p.store.GetPending(ctx, p.batchSize)
	if err != nil {
		return res, fmt.Errorf("get pending records: %w", err)
	}
	res.total = len(records)

	if len(records) == 0 {
		p.logger.Debug().Msg("no pending events to publish")
		return res, nil
	}

	for _, record := range records {
		eventLogger := p.logger.With().
			Str("event_id", record.EventID).
			Str("event_type", record.EventType).
			Str("media_uuid", record.AggregateID).
			Int64("outbox_id", record.ID).
			Logger()

		doc, err := decode(record)
		if err != nil {
			// A row that cannot be decoded will never succeed; retire it.
			eventLogger.Error().Err(err).Msg("dropping undecodable outbox row")
			res.dropped++
			res.retire(p.markProcessed(ctx, record.ID, eventLogger))
			continue
		}

		current, err := p.records.GetByUUID(ctx, doc.MediaUUID)
		if errors.Is(err, models.ErrNotFound) {
			eventLogger.Info().Msg("record deleted before publish, dropping event")
			res.dropped++
			res.retire(p.markProcessed(ctx, record.ID, eventLogger))
			continue
		}
		if err != nil {
			eventLogger.Error().Err(err).Msg("failed to load record")
			res.failed++
			continue
		}
		doc = models.NewSearchDocument(current)

		if err := p.sink.Upsert(ctx, doc); err != nil {
			eventLogger.Error().
				Err(err).
				Msg("failed to upsert search document")
			res.failed++
			continue
		}
		res.published++
		res.retire(p.markProcessed(ctx, record.ID, eventLogger))
	}

	p.logger.Info().
		Int("total", res.total).
		Int("published", res.published).
		Int("failed", res.failed).
		Int("dropped", res.dropped).
		Msg("batch processing completed")

	return res, nil
}

func (r *batchResult) retire(ok bool) {
	if ok {
		r.retired++
	}
}

func (p *Publisher) markProcessed(ctx context.Context, id int64, log zerolog.Logger) bool {
	if err := p.store.MarkProcessed(ctx, id); err != nil {
		// Left pending; the next upsert overwrites the same document.
		log.Warn().Err(err).Msg("failed to mark event as processed")
		return false
	}
	return true
}

func decode(record models.OutboxRecord) (models.SearchDocument, error) {
	var doc models.SearchDocument
	if record.EventType != models.MediaReadyEventType {
		return doc, fmt.Errorf("unknown event type %q", record.EventType)
	}
	if err := json.Unmarshal(record.Payload, &doc); err != nil {
		return doc, fmt.Errorf("decode payload: %w", err)
	}
	if doc.MediaUUID.String() != record.AggregateID {
		return doc, fmt.Errorf("payload uuid %s does not match aggregate %s", doc.MediaUUID, record.AggregateID)
	}
	return doc, nil
}
