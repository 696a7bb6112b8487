package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
	Logger   zerolog.Logger
}

// Message is one fetched record. It must be handed back to Commit to be acknowledged.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time

	raw kafkago.Message
}

// Consumer reads a topic as a member of a consumer group. Offsets are committed
// explicitly, so a message that is never committed is delivered again after a
// restart or rebalance.
type Consumer struct {
	reader *kafkago.Reader
	logger zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group id is empty")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}

	logger := cfg.Logger.With().
		Str("component", "kafka_consumer").
		Str("topic", cfg.Topic).
		Str("group", cfg.GroupID).
		Logger()
	logger.Info().Strs("brokers", cfg.Brokers).Msg("kafka reader created")

	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
			MaxWait:  cfg.MaxWait,
			// Commits are issued synchronously by the caller after the work is done.
			CommitInterval: 0,
		}),
		logger: logger,
	}, nil
}

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("kafka fetch: %w", err)
	}
	return Message{
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
		raw:       m,
	}, nil
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	if err := c.reader.CommitMessages(ctx, m.raw); err != nil {
		return fmt.Errorf("kafka commit: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// EnsureTopic creates the topic through the cluster controller if it does not exist.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions, replication int) error {
	if len(brokers) == 0 {
		return errors.New("brokers list is empty")
	}
	conn, err := kafkago.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	cc, err := kafkago.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cc.Close()

	return cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	})
}
