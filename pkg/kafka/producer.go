package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

const contentTypeJSON = "application/json"

// Event is one record to publish. Key selects the partition; Value is
// encoded as JSON.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON events to a single topic.
type Producer struct {
	writer  *kafka.Writer
	topic   string
	logger  *slog.Logger
	skipped atomic.Int64
}

// NewProducer creates a Producer for topic. Messages are hash-partitioned by
// key and compressed with cfg.Compression.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Compression:  Codec(cfg.Compression),
	}
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Codec maps a configured compression name to the kafka-go codec. Unknown
// names and "none" disable compression.
func Codec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// PublishBatch writes events in one call. An event whose value cannot be
// encoded is logged and skipped; the rest of the batch is still written.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := EncodeBatch(events, func(e Event, err error) {
		p.skipped.Add(1)
		p.logger.Warn("skipping unencodable event", "key", e.Key, "error", err)
	})
	if len(messages) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d events to %s: %w: %w", len(messages), p.topic, apperrors.ErrUnavailable, err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// EncodeBatch turns events into kafka messages carrying a JSON content-type
// header. onError is called for every event that fails to encode.
func EncodeBatch(events []Event, onError func(Event, error)) []kafka.Message {
	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			if onError != nil {
				onError(e, err)
			}
			continue
		}
		messages = append(messages, kafka.Message{
			Key:     []byte(e.Key),
			Value:   value,
			Headers: []kafka.Header{{Key: "content-type", Value: []byte(contentTypeJSON)}},
		})
	}
	return messages
}

// Skipped returns the number of events dropped because they could not be
// encoded.
func (p *Producer) Skipped() int64 {
	return p.skipped.Load()
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
