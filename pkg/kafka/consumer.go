// Package kafka provides the producer and consumer for the expansion event
// stream, backed by segmentio/kafka-go. Events travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/resilience"
)

// MessageHandler processes one message. Returning an error that wraps
// apperrors.ErrInvalidInput marks the message as undeliverable; any other
// error is retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads a topic as part of a consumer group and hands every
// message to a MessageHandler.
type Consumer struct {
	reader    *kafka.Reader
	handler   MessageHandler
	retry     resilience.RetryConfig
	backoff   resilience.Backoff
	logger    *slog.Logger
	processed atomic.Int64
	skipped   atomic.Int64
}

// NewConsumer creates a Consumer for topic. A new consumer group starts at
// cfg.StartOffset (latest unless set to earliest).
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	start := kafka.LastOffset
	if cfg.StartOffset == "earliest" {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: start,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r *kafka.Reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			Backoff:     resilience.Backoff{InitialDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second},
		},
		backoff: resilience.Backoff{InitialDelay: 200 * time.Millisecond, MaxDelay: 30 * time.Second},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled and closes the reader on return.
// Fetch errors back off exponentially. A message is committed once it has
// been handled or skipped.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")

	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			failures++
			c.logger.Error("failed to fetch message", "error", err, "consecutive_failures", failures)
			if c.backoff.Sleep(ctx, failures) != nil {
				return nil
			}
			continue
		}
		failures = 0

		c.handle(ctx, msg)
		if ctx.Err() != nil {
			// Leave the offset uncommitted so the message is redelivered.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handle runs the handler with retries and reports whether it succeeded.
// Invalid messages are not retried.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	err := resilience.Retry(ctx, "kafka-handle", c.retry, func(ctx context.Context) error {
		err := c.handler(ctx, msg.Key, msg.Value)
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		c.skipped.Add(1)
		c.logger.Error("skipping message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return false
	}
	c.processed.Add(1)
	return true
}

// Processed returns the number of messages handled successfully.
func (c *Consumer) Processed() int64 {
	return c.processed.Load()
}

// Skipped returns the number of messages given up on.
func (c *Consumer) Skipped() int64 {
	return c.skipped.Load()
}

// DecodeJSON unmarshals a message value into T. Decode failures wrap
// apperrors.ErrInvalidInput.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w: %w", apperrors.ErrInvalidInput, err)
	}
	return result, nil
}
