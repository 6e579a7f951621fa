// Package kafka wraps segmentio/kafka-go for the document pipeline: a keyed
// JSON producer and a group consumer with retries and an optional dead
// letter topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/resilience"
)

// Message is what a MessageHandler sees of a fetched record.
type Message struct {
	Key       []byte
	Value     []byte
	Type      string
	Topic     string
	Partition int
	Offset    int64
}

// MessageHandler processes one message. Returning a resilience.Permanent
// error skips the remaining retries.
type MessageHandler func(ctx context.Context, msg Message) error

// DeadLetter is published for every message the handler gave up on.
type DeadLetter struct {
	Topic     string    `json:"topic"`
	Partition int       `json:"partition"`
	Offset    int64     `json:"offset"`
	Error     string    `json:"error"`
	Payload   []byte    `json:"payload"`
	FailedAt  time.Time `json:"failed_at"`
}

// EventDeadLetter is the event-type header of dead letters.
const EventDeadLetter = "dead-letter"

// Publisher is satisfied by *Producer.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Consumer reads one topic as part of a consumer group. Offsets are
// committed after the handler finishes, whether it succeeded or the message
// was dead-lettered, so a poison message never blocks its partition.
type Consumer struct {
	reader     *kafka.Reader
	handler    MessageHandler
	backoff    resilience.Backoff
	deadLetter Publisher
	logger     *slog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithBackoff replaces the per-message retry policy.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *Consumer) { c.backoff = b }
}

// WithDeadLetter publishes messages that exhausted their retries to p.
func WithDeadLetter(p Publisher) Option {
	return func(c *Consumer) { c.deadLetter = p }
}

// NewConsumer joins cfg.ConsumerGroup on topic. A new group starts from the
// oldest retained message.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...Option) *Consumer {
	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		backoff: resilience.Backoff{Attempts: 3, InitialDelay: 200 * time.Millisecond},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is cancelled. It does not close the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		rec, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		msg := fromRecord(rec)
		if err := c.Process(ctx, msg); err != nil {
			// Cancelled mid-message: leave the offset for the next owner.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, rec); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", rec.Partition, "offset", rec.Offset, "error", err)
		}
	}
}

// Process runs the handler for msg with retries and dead-letters it on
// failure. It only returns an error when ctx ended first.
func (c *Consumer) Process(ctx context.Context, msg Message) error {
	op := fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
	err := resilience.Retry(ctx, op, c.backoff, func(ctx context.Context) error {
		return c.handler(ctx, msg)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Error("giving up on message",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"error", err,
	)
	if c.deadLetter == nil {
		return nil
	}
	dl := DeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Error:     err.Error(),
		Payload:   msg.Value,
		FailedAt:  time.Now().UTC(),
	}
	if perr := c.deadLetter.Publish(ctx, Event{Key: string(msg.Key), Value: dl, Type: EventDeadLetter}); perr != nil {
		c.logger.Error("dead letter publish failed", "offset", msg.Offset, "error", perr)
	}
	return nil
}

func fromRecord(rec kafka.Message) Message {
	msg := Message{
		Key:       rec.Key,
		Value:     rec.Value,
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	}
	for _, h := range rec.Headers {
		if h.Key == headerEventType {
			msg.Type = string(h.Value)
		}
	}
	return msg
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
