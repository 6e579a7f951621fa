package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
)

// Event is one JSON message. Key drives partitioning so every event about a
// document stays ordered on one partition.
type Event struct {
	Key   string
	Value any
	// Type, when set, is sent as the event-type header so consumers can
	// route without decoding the body.
	Type string
}

const (
	headerContentType = "content-type"
	headerEventType   = "event-type"
	headerPublishedAt = "published-at"
)

// Producer writes events to one topic and waits for all in-sync replicas.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: batchTimeout,
			Compression:  compressionCodec(cfg.Compression),
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// compressionCodec maps the configured name to a kafka-go codec. Unknown and
// empty names disable compression; config validation rejects typos earlier.
func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	}
	return 0
}

// Message renders e into the wire form Publish sends.
func (e Event) Message(now time.Time) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s event %q: %w", e.typeName(), e.Key, err)
	}
	headers := []kafka.Header{
		{Key: headerContentType, Value: []byte("application/json")},
		{Key: headerPublishedAt, Value: []byte(now.UTC().Format(time.RFC3339Nano))},
	}
	if e.Type != "" {
		headers = append(headers, kafka.Header{Key: headerEventType, Value: []byte(e.Type)})
	}
	return kafka.Message{Key: []byte(e.Key), Value: value, Headers: headers}, nil
}

func (e Event) typeName() string {
	if e.Type == "" {
		return "untyped"
	}
	return e.Type
}

// Publish blocks until the broker acknowledges the event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := event.Message(time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("publish failed", "key", event.Key, "type", event.typeName(), "error", err)
		return fmt.Errorf("publishing %s event %q: %w", event.typeName(), event.Key, err)
	}
	p.logger.Debug("event published", "key", event.Key, "type", event.typeName(), "bytes", len(msg.Value))
	return nil
}

// Close flushes buffered batches.
func (p *Producer) Close() error {
	return p.writer.Close()
}
