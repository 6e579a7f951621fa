// Package consumer reads document events from Kafka and indexes them
// through the shard router.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/resilience"
)

// IndexEvent is the message body of the document ingest topic. Without a
// ShardID the router picks the shard from the document id.
type IndexEvent struct {
	DocumentID string            `json:"document_id"`
	ShardID    *int              `json:"shard_id,omitempty"`
	Fields     map[string]string `json:"fields"`
}

// Event types carried in the event-type header.
const (
	EventIndexDocument = "index-document"
	EventIndexComplete = "index-complete"
)

// IndexComplete is published after a document was indexed or rejected.
type IndexComplete struct {
	DocumentID string    `json:"document_id"`
	ShardID    int       `json:"shard_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher = kafka.Publisher

// StatusRecorder is satisfied by *postgres.Client.
type StatusRecorder interface {
	RecordStatus(ctx context.Context, docID string, shardID int, status, cause string) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessageSharded returns a Kafka MessageHandler that routes each
// event to its shard engine. statuses, completions and m may be nil; when
// set, the document status is recorded and an IndexComplete event is
// published.
func HandleMessageSharded(router *shard.Router, statuses StatusRecorder, completions Publisher, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != EventIndexDocument {
			logger.Debug("ignoring event", "type", msg.Type, "offset", msg.Offset)
			return nil
		}
		event, err := kafka.DecodeJSON[IndexEvent](msg.Value)
		if err != nil {
			m.DocumentConsumed("rejected")
			return resilience.Permanent(err)
		}
		if event.DocumentID == "" {
			m.DocumentConsumed("rejected")
			return resilience.Permanent(fmt.Errorf("index event at offset %d has no document id", msg.Offset))
		}
		shardID := router.ShardFor(event.DocumentID)
		if event.ShardID != nil {
			shardID = *event.ShardID
		}

		engine, err := router.Route(shardID)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("routing shard %d: %w", shardID, err))
		}

		logger.Debug("processing index event",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
		)

		if err := engine.IndexDocument(event.DocumentID, event.Fields); err != nil {
			if errors.Is(err, apperrors.ErrDocumentExists) {
				logger.Warn("duplicate document skipped", "doc_id", event.DocumentID)
				m.DocumentConsumed("duplicate")
				return nil
			}
			m.DocumentConsumed("failed")
			recordStatus(ctx, statuses, event.DocumentID, shardID, "FAILED", err, logger)
			notify(ctx, completions, event.DocumentID, shardID, "FAILED", err, logger)
			if errors.Is(err, apperrors.ErrAnalysis) {
				return resilience.Permanent(fmt.Errorf("document %s rejected: %w", event.DocumentID, err))
			}
			return fmt.Errorf("indexing document %s in shard %d: %w", event.DocumentID, shardID, err)
		}

		m.DocumentConsumed("indexed")
		recordStatus(ctx, statuses, event.DocumentID, shardID, "INDEXED", nil, logger)
		notify(ctx, completions, event.DocumentID, shardID, "INDEXED", nil, logger)

		logger.Info("document indexed",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
		)
		return nil
	}
}

func notify(ctx context.Context, p Publisher, docID string, shardID int, status string, cause error, logger *slog.Logger) {
	if p == nil {
		return
	}
	msg := IndexComplete{
		DocumentID: docID,
		ShardID:    shardID,
		Status:     status,
		IndexedAt:  time.Now().UTC(),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	if err := p.Publish(ctx, kafka.Event{Key: docID, Value: msg, Type: EventIndexComplete}); err != nil {
		logger.Error("failed to publish index completion",
			"doc_id", docID,
			"error", err,
		)
	}
}

func recordStatus(ctx context.Context, r StatusRecorder, docID string, shardID int, status string, cause error, logger *slog.Logger) {
	if r == nil {
		return
	}
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.RecordStatus(ctx, docID, shardID, status, msg); err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
