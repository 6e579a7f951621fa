// Package publisher records ingested documents as PENDING and publishes
// them to the document ingest topic for the indexer.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/resilience"
	"github.com/google/uuid"
)

const StatusPending = "PENDING"

// Publisher coordinates status bookkeeping and Kafka event production.
type Publisher struct {
	statuses  consumer.StatusRecorder
	producer  consumer.Publisher
	breaker   *resilience.Breaker
	backoff   resilience.Backoff
	numShards int
	logger    *slog.Logger
}

// New creates a Publisher. statuses may be nil, in which case documents are
// published without a PENDING record.
func New(statuses consumer.StatusRecorder, producer consumer.Publisher, numShards int) *Publisher {
	return &Publisher{
		statuses:  statuses,
		producer:  producer,
		breaker:   resilience.NewBreaker("document-ingest", resilience.BreakerConfig{}),
		backoff:   resilience.DefaultBackoff(),
		numShards: numShards,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Ingest assigns the document its shard, records it as PENDING and
// publishes an IndexEvent. The event is keyed by document id so updates of
// one document stay ordered.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	docID := req.ID
	if docID == "" {
		docID = uuid.NewString()
	}
	shardID := shard.For(docID, p.numShards)

	if p.statuses != nil {
		err := resilience.Retry(ctx, "record pending status", p.backoff, func(ctx context.Context) error {
			return p.statuses.RecordStatus(ctx, docID, shardID, StatusPending, "")
		})
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable,
				"recording document %s: %v", docID, err)
		}
	}

	event := kafka.Event{
		Key:  docID,
		Type: consumer.EventIndexDocument,
		Value: consumer.IndexEvent{
			DocumentID: docID,
			ShardID:    &shardID,
			Fields:     req.Fields,
		},
	}
	err := p.breaker.Do(func() error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			p.logger.Error("failed to publish to kafka, document stuck in PENDING",
				"doc_id", docID,
				"shard_id", shardID,
				"error", err,
			)
		}
		return nil, apperrors.Newf(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable,
			"publishing document %s: %v", docID, err)
	}

	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     StatusPending,
		ShardID:    shardID,
	}, nil
}

// BreakerState reports whether publishing is currently being rejected.
func (p *Publisher) BreakerState() resilience.State {
	return p.breaker.State()
}

// Check is a health probe over the publish breaker.
func (p *Publisher) Check(ctx context.Context) error {
	if s := p.breaker.State(); s == resilience.StateOpen {
		return fmt.Errorf("publish circuit %s", s)
	}
	return nil
}
