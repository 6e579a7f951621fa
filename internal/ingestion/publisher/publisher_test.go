package publisher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/resilience"
)

type fakeProducer struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(ctx context.Context, e kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type fakeStatuses struct {
	fails    int
	statuses map[string]string
}

func (f *fakeStatuses) RecordStatus(ctx context.Context, docID string, shardID int, status, cause string) error {
	if f.fails > 0 {
		f.fails--
		return errors.New("connection reset")
	}
	if f.statuses == nil {
		f.statuses = make(map[string]string)
	}
	f.statuses[docID] = status
	return nil
}

func newTestPublisher(statuses consumer.StatusRecorder, producer consumer.Publisher) *Publisher {
	p := New(statuses, producer, 4)
	p.backoff = resilience.Backoff{Attempts: 3, InitialDelay: time.Millisecond}
	return p
}

func TestIngestPublishesEvent(t *testing.T) {
	producer := &fakeProducer{}
	statuses := &fakeStatuses{fails: 1}
	p := newTestPublisher(statuses, producer)

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{
		ID:     "doc-1",
		Fields: map[string]string{"body": "quick fox"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.DocumentID != "doc-1" || resp.Status != StatusPending {
		t.Errorf("resp = %+v", resp)
	}
	if want := shard.For("doc-1", 4); resp.ShardID != want {
		t.Errorf("shard = %d, want %d", resp.ShardID, want)
	}
	if statuses.statuses["doc-1"] != StatusPending {
		t.Errorf("status not recorded after retry: %v", statuses.statuses)
	}
	if len(producer.events) != 1 {
		t.Fatalf("published %d events", len(producer.events))
	}
	ev := producer.events[0]
	body := ev.Value.(consumer.IndexEvent)
	if ev.Key != "doc-1" || body.ShardID == nil || *body.ShardID != resp.ShardID {
		t.Errorf("event = %+v", ev)
	}
}

func TestIngestGeneratesID(t *testing.T) {
	producer := &fakeProducer{}
	p := newTestPublisher(nil, producer)
	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Fields: map[string]string{"body": "fox"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.DocumentID) != 36 {
		t.Errorf("generated id %q is not a uuid", resp.DocumentID)
	}
}

func TestIngestPublishFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	p := newTestPublisher(nil, producer)
	for i := 0; i < 5; i++ {
		_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Fields: map[string]string{"body": "fox"}})
		if apperrors.HTTPStatusCode(err) != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: status = %d", i, apperrors.HTTPStatusCode(err))
		}
	}
	if p.BreakerState() != resilience.StateOpen {
		t.Errorf("breaker = %v, want open", p.BreakerState())
	}
	if err := p.Check(context.Background()); err == nil {
		t.Error("Check passed with an open breaker")
	}
}

func TestIngestStatusFailure(t *testing.T) {
	producer := &fakeProducer{}
	p := newTestPublisher(&fakeStatuses{fails: 10}, producer)
	_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{ID: "d", Fields: map[string]string{"body": "fox"}})
	if !errors.Is(err, apperrors.ErrShardUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(producer.events) != 0 {
		t.Error("event published without a status record")
	}
}
