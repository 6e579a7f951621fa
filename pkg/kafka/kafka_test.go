package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/resilience"
)

type captured struct{ events []Event }

func (c *captured) Publish(ctx context.Context, e Event) error {
	c.events = append(c.events, e)
	return nil
}

func testConsumer(h MessageHandler, dl Publisher) *Consumer {
	return &Consumer{
		handler:    h,
		backoff:    resilience.Backoff{Attempts: 3, InitialDelay: time.Millisecond},
		deadLetter: dl,
		logger:     slog.Default(),
	}
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	calls := 0
	dl := &captured{}
	c := testConsumer(func(ctx context.Context, msg Message) error {
		calls++
		if calls < 3 {
			return errors.New("shard busy")
		}
		return nil
	}, dl)
	if err := c.Process(context.Background(), Message{Offset: 4}); err != nil {
		t.Fatal(err)
	}
	if calls != 3 || len(dl.events) != 0 {
		t.Errorf("calls = %d, dead letters = %d", calls, len(dl.events))
	}
}

func TestProcessDeadLettersPermanentFailure(t *testing.T) {
	calls := 0
	dl := &captured{}
	c := testConsumer(func(ctx context.Context, msg Message) error {
		calls++
		return resilience.Permanent(errors.New("bad payload"))
	}, dl)
	msg := Message{Key: []byte("d1"), Value: []byte("{oops"), Topic: "document-ingest", Partition: 2, Offset: 9}
	if err := c.Process(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("permanent failure retried %d times", calls)
	}
	if len(dl.events) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dl.events))
	}
	got := dl.events[0]
	letter := got.Value.(DeadLetter)
	if got.Key != "d1" || got.Type != EventDeadLetter {
		t.Errorf("event = %+v", got)
	}
	if letter.Offset != 9 || letter.Partition != 2 || string(letter.Payload) != "{oops" || letter.Error != "bad payload" {
		t.Errorf("dead letter = %+v", letter)
	}
}

func TestProcessStopsOnCancel(t *testing.T) {
	dl := &captured{}
	c := testConsumer(func(ctx context.Context, msg Message) error {
		return errors.New("down")
	}, dl)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Process(ctx, Message{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(dl.events) != 0 {
		t.Error("cancelled message was dead-lettered")
	}
}

func TestEventMessageHeaders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := Event{Key: "d1", Value: map[string]int{"n": 1}, Type: "index-document"}.Message(now)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "d1" || string(msg.Value) != `{"n":1}` {
		t.Errorf("message = %s %s", msg.Key, msg.Value)
	}
	round := fromRecord(kafka.Message{Value: msg.Value, Headers: msg.Headers})
	if round.Type != "index-document" {
		t.Errorf("type = %q", round.Type)
	}

	if _, err := (Event{Key: "x", Value: func() {}}).Message(now); err == nil {
		t.Error("unencodable value accepted")
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		ID string `json:"id"`
	}
	raw, _ := json.Marshal(body{ID: "d1"})
	got, err := DecodeJSON[body](raw)
	if err != nil || got.ID != "d1" {
		t.Errorf("got %+v, %v", got, err)
	}
	if _, err := DecodeJSON[body]([]byte("nope")); err == nil {
		t.Error("invalid json accepted")
	}
}

func TestCompressionCodec(t *testing.T) {
	if compressionCodec("zstd") != kafka.Zstd || compressionCodec("lz4") != kafka.Lz4 {
		t.Error("codec mapping wrong")
	}
	if compressionCodec("none") != 0 {
		t.Error("none should disable compression")
	}
}
