package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "WARNING", "json")
	log.Info("hidden")
	log.Warn("shown", "shard_id", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["shard_id"] != float64(3) {
		t.Errorf("record = %v", rec)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "text"))
	defer slog.SetDefault(prev)

	FromContext(WithRequestID(context.Background(), "req-42")).Info("searching")
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("log = %q", buf.String())
	}

	buf.Reset()
	FromContext(context.Background()).Info("searching")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log without id = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
