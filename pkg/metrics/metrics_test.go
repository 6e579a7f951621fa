package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return pb.GetCounter().GetValue()
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ModelResolved("bm25")
	m.ModelFallback()
	m.Rebound("bm25", "stepwise")
	m.QueryBuilt("term")
	m.ObserveSearch("miss", 0.01, 3)
	m.SearchFailed()
	m.CacheHit()
	m.CacheMiss()
	m.DocumentConsumed("indexed")
	m.Flushed(nil)
	m.ObserveShard(0, 10)
	m.SetActiveSegments(2)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ModelResolved("stepwise")
	m.ModelResolved("stepwise")
	m.ModelFallback()
	m.Rebound("bm25", "stepwise")
	m.QueryBuilt("boolean")
	m.ObserveSearch("miss", 0.002, 0)
	m.ObserveSearch("hit", 0.001, 4)

	if got := counterValue(t, m.ModelsResolvedTotal.WithLabelValues("stepwise")); got != 2 {
		t.Errorf("models resolved = %v, want 2", got)
	}
	if got := counterValue(t, m.ModelFallbacksTotal); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := counterValue(t, m.SimilarityRebinds.WithLabelValues("bm25", "stepwise")); got != 1 {
		t.Errorf("rebinds = %v, want 1", got)
	}
	if got := counterValue(t, m.QueriesBuiltTotal.WithLabelValues("boolean")); got != 1 {
		t.Errorf("queries built = %v, want 1", got)
	}
	if got := counterValue(t, m.SearchQueriesTotal.WithLabelValues("zero_result")); got != 1 {
		t.Errorf("zero result searches = %v, want 1", got)
	}
	if got := counterValue(t, m.SearchQueriesTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit searches = %v, want 1", got)
	}
}

func TestIndexGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Flushed(nil)
	m.Flushed(errors.New("disk full"))
	m.ObserveShard(3, 42)
	m.SetActiveSegments(7)

	if got := counterValue(t, m.IndexFlushesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed flushes = %v, want 1", got)
	}
	var pb dto.Metric
	if err := m.ShardDocCount.WithLabelValues("3").Write(&pb); err != nil {
		t.Fatal(err)
	}
	if got := pb.GetGauge().GetValue(); got != 42 {
		t.Errorf("shard 3 docs = %v, want 42", got)
	}
	pb.Reset()
	if err := m.ActiveSegments.Write(&pb); err != nil {
		t.Fatal(err)
	}
	if got := pb.GetGauge().GetValue(); got != 7 {
		t.Errorf("active segments = %v, want 7", got)
	}
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("registering twice should panic")
		}
	}()
	New(reg)
}
