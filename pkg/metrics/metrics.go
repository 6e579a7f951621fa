// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     *prometheus.CounterVec
	IndexFlushesTotal    *prometheus.CounterVec
	ShardDocCount        *prometheus.GaugeVec
	ActiveSegments       prometheus.Gauge
	ModelsResolvedTotal  *prometheus.CounterVec
	ModelFallbacksTotal  prometheus.Counter
	SimilarityRebinds    *prometheus.CounterVec
	QueriesBuiltTotal    *prometheus.CounterVec
}

// New creates all collectors and registers them with reg, or with the
// default registry when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents consumed by status (indexed, failed, duplicate).",
			},
			[]string{"status"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of documents per shard.",
			},
			[]string{"shard_id"},
		),
		ActiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_segments",
				Help: "Number of segments open for searching.",
			},
		),
		ModelsResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_models_resolved_total",
				Help: "Similarity selectors resolved, by model kind.",
			},
			[]string{"kind"},
		),
		ModelFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "similarity_model_fallbacks_total",
				Help: "Unknown similarity selectors resolved to the fallback model.",
			},
		),
		SimilarityRebinds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_rebinds_total",
				Help: "Term clauses scored through a searcher rebound to another model.",
			},
			[]string{"from", "to"},
		),
		QueriesBuiltTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multistep_queries_built_total",
				Help: "Multistep queries built, by resulting shape.",
			},
			[]string{"shape"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.ShardDocCount,
		m.ActiveSegments,
		m.ModelsResolvedTotal,
		m.ModelFallbacksTotal,
		m.SimilarityRebinds,
		m.QueriesBuiltTotal,
	)

	return m
}

// The methods below are safe on a nil *Metrics so components can record
// unconditionally.

func (m *Metrics) ModelResolved(kind string) {
	if m == nil {
		return
	}
	m.ModelsResolvedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ModelFallback() {
	if m == nil {
		return
	}
	m.ModelFallbacksTotal.Inc()
}

func (m *Metrics) Rebound(from, to string) {
	if m == nil {
		return
	}
	m.SimilarityRebinds.WithLabelValues(from, to).Inc()
}

func (m *Metrics) QueryBuilt(shape string) {
	if m == nil {
		return
	}
	m.QueriesBuiltTotal.WithLabelValues(shape).Inc()
}

// ObserveSearch records one executed search.
func (m *Metrics) ObserveSearch(cacheStatus string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(seconds)
	m.SearchResultsCount.Observe(float64(results))
	resultType := cacheStatus
	if results == 0 {
		resultType = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
}

func (m *Metrics) SearchFailed() {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues("error").Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) DocumentConsumed(status string) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Flushed(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.IndexFlushesTotal.WithLabelValues(status).Inc()
}

// ObserveShard records a shard's document count.
func (m *Metrics) ObserveShard(shardID, docs int) {
	if m == nil {
		return
	}
	m.ShardDocCount.WithLabelValues(strconv.Itoa(shardID)).Set(float64(docs))
}

func (m *Metrics) SetActiveSegments(n int) {
	if m == nil {
		return
	}
	m.ActiveSegments.Set(float64(n))
}
