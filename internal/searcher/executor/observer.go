package executor

import (
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
)

// MetricsObserver feeds similarity resolution, rebinding and query
// construction events into Prometheus. It satisfies similarity.Observer,
// search.Observer and builder.Observer.
type MetricsObserver struct {
	m *metrics.Metrics
}

func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) ModelResolved(kind string) { o.m.ModelResolved(kind) }
func (o *MetricsObserver) ModelFallback()            { o.m.ModelFallback() }
func (o *MetricsObserver) QueryBuilt(shape string)   { o.m.QueryBuilt(shape) }

func (o *MetricsObserver) SimilarityRebound(from, to similarity.Kind) {
	o.m.Rebound(from.String(), to.String())
}
