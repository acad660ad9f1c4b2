package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the index's prometheus instruments
type Metrics struct {
	Indexed      prometheus.Counter
	Observations prometheus.Counter
	Edges        prometheus.Counter
	Queries      *prometheus.CounterVec
}

// NewMetrics registers the crossindex metric set on reg. A nil reg uses
// the default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Indexed: f.NewCounter(prometheus.CounterOpts{
			Name: "crossindex_screenings_indexed_total",
			Help: "Completed screenings distilled into the index.",
		}),
		Observations: f.NewCounter(prometheus.CounterOpts{
			Name: "crossindex_observations_total",
			Help: "Observations written while indexing.",
		}),
		Edges: f.NewCounter(prometheus.CounterOpts{
			Name: "crossindex_edges_total",
			Help: "Edges upserted while indexing.",
		}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crossindex_queries_total",
			Help: "Graph reads by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) RecordIndexed(observations, edges int) {
	if m == nil {
		return
	}
	m.Indexed.Inc()
	m.Observations.Add(float64(observations))
	m.Edges.Add(float64(edges))
}

func (m *Metrics) RecordQuery(op string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(op).Inc()
}
