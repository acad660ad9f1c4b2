package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the webhook pipeline's prometheus instruments
type Metrics struct {
	Processed *prometheus.CounterVec
	Rejected  *prometheus.CounterVec
}

// NewMetrics registers the hris metric set on reg. A nil reg uses the
// default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_webhooks_processed_total",
			Help: "Deliveries routed to a handler, by event and action.",
		}, []string{"event", "action"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hris_webhooks_rejected_total",
			Help: "Deliveries refused before routing, by pipeline stage.",
		}, []string{"stage"}),
	}
}

func (m *Metrics) RecordProcessed(event, action string) {
	if m == nil {
		return
	}
	m.Processed.WithLabelValues(event, action).Inc()
}

func (m *Metrics) RecordRejected(stage string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(stage).Inc()
}
