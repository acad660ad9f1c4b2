package service

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	routerdom "backcheck/internal/services/router/domain"
)

// Metrics are the dispatcher's prometheus instruments
type Metrics struct {
	QueueDepth prometheus.Gauge
	QueueWait  *prometheus.HistogramVec
	Results    *prometheus.CounterVec
}

// NewMetrics registers the dispatcher metric set on reg. A nil reg uses
// the default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Items waiting in the priority queue.",
		}),
		QueueWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_queue_wait_seconds",
			Help:    "Time from submission to handoff, by phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_results_total",
			Help: "Completed dispatches by info type and outcome.",
		}, []string{"info_type", "outcome"}),
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) RecordQueueWait(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.QueueWait.WithLabelValues(phase).Observe(seconds)
}

func (m *Metrics) RecordResult(infoType string, res routerdom.RoutedResult) {
	if m == nil {
		return
	}
	outcome := "success"
	if !res.Success {
		outcome = "failure"
		if res.Failure != nil {
			outcome = strings.ToLower(string(res.Failure.Reason))
		}
	}
	m.Results.WithLabelValues(infoType, outcome).Inc()
}
