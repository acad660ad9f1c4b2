package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the orchestrator's prometheus instruments
type Metrics struct {
	Screenings     *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	PhaseSeconds   *prometheus.HistogramVec
	TypeIterations *prometheus.HistogramVec
	Confidence     *prometheus.HistogramVec
	RiskScore      prometheus.Histogram
}

// NewMetrics registers the screening metric set on reg. A nil reg uses
// the default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Screenings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screenings_total",
			Help: "Screenings reaching a terminal status.",
		}, []string{"status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screening_duration_seconds",
			Help:    "Wall time from run start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
		PhaseSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screening_phase_seconds",
			Help:    "Wall time per execution phase.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"phase"}),
		TypeIterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screening_sar_iterations",
			Help:    "Iterations per info type at loop exit.",
			Buckets: prometheus.LinearBuckets(1, 1, 4),
		}, []string{"info_type"}),
		Confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screening_sar_confidence",
			Help:    "Final confidence per info type.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"info_type"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "screening_risk_score",
			Help:    "Overall risk score of complete screenings.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

func (m *Metrics) RecordScreening(status string, seconds float64) {
	if m == nil {
		return
	}
	m.Screenings.WithLabelValues(status).Inc()
	m.Duration.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) RecordPhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseSeconds.WithLabelValues(phase).Observe(seconds)
}

func (m *Metrics) RecordType(infoType string, iterations int, confidence float64) {
	if m == nil {
		return
	}
	m.TypeIterations.WithLabelValues(infoType).Observe(float64(iterations))
	m.Confidence.WithLabelValues(infoType).Observe(confidence)
}

func (m *Metrics) RecordRiskScore(overall int) {
	if m == nil {
		return
	}
	m.RiskScore.Observe(float64(overall))
}
