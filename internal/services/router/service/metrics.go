package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the request router
type Metrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec
	Retries      *prometheus.CounterVec
	CostCents    *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all router metrics on reg. Pass a
// private registry in tests to avoid duplicate registration
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_requests_total",
				Help: "Routed requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_request_duration_seconds",
				Help:    "Observed provider latency per dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_cache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"}, // hit_fresh, hit_stale, miss
		),
		Retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_retries_total",
				Help: "Retry attempts by provider",
			},
			[]string{"provider"},
		),
		CostCents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_provider_cost_cents_total",
				Help: "Provider spend in cents",
			},
			[]string{"provider", "check"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "router_breaker_state",
				Help: "Breaker state per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
	}
}

// RecordOutcome counts one routed-request outcome
func (m *Metrics) RecordOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(provider, outcome).Inc()
}

// RecordDispatch observes one provider call
func (m *Metrics) RecordDispatch(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(provider).Observe(seconds)
}

// RecordCacheLookup counts one cache probe result
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordRetry counts one retry against a provider
func (m *Metrics) RecordRetry(provider string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(provider).Inc()
}

// RecordCost accumulates provider spend
func (m *Metrics) RecordCost(provider, check string, cents int) {
	if m == nil || cents <= 0 {
		return
	}
	m.CostCents.WithLabelValues(provider, check).Add(float64(cents))
}

// SetBreakerState reflects a breaker transition on the gauge
func (m *Metrics) SetBreakerState(provider string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(provider).Set(state)
}
