package module

import (
	"time"

	"backcheck/internal/platform/config"
)

// Options controls the request router
type Options struct {
	MaxRetries      int
	RetryBase       time.Duration
	RequestTimeout  time.Duration
	LatencyEstimate time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
	ProviderRPS     float64
	ProviderBurst   int
}

// FromConfig reads with CORE_ROUTER_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_ROUTER_")
	return Options{
		MaxRetries:      c.MayInt("RETRIES", 2),
		RetryBase:       c.MayDuration("RETRY_BASE", 500*time.Millisecond),
		RequestTimeout:  c.MayDuration("REQUEST_TIMEOUT", 30*time.Second),
		LatencyEstimate: c.MayDuration("LATENCY_ESTIMATE", 2*time.Second),
		BreakerFailures: c.MayInt("BREAKER_FAILURES", 3),
		BreakerOpenFor:  c.MayDuration("BREAKER_OPEN_FOR", 30*time.Second),
		ProviderRPS:     c.MayFloat64("PROVIDER_RPS", 5),
		ProviderBurst:   c.MayInt("PROVIDER_BURST", 10),
	}
}
