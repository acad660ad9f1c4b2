package service

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterSet holds one token bucket per tenant. Webhook bursts from one
// tenant's HRIS never starve another tenant's deliveries
type limiterSet struct {
	mu    sync.Mutex
	byID  map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	if rps <= 0 {
		rps = defaultWebhookRPS
	}
	if burst <= 0 {
		burst = defaultWebhookBurst
	}
	return &limiterSet{
		byID:  make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (s *limiterSet) allow(tenantID string) bool {
	s.mu.Lock()
	lim, ok := s.byID[tenantID]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.byID[tenantID] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}
