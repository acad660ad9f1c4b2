package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterSet holds one token bucket per provider. Buckets are shared
// across every screening in the process; all access goes through here
type limiterSet struct {
	mu    sync.Mutex
	byID  map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterSet{
		byID:  make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (s *limiterSet) get(providerID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.byID[providerID]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.byID[providerID] = lim
	}
	return lim
}

// tokenDelay reports how long the caller would wait for one token.
// Zero means a token is available now. The reservation is cancelled
// when the caller cannot afford the wait, returning the token
type tokenDelay struct {
	res   *rate.Reservation
	delay time.Duration
}

func (s *limiterSet) reserve(providerID string) tokenDelay {
	lim := s.get(providerID)
	if lim.Allow() {
		return tokenDelay{}
	}
	res := lim.Reserve()
	return tokenDelay{res: res, delay: res.Delay()}
}

func (d tokenDelay) cancel() {
	if d.res != nil {
		d.res.Cancel()
	}
}
