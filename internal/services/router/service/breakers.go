package service

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"backcheck/internal/platform/logger"
)

// breakerSet holds one circuit breaker per provider, shared across the
// process. Breakers trip after a run of consecutive transport-level
// failures and allow a single half-open probe once the open window ends
type breakerSet struct {
	mu       sync.Mutex
	byID     map[string]*gobreaker.TwoStepCircuitBreaker
	failures uint32
	openFor  time.Duration
	log      logger.Logger
	onChange func(provider string, state gobreaker.State)
}

func newBreakerSet(failures int, openFor time.Duration, log logger.Logger, onChange func(string, gobreaker.State)) *breakerSet {
	if failures <= 0 {
		failures = 3
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &breakerSet{
		byID:     make(map[string]*gobreaker.TwoStepCircuitBreaker),
		failures: uint32(failures),
		openFor:  openFor,
		log:      log,
		onChange: onChange,
	}
}

func (s *breakerSet) get(providerID string) *gobreaker.TwoStepCircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.byID[providerID]
	if !ok {
		cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        providerID,
			MaxRequests: 1, // one half-open probe
			Timeout:     s.openFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= s.failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.log.Info().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("breaker state change")
				if s.onChange != nil {
					s.onChange(name, to)
				}
			},
		})
		s.byID[providerID] = cb
	}
	return cb
}

// open reports whether the provider's breaker currently rejects normal
// traffic. Reading the state also rolls an elapsed open window over to
// half-open, so the next caller gets the probe slot
func (s *breakerSet) open(providerID string) bool {
	return s.get(providerID).State() == gobreaker.StateOpen
}

// states snapshots every known breaker for readiness reporting
func (s *breakerSet) states() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.byID))
	for id, cb := range s.byID {
		out[id] = cb.State().String()
	}
	return out
}
