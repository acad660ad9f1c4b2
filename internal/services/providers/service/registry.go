// Package service implements the provider registry
package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/queryplan"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/providers/domain"
)

// Registry tracks provider adapters and their check coverage.
// Registration order per check decides primary vs fallback routing
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]domain.Adapter
	byCheck map[compliance.CheckType][]string
}

// NewRegistry returns an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		byID:    map[string]domain.Adapter{},
		byCheck: map[compliance.CheckType][]string{},
	}
}

// Register adds an adapter; duplicate ids are rejected
func (r *Registry) Register(a domain.Adapter) error {
	if a == nil || a.ID() == "" {
		return perr.InvalidArgf("provider adapter must have an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := a.ID()
	if _, dup := r.byID[id]; dup {
		return perr.Conflictf("provider %q already registered", id)
	}
	r.byID[id] = a
	r.order = append(r.order, id)
	for _, check := range a.SupportedChecks() {
		r.byCheck[check] = append(r.byCheck[check], id)
	}
	return nil
}

// Get returns the adapter by id
func (r *Registry) Get(id string) (domain.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// ForCheck returns adapters supporting check in registration order
func (r *Registry) ForCheck(check compliance.CheckType) []domain.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byCheck[check]
	out := make([]domain.Adapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// All returns every adapter in registration order
func (r *Registry) All() []domain.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// PlannerView projects the registry for the query planner
func (r *Registry) PlannerView() []queryplan.ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]queryplan.ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		a := r.byID[id]
		out = append(out, queryplan.ProviderInfo{ID: id, Checks: a.SupportedChecks()})
	}
	return out
}

// HealthAll probes every provider concurrently and collects the outcomes
func (r *Registry) HealthAll(ctx context.Context) map[string]domain.Health {
	adapters := r.All()

	var mu sync.Mutex
	out := make(map[string]domain.Health, len(adapters))

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		g.Go(func() error {
			h := a.HealthCheck(ctx)
			mu.Lock()
			out[a.ID()] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
