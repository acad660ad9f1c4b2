package domain

import (
	"context"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/queryplan"
)

// RegistryPort is the read surface over registered providers
type RegistryPort interface {
	// Get returns the adapter by id
	Get(id string) (Adapter, bool)

	// ForCheck returns adapters supporting check in priority order
	// (registration order; first is primary, the rest are fallbacks)
	ForCheck(check compliance.CheckType) []Adapter

	// All returns every registered adapter in registration order
	All() []Adapter

	// PlannerView projects the registry for the query planner
	PlannerView() []queryplan.ProviderInfo

	// HealthAll probes every provider concurrently
	HealthAll(ctx context.Context) map[string]Health
}
