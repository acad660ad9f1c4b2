// Package domain defines the tenant registry types and ports.
// A tenant is the customer organization boundary: API auth, webhook
// signing secrets, and data isolation all key off the tenant row
package domain

import (
	"context"
	"time"
)

// Tenant is one customer organization
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Enabled       bool      `json:"enabled"`
	APIKeyHash    string    `json:"-"`
	WebhookSecret string    `json:"-"`
	HRISEnabled   bool      `json:"hris_enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegistryPort is the tenant lookup surface other services consume
type RegistryPort interface {
	// Get returns the tenant row by id
	Get(ctx context.Context, id string) (Tenant, error)

	// RequireActive returns the tenant iff it exists and is enabled
	RequireActive(ctx context.Context, id string) (Tenant, error)

	// Authenticate resolves a bearer token to its tenant
	Authenticate(ctx context.Context, token string) (Tenant, error)
}

// StorageRepo is the persistence surface for tenant rows
type StorageRepo interface {
	Get(ctx context.Context, id string) (Tenant, error)
	ByAPIKeyHash(ctx context.Context, hash string) (Tenant, error)
	Upsert(ctx context.Context, t Tenant) error
}
