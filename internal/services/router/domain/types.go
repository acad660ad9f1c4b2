// Package domain defines the request routing types and ports.
// The router owns every production concern between a planned query and
// a provider adapter: cache, provider selection with fallbacks, rate
// limits, circuit breakers, retries, and the failure taxonomy
package domain

import (
	"context"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
	auditdom "backcheck/internal/services/audit/domain"
	provdom "backcheck/internal/services/providers/domain"
)

// FailureReason is the closed vocabulary for routing failures
type FailureReason string

const (
	FailNoProvider     FailureReason = "NO_PROVIDER"
	FailTimeout        FailureReason = "TIMEOUT"
	FailAllRateLimited FailureReason = "ALL_RATE_LIMITED"
	FailCircuitOpen    FailureReason = "CIRCUIT_OPEN"
	FailProviderError  FailureReason = "PROVIDER_ERROR"
	FailInvalidRequest FailureReason = "INVALID_REQUEST"
)

// Failure describes why a routed request did not produce data
type Failure struct {
	Reason     FailureReason `json:"reason"`
	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// RoutedRequest is one provider query with its routing envelope
type RoutedRequest struct {
	CheckType   compliance.CheckType `json:"check_type"`
	Subject     subject.Subject      `json:"subject"`
	Locale      string               `json:"locale"`
	EntityID    string               `json:"entity_id,omitempty"`
	TenantID    string               `json:"tenant_id"`
	Tier        compliance.Tier      `json:"tier"`
	ScreeningID string               `json:"screening_id"`
	QueryID     string               `json:"query_id,omitempty"`

	// Provider prefers a planner-pinned provider; the router still
	// falls back to the remaining candidates when it cannot serve
	Provider string `json:"provider,omitempty"`

	// Params narrow the search (gap-fill targeting). They enter the
	// cache fingerprint, so a narrowed query never collides with a
	// broad one
	Params map[string]string `json:"params,omitempty"`

	// Attempt counts prior routing attempts for this query shape
	Attempt int `json:"attempt,omitempty"`

	// Deadline bounds the whole route call; zero means the router default
	Deadline time.Time `json:"deadline,omitempty"`
}

// RoutedResult is the routing outcome. Failure is nil on success.
// StaleDataUsed is always set when the payload came from a stale cache
// entry; consumers must propagate it into derived findings
type RoutedResult struct {
	CheckType     compliance.CheckType `json:"check_type"`
	ProviderID    string               `json:"provider_id,omitempty"`
	Success       bool                 `json:"success"`
	Data          map[string]any       `json:"data,omitempty"`
	RawHash       string               `json:"raw_hash,omitempty"`
	Latency       time.Duration        `json:"latency"`
	CostCents     int                  `json:"cost_cents"`
	CacheHit      bool                 `json:"cache_hit"`
	StaleDataUsed bool                 `json:"stale_data_used"`
	AcquiredAt    time.Time            `json:"acquired_at"`
	Failure       *Failure             `json:"failure,omitempty"`
}

// Origin scopes a cache entry. PAID_EXTERNAL results are shared across
// tenants; CUSTOMER_PROVIDED entries belong to exactly one tenant
type Origin string

const (
	OriginPaidExternal     Origin = "PAID_EXTERNAL"
	OriginCustomerProvided Origin = "CUSTOMER_PROVIDED"
)

// Freshness classifies a cache entry relative to now
type Freshness string

const (
	FreshnessFresh   Freshness = "fresh"
	FreshnessStale   Freshness = "stale"
	FreshnessExpired Freshness = "expired"
)

// CacheEntry is one stored provider result. TenantID is populated only
// when Origin is CUSTOMER_PROVIDED
type CacheEntry struct {
	Fingerprint string               `json:"fingerprint"`
	ProviderID  string               `json:"provider_id"`
	CheckType   compliance.CheckType `json:"check_type"`
	Data        map[string]any       `json:"data"`
	RawHash     string               `json:"raw_hash,omitempty"`
	CostCents   int                  `json:"cost_cents,omitempty"`
	Origin      Origin               `json:"origin"`
	TenantID    string               `json:"tenant_id,omitempty"`
	AcquiredAt  time.Time            `json:"acquired_at"`
	FreshUntil  time.Time            `json:"fresh_until"`
	StaleUntil  time.Time            `json:"stale_until"`
}

// FreshnessAt classifies the entry against the given instant
func (e CacheEntry) FreshnessAt(now time.Time) Freshness {
	switch {
	case now.Before(e.FreshUntil):
		return FreshnessFresh
	case now.Before(e.StaleUntil):
		return FreshnessStale
	default:
		return FreshnessExpired
	}
}

// RouterPort executes routed requests. Failures are values on the
// result, never Go errors; the error vocabulary is FailureReason
type RouterPort interface {
	Route(ctx context.Context, req RoutedRequest) RoutedResult
	RouteBatch(ctx context.Context, reqs []RoutedRequest) []RoutedResult
}

// SeedRequest carries tenant-supplied data for one check shape. The
// cache derives the fingerprint; callers never see the key scheme
type SeedRequest struct {
	CheckType compliance.CheckType `json:"check_type"`
	Subject   subject.Subject      `json:"subject"`
	Locale    string               `json:"locale"`
	TenantID  string               `json:"tenant_id"`
	Source    string               `json:"source,omitempty"`
	Data      map[string]any       `json:"data"`
	FreshFor  time.Duration        `json:"fresh_for"`
	StaleFor  time.Duration        `json:"stale_for"`
}

// CacheSeedPort lets collaborators store customer-provided data ahead
// of any provider spend. Entries are tenant-scoped by construction
type CacheSeedPort interface {
	Seed(ctx context.Context, req SeedRequest) error
}

// BreakerViewPort exposes per-provider breaker states for readiness
type BreakerViewPort interface {
	BreakerStates() map[string]string
}

// Ports are dependencies injected into the router module
type Ports struct {
	Providers provdom.RegistryPort  // required
	Audit     auditdom.RecorderPort // required
}
