// Package domain defines the provider adapter contract and registry ports
package domain

import (
	"context"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
)

// HealthStatus grades a provider's current health
type HealthStatus string

// Health statuses
const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// Provider error codes carried on failed results
const (
	ErrInvalidSubject = "INVALID_SUBJECT"
	ErrTimeout        = "TIMEOUT"
	ErrRateLimited    = "RATE_LIMITED"
	ErrAuthFailure    = "AUTH_FAILURE"
	ErrNotFound       = "NOT_FOUND"
	ErrProvider       = "PROVIDER_ERROR"
)

// Health is one provider's health probe outcome
type Health struct {
	Status  HealthStatus  `json:"status"`
	Latency time.Duration `json:"latency"`
	Detail  string        `json:"detail,omitempty"`
}

// Result is the normalized outcome of one provider execution
type Result struct {
	ProviderID string         `json:"provider_id"`
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	RawHash    string         `json:"raw_hash,omitempty"`
	Latency    time.Duration  `json:"latency"`
	CostCents  int            `json:"cost_cents"`
	AcquiredAt time.Time      `json:"acquired_at"`

	// Freshness window declared by the provider: the result is fresh
	// until AcquiredAt+FreshFor and usable-but-stale until
	// AcquiredAt+FreshFor+StaleFor
	FreshFor time.Duration `json:"fresh_for"`
	StaleFor time.Duration `json:"stale_for"`

	ErrorCode  string        `json:"error_code,omitempty"`
	ErrorMsg   string        `json:"error_msg,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Transient reports whether the failure is worth retrying
func (r Result) Transient() bool {
	switch r.ErrorCode {
	case ErrTimeout, ErrRateLimited, ErrProvider:
		return true
	default:
		return false
	}
}

// Adapter is the sole dynamic boundary to external data providers.
// Execute returns an error only for transport-level breakage or context
// cancellation; provider-taxonomy failures ride on Result.ErrorCode.
// Params narrow the search (counties, employers, a targeted gap);
// adapters that cannot narrow may ignore them
type Adapter interface {
	ID() string
	SupportedChecks() []compliance.CheckType
	Execute(ctx context.Context, check compliance.CheckType, sub subject.Subject, locale string, params map[string]string) (Result, error)
	HealthCheck(ctx context.Context) Health
}
