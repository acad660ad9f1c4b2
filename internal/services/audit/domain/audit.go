// Package domain defines the append-only audit trail types and ports
package domain

import (
	"context"
	"time"
)

// Kind names one audit event family
type Kind string

// Audit event kinds. The set is closed; new kinds are additions here,
// never free-form strings at call sites
const (
	KindScreeningInitiated  Kind = "screening.initiated"
	KindScreeningCompleted  Kind = "screening.completed"
	KindScreeningFailed     Kind = "screening.failed"
	KindScreeningCancelled  Kind = "screening.cancelled"
	KindDataAccessed        Kind = "data.accessed"
	KindCacheHit            Kind = "cache.hit"
	KindCacheMiss           Kind = "cache.miss"
	KindProviderQuery       Kind = "provider.query"
	KindConsentGranted      Kind = "consent.granted"
	KindConsentRevoked      Kind = "consent.revoked"
	KindComplianceViolation Kind = "compliance.violation"
	KindWebhookReceived     Kind = "webhook.received"
)

// Event is one immutable audit record. ID and At are filled by the
// recorder when left zero
type Event struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	TenantID    string         `json:"tenant_id,omitempty"`
	ScreeningID string         `json:"screening_id,omitempty"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	At          time.Time      `json:"at"`
}

// RecorderPort appends audit events. Implementations must never mutate
// or delete previously recorded events
type RecorderPort interface {
	Record(ctx context.Context, ev Event) error
}

// StorageRepo is the persistence surface for audit events
type StorageRepo interface {
	Append(ctx context.Context, ev Event) error
}
