// Package domain defines the consent store ports.
// Coverage evaluation itself lives in core/consent; this layer owns
// persistence, verification results, and the audit trail around grants
// and revocations
package domain

import (
	"context"
	"time"

	"backcheck/internal/core/consent"
	auditdom "backcheck/internal/services/audit/domain"
	retdom "backcheck/internal/services/retention/domain"
)

// Result is the outcome of one coverage verification
type Result struct {
	Valid         bool            `json:"valid"`
	ConsentID     string          `json:"consent_id,omitempty"`
	MissingScopes []consent.Scope `json:"missing_scopes,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
}

// StorePort is the consent surface the orchestrator and the HRIS
// webhook use. No provider call may dispatch for a check whose scope
// failed Verify
type StorePort interface {
	Verify(ctx context.Context, tenantID, subjectID string, required []consent.Scope) (Result, error)
	Grant(ctx context.Context, c consent.Consent) (consent.Consent, error)
	Revoke(ctx context.Context, tenantID, consentID string) error
	VerifyFCRA(ctx context.Context, tenantID, consentID, locale string, investigative bool) (bool, []string, error)
}

// StorageRepo is the persistence surface for consents
type StorageRepo interface {
	Insert(ctx context.Context, c consent.Consent) error
	BySubject(ctx context.Context, tenantID, subjectID string) ([]consent.Consent, error)
	Get(ctx context.Context, tenantID, id string) (consent.Consent, error)

	// Revoke stamps revoked_at once; it reports whether a row changed
	Revoke(ctx context.Context, tenantID, id string, at time.Time) (bool, error)
}

// Ports are dependencies injected into the consent module
type Ports struct {
	Audit     auditdom.RecorderPort // required
	Retention retdom.RecorderPort   // optional
}
