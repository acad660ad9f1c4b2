// Package domain defines the screening orchestration types and ports.
// A screening is the unit of work: one subject and one set of requested
// checks, driven through the compliance and consent gates, per-type
// search-assess-refine loops, and risk scoring to a terminal status
package domain

import (
	"context"
	"time"

	"backcheck/internal/core/assess"
	"backcheck/internal/core/compliance"
	"backcheck/internal/core/consent"
	"backcheck/internal/core/risk"
	"backcheck/internal/core/sar"
	"backcheck/internal/core/subject"
	auditdom "backcheck/internal/services/audit/domain"
	consentdom "backcheck/internal/services/consent/domain"
	dispatchdom "backcheck/internal/services/dispatch/domain"
	provdom "backcheck/internal/services/providers/domain"
	retdom "backcheck/internal/services/retention/domain"
	tenantdom "backcheck/internal/services/tenants/domain"
)

// Status is the screening lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// FailReason is the closed vocabulary for failed screenings
type FailReason string

const (
	FailComplianceBlock FailReason = "COMPLIANCE_BLOCK"
	FailConsentMissing  FailReason = "CONSENT_MISSING"
	FailTimeout         FailReason = "TIMEOUT"
	FailInfrastructure  FailReason = "INFRA_FAILURE"
)

// Request is one screening submission
type Request struct {
	TenantID      string                 `json:"tenant_id" validate:"required"`
	SubjectRef    string                 `json:"subject_ref" validate:"required"`
	Subject       subject.Subject        `json:"subject"`
	Checks        []compliance.CheckType `json:"checks" validate:"required,min=1"`
	Tier          compliance.Tier        `json:"tier,omitempty"`
	Locale        string                 `json:"locale" validate:"required"`
	Role          string                 `json:"role,omitempty"`
	ConsentID     string                 `json:"consent_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`

	// InvestigativeReport marks the screening as an investigative
	// consumer report, which tightens the FCRA disclosure check
	InvestigativeReport bool `json:"investigative_report,omitempty"`
}

// Screening is the durable orchestration record. Progress fields
// (TypeStates, Knowledge, Score) are snapshotted at phase barriers so
// a crashed run leaves an inspectable partial trail
type Screening struct {
	ID              string                    `json:"id"`
	TenantID        string                    `json:"tenant_id"`
	SubjectRef      string                    `json:"subject_ref"`
	Subject         subject.Subject           `json:"subject"`
	RequestedChecks []compliance.CheckType    `json:"requested_checks"`
	PermittedChecks []compliance.CheckType    `json:"permitted_checks,omitempty"`
	BlockedChecks   []compliance.BlockedCheck `json:"blocked_checks,omitempty"`
	Tier            compliance.Tier           `json:"tier"`
	Locale          string                    `json:"locale"`
	Role            string                    `json:"role,omitempty"`
	ConsentID       string                    `json:"consent_id,omitempty"`
	CorrelationID   string                    `json:"correlation_id,omitempty"`

	Status        Status          `json:"status"`
	FailReason    FailReason      `json:"fail_reason,omitempty"`
	FailDetail    string          `json:"fail_detail,omitempty"`
	MissingScopes []consent.Scope `json:"missing_scopes,omitempty"`

	TypeStates      []sar.TypeState        `json:"type_states,omitempty"`
	Knowledge       *assess.View           `json:"knowledge,omitempty"`
	Inconsistencies []assess.Inconsistency `json:"inconsistencies,omitempty"`
	Score           *risk.Score            `json:"score,omitempty"`
	StaleDataUsed   bool                   `json:"stale_data_used,omitempty"`
	RawHashes       []string               `json:"raw_hashes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Report is the caller-facing risk report for a complete screening
type Report struct {
	ScreeningID     string                    `json:"screening_id"`
	TenantID        string                    `json:"tenant_id"`
	SubjectRef      string                    `json:"subject_ref"`
	Subject         subject.Subject           `json:"subject"`
	Checks          []compliance.CheckType    `json:"checks"`
	BlockedChecks   []compliance.BlockedCheck `json:"blocked_checks,omitempty"`
	Tier            compliance.Tier           `json:"tier"`
	Locale          string                    `json:"locale"`
	Score           risk.Score                `json:"score"`
	TypeStates      []sar.TypeState           `json:"type_states"`
	Knowledge       assess.View               `json:"knowledge"`
	Inconsistencies []assess.Inconsistency    `json:"inconsistencies,omitempty"`
	StaleDataUsed   bool                      `json:"stale_data_used"`
	CompletedAt     time.Time                 `json:"completed_at"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// ScreeningPort is the orchestration surface the API exposes
type ScreeningPort interface {
	Submit(ctx context.Context, req Request) (Screening, error)
	Get(ctx context.Context, tenantID, id string) (Screening, error)
	Cancel(ctx context.Context, tenantID, id string) (Screening, error)
	Report(ctx context.Context, tenantID, id string) (Report, error)

	// CancelBySubject cancels every non-terminal screening the tenant
	// holds for the subject ref and returns the affected rows
	CancelBySubject(ctx context.Context, tenantID, subjectRef string) ([]Screening, error)
}

// WorkerPort drives queued screenings to completion
type WorkerPort interface {
	Run(ctx context.Context) error
}

// StorageRepo is the persistence surface for screenings
type StorageRepo interface {
	Insert(ctx context.Context, scr Screening) error
	Update(ctx context.Context, scr Screening) error
	Get(ctx context.Context, tenantID, id string) (Screening, error)

	// Lease claims up to limit pending screenings for the worker and
	// flips them to running. FOR UPDATE SKIP LOCKED keeps competing
	// workers from double-claiming
	Lease(ctx context.Context, workerID string, limit int, leaseFor time.Duration) ([]Screening, error)

	// MarkCancelled flips a pending screening straight to cancelled.
	// Returns false when the row is absent or already past pending
	MarkCancelled(ctx context.Context, tenantID, id string, at time.Time) (bool, error)

	// ActiveBySubject lists the tenant's pending and running screenings
	// for one subject ref
	ActiveBySubject(ctx context.Context, tenantID, subjectRef string) ([]Screening, error)

	// CompletedSince lists complete screenings for reindexing
	CompletedSince(ctx context.Context, since time.Time, limit int) ([]Screening, error)
}

// IndexerPort receives completed screenings for cross-screening network
// indexing. Indexing runs out of band and must never affect the
// screening outcome; implementations log their own failures
type IndexerPort interface {
	IndexScreening(ctx context.Context, scr Screening) error
}

// Ports are dependencies injected into the screening module
type Ports struct {
	Tenants    tenantdom.RegistryPort     // required
	Compliance *compliance.Evaluator      // required
	Consent    consentdom.StorePort       // required
	Dispatcher dispatchdom.DispatcherPort // required
	Providers  provdom.RegistryPort       // required
	Audit      auditdom.RecorderPort      // required
	Retention  retdom.RecorderPort        // optional
	Indexer    IndexerPort                // optional
}
