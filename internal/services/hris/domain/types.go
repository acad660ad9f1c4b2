// Package domain defines the HRIS webhook contract. Deliveries arrive
// already stripped to raw bytes plus the few headers the pipeline
// needs; the HTTP layer never interprets payloads itself
package domain

import (
	"context"

	auditdom "backcheck/internal/services/audit/domain"
	consentdom "backcheck/internal/services/consent/domain"
	routerdom "backcheck/internal/services/router/domain"
	screeningdom "backcheck/internal/services/screening/domain"
	tenantdom "backcheck/internal/services/tenants/domain"
)

// EventType names one recognized HRIS event
type EventType string

// Recognized event types
const (
	EventHireInitiated      EventType = "hire.initiated"
	EventRehireInitiated    EventType = "rehire.initiated"
	EventConsentGranted     EventType = "consent.granted"
	EventPositionChanged    EventType = "position.changed"
	EventEmployeeTerminated EventType = "employee.terminated"
)

// Known reports whether e is an event type the pipeline routes
func (e EventType) Known() bool {
	switch e {
	case EventHireInitiated, EventRehireInitiated, EventConsentGranted,
		EventPositionChanged, EventEmployeeTerminated:
		return true
	}
	return false
}

// Delivery is one webhook delivery exactly as received. Body is the
// raw payload; signature verification runs over these bytes, so the
// transport must not re-encode them
type Delivery struct {
	TenantID string
	Body     []byte

	// Signatures carries X-Signature then X-Webhook-Signature values,
	// in header order. Any one matching accepts the delivery
	Signatures []string

	// TypeHints carries X-Event-Type then X-Webhook-Event-Type values.
	// Payload fields are consulted only when no hint resolves
	TypeHints []string
}

// Ack actions
const (
	ActionScreeningSubmitted  = "screening_submitted"
	ActionScreeningRejected   = "screening_rejected"
	ActionConsentRecorded     = "consent_recorded"
	ActionScreeningsCancelled = "screenings_cancelled"
	ActionAcknowledged        = "acknowledged"
)

// Ack reports what processing one delivery did. Rejected submissions
// still ack; the sender cannot fix a compliance block by retrying
type Ack struct {
	Event        EventType `json:"event"`
	Action       string    `json:"action"`
	ScreeningID  string    `json:"screening_id,omitempty"`
	ConsentID    string    `json:"consent_id,omitempty"`
	CancelledIDs []string  `json:"cancelled_ids,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

// WebhookPort processes HRIS deliveries
type WebhookPort interface {
	Process(ctx context.Context, d Delivery) (Ack, error)
}

// Ports are collaborators injected into the hris module
type Ports struct {
	Tenants    tenantdom.RegistryPort     // required
	Screenings screeningdom.ScreeningPort // required
	Consent    consentdom.StorePort       // required
	Audit      auditdom.RecorderPort      // required
	Cache      routerdom.CacheSeedPort    // optional
}
