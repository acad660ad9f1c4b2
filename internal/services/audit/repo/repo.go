// Package repo provides repository implementations for the audit service
package repo

import (
	"context"
	"encoding/json"
	"time"

	"backcheck/internal/modkit/repokit"
	"backcheck/internal/services/audit/domain"
)

// binder implements repokit.Binder[domain.StorageRepo]
type binder struct{}

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

// Append inserts one audit event. The table carries no update or delete
// path; uniqueness on id makes retried writes idempotent
func (s *pg) Append(ctx context.Context, ev domain.Event) error {
	const q = `
		INSERT INTO audit_events
			(id, kind, tenant_id, screening_id, subject_id, actor, detail, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, q,
		ev.ID, string(ev.Kind), ev.TenantID, ev.ScreeningID, ev.SubjectID, ev.Actor, detail, ev.At)
	return err
}

// MirrorRow is the ClickHouse projection of one audit event
type MirrorRow struct {
	ID          string    `ch:"id"`
	Kind        string    `ch:"kind"`
	TenantID    string    `ch:"tenant_id"`
	ScreeningID string    `ch:"screening_id"`
	SubjectID   string    `ch:"subject_id"`
	Actor       string    `ch:"actor"`
	Detail      string    `ch:"detail"`
	At          time.Time `ch:"at"`
}

// MirrorRowOf flattens an event for columnar storage
func MirrorRowOf(ev domain.Event) MirrorRow {
	detail, _ := json.Marshal(ev.Detail)
	return MirrorRow{
		ID:          ev.ID,
		Kind:        string(ev.Kind),
		TenantID:    ev.TenantID,
		ScreeningID: ev.ScreeningID,
		SubjectID:   ev.SubjectID,
		Actor:       ev.Actor,
		Detail:      string(detail),
		At:          ev.At,
	}
}
