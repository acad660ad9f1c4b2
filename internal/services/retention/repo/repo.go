// Package repo provides repository implementations for the retention service
package repo

import (
	"context"
	"encoding/json"

	"backcheck/internal/modkit/repokit"
	"backcheck/internal/services/retention/domain"
)

// binder implements repokit.Binder[domain.StorageRepo]
type binder struct{}

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

// Insert stores one retention record; re-tagging the same datum is a no-op
func (s *pg) Insert(ctx context.Context, rec domain.Record) error {
	const q = `
		INSERT INTO retention_records
			(id, data_type, ref_id, tenant_id, screening_id, meta, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (data_type, ref_id) DO NOTHING`
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, q,
		rec.ID, string(rec.DataType), rec.RefID, rec.TenantID, rec.ScreeningID, meta, rec.CreatedAt)
	return err
}
