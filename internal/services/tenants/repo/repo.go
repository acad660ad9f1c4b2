// Package repo provides the Postgres tenant registry repository
package repo

import (
	"context"

	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/tenants/domain"
)

type (
	binder struct{}
	pg     struct{ q repokit.Queryer }
)

// NewPG returns a binder for the Postgres implementation
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind attaches a Queryer to the Postgres implementation
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

const tenantCols = "id, name, enabled, api_key_hash, webhook_secret, hris_enabled, created_at"

func (r *pg) Get(ctx context.Context, id string) (domain.Tenant, error) {
	const sql = `SELECT ` + tenantCols + ` FROM tenants WHERE id = $1`
	return r.one(ctx, sql, id, perr.NotFoundf("tenant %q not found", id))
}

func (r *pg) ByAPIKeyHash(ctx context.Context, hash string) (domain.Tenant, error) {
	const sql = `SELECT ` + tenantCols + ` FROM tenants WHERE api_key_hash = $1`
	return r.one(ctx, sql, hash, perr.NotFoundf("no tenant for token"))
}

func (r *pg) one(ctx context.Context, sql, arg string, notFound error) (domain.Tenant, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return domain.Tenant{}, perr.FromPostgres(err, "query tenant")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Tenant{}, perr.FromPostgres(err, "scan tenant")
		}
		return domain.Tenant{}, notFound
	}

	var t domain.Tenant
	err = rows.Scan(&t.ID, &t.Name, &t.Enabled, &t.APIKeyHash, &t.WebhookSecret, &t.HRISEnabled, &t.CreatedAt)
	if err != nil {
		return domain.Tenant{}, perr.FromPostgres(err, "scan tenant")
	}
	return t, nil
}

func (r *pg) Upsert(ctx context.Context, t domain.Tenant) error {
	const sql = `
		INSERT INTO tenants (id, name, enabled, api_key_hash, webhook_secret, hris_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name           = EXCLUDED.name,
		    enabled        = EXCLUDED.enabled,
		    api_key_hash   = EXCLUDED.api_key_hash,
		    webhook_secret = EXCLUDED.webhook_secret,
		    hris_enabled   = EXCLUDED.hris_enabled
	`
	_, err := r.q.Exec(ctx, sql, t.ID, t.Name, t.Enabled, t.APIKeyHash, t.WebhookSecret, t.HRISEnabled, t.CreatedAt)
	return perr.FromPostgres(err, "upsert tenant")
}
