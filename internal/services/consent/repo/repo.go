// Package repo provides repository implementations for the consent service
package repo

import (
	"context"
	"encoding/json"
	"time"

	"backcheck/internal/core/consent"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/consent/domain"
)

// binder implements repokit.Binder[domain.StorageRepo]
type binder struct{}

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

const consentCols = `id, tenant_id, subject_id, scopes, method, locale, granted_at, expires_at, revoked_at, fcra`

// Insert stores one consent. Scope sets and FCRA sub-records ride as
// jsonb so the shape can grow without migrations
func (s *pg) Insert(ctx context.Context, c consent.Consent) error {
	const q = `
		INSERT INTO consents
			(` + consentCols + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`
	scopes, err := json.Marshal(c.Scopes)
	if err != nil {
		return err
	}
	var fcra []byte
	if c.FCRA != nil {
		if fcra, err = json.Marshal(c.FCRA); err != nil {
			return err
		}
	}
	_, err = s.q.Exec(ctx, q,
		c.ID, c.TenantID, c.SubjectID, scopes, string(c.Method), c.Locale,
		c.GrantedAt, c.ExpiresAt, c.RevokedAt, fcra)
	return perr.FromPostgres(err, "consent insert")
}

// BySubject returns the subject's consents in the tenant, newest first
func (s *pg) BySubject(ctx context.Context, tenantID, subjectID string) ([]consent.Consent, error) {
	const q = `
		SELECT ` + consentCols + `
		FROM consents
		WHERE tenant_id = $1 AND subject_id = $2
		ORDER BY granted_at DESC, id`
	rows, err := s.q.Query(ctx, q, tenantID, subjectID)
	if err != nil {
		return nil, perr.FromPostgres(err, "consent list")
	}
	defer rows.Close()

	var out []consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns one consent by id within the tenant
func (s *pg) Get(ctx context.Context, tenantID, id string) (consent.Consent, error) {
	const q = `
		SELECT ` + consentCols + `
		FROM consents
		WHERE tenant_id = $1 AND id = $2`
	rows, err := s.q.Query(ctx, q, tenantID, id)
	if err != nil {
		return consent.Consent{}, perr.FromPostgres(err, "consent get")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return consent.Consent{}, perr.FromPostgres(err, "consent get")
		}
		return consent.Consent{}, perr.NotFoundf("consent %q not found", id)
	}
	return scanConsent(rows)
}

// Revoke stamps revoked_at exactly once
func (s *pg) Revoke(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	const q = `
		UPDATE consents
		SET revoked_at = $3
		WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL`
	tag, err := s.q.Exec(ctx, q, tenantID, id, at)
	if err != nil {
		return false, perr.FromPostgres(err, "consent revoke")
	}
	return tag.RowsAffected() > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConsent(row scanner) (consent.Consent, error) {
	var (
		c      consent.Consent
		method string
		scopes []byte
		fcra   []byte
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.SubjectID, &scopes, &method, &c.Locale,
		&c.GrantedAt, &c.ExpiresAt, &c.RevokedAt, &fcra)
	if err != nil {
		return consent.Consent{}, perr.FromPostgres(err, "consent scan")
	}
	c.Method = consent.Method(method)
	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &c.Scopes); err != nil {
			return consent.Consent{}, err
		}
	}
	if len(fcra) > 0 {
		c.FCRA = &consent.FCRADisclosure{}
		if err := json.Unmarshal(fcra, c.FCRA); err != nil {
			return consent.Consent{}, err
		}
	}
	return c, nil
}
