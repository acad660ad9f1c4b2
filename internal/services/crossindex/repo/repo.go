// Package repo provides the Postgres repository for the cross-screening index
package repo

import (
	"context"

	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/crossindex/domain"
)

// binder implements repokit.Binder[domain.StorageRepo]
type binder struct{}

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

const edgeCols = `subject_a, subject_b, connection_type, strength, evidence, tenant_id, observed_at`

// PutObservations stores observations, ignoring values the subject
// already has under the same kind
func (s *pg) PutObservations(ctx context.Context, obs []domain.Observation) error {
	const q = `
		INSERT INTO crossindex_observations
			(subject_id, kind, value, tenant_id, screening_id, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (subject_id, kind, value) DO NOTHING`
	for _, o := range obs {
		_, err := s.q.Exec(ctx, q,
			o.SubjectID, string(o.Kind), o.Value, o.TenantID, o.ScreeningID, o.ObservedAt)
		if err != nil {
			return perr.FromPostgres(err, "crossindex observation insert")
		}
	}
	return nil
}

// UpsertEdges stores edges. On conflict the row is rewritten only when
// the incoming strength outranks the stored one, so strength never
// downgrades and evidence tracks the strongest sighting
func (s *pg) UpsertEdges(ctx context.Context, edges []domain.Edge) error {
	const q = `
		INSERT INTO crossindex_edges
			(` + edgeCols + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (subject_a, subject_b, connection_type) DO UPDATE
		SET strength = EXCLUDED.strength,
		    evidence = EXCLUDED.evidence,
		    tenant_id = EXCLUDED.tenant_id,
		    observed_at = EXCLUDED.observed_at
		WHERE CASE crossindex_edges.strength
		        WHEN 'verified' THEN 4 WHEN 'strong' THEN 3
		        WHEN 'moderate' THEN 2 WHEN 'weak' THEN 1 ELSE 0 END
		    < CASE EXCLUDED.strength
		        WHEN 'verified' THEN 4 WHEN 'strong' THEN 3
		        WHEN 'moderate' THEN 2 WHEN 'weak' THEN 1 ELSE 0 END`
	for _, e := range edges {
		e = e.Normalize()
		_, err := s.q.Exec(ctx, q,
			e.SubjectA, e.SubjectB, string(e.Type), string(e.Strength),
			e.Evidence, e.TenantID, e.ObservedAt)
		if err != nil {
			return perr.FromPostgres(err, "crossindex edge upsert")
		}
	}
	return nil
}

// Matches returns subjects other than exclude sharing any value under kind
func (s *pg) Matches(ctx context.Context, kind domain.ObsKind, values []string, exclude string) ([]domain.Match, error) {
	const q = `
		SELECT subject_id, value
		FROM crossindex_observations
		WHERE kind = $1 AND value = ANY($2) AND subject_id <> $3
		ORDER BY subject_id, value`
	rows, err := s.q.Query(ctx, q, string(kind), values, exclude)
	if err != nil {
		return nil, perr.FromPostgres(err, "crossindex match")
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.SubjectID, &m.Value); err != nil {
			return nil, perr.FromPostgres(err, "crossindex match scan")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Neighbors returns every edge touching any of the given subjects
func (s *pg) Neighbors(ctx context.Context, subjectIDs []string) ([]domain.Edge, error) {
	const q = `
		SELECT ` + edgeCols + `
		FROM crossindex_edges
		WHERE subject_a = ANY($1) OR subject_b = ANY($1)
		ORDER BY subject_a, subject_b, connection_type`
	rows, err := s.q.Query(ctx, q, subjectIDs)
	if err != nil {
		return nil, perr.FromPostgres(err, "crossindex neighbors")
	}
	defer rows.Close()

	var out []domain.Edge
	for rows.Next() {
		var (
			e        domain.Edge
			ct, stng string
		)
		err := rows.Scan(&e.SubjectA, &e.SubjectB, &ct, &stng, &e.Evidence, &e.TenantID, &e.ObservedAt)
		if err != nil {
			return nil, perr.FromPostgres(err, "crossindex neighbors scan")
		}
		e.Type = domain.ConnectionType(ct)
		e.Strength = domain.Strength(stng)
		out = append(out, e)
	}
	return out, rows.Err()
}
