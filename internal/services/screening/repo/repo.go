// Package repo provides repository implementations for the screening service
package repo

import (
	"context"
	"encoding/json"
	"time"

	"backcheck/internal/core/assess"
	"backcheck/internal/core/compliance"
	"backcheck/internal/core/risk"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/screening/domain"
)

// binder implements repokit.Binder[domain.StorageRepo]
type binder struct{}

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

const screeningCols = `id, tenant_id, subject_ref, subject,
	requested_checks, permitted_checks, blocked_checks,
	tier, locale, role, consent_id, correlation_id,
	status, fail_reason, fail_detail, missing_scopes,
	type_states, knowledge, inconsistencies, score, stale_data_used, raw_hashes,
	created_at, started_at, completed_at`

// Insert stores a freshly submitted screening. Subject, check sets and
// progress snapshots ride as jsonb so the shapes can grow without
// migrations
func (s *pg) Insert(ctx context.Context, scr domain.Screening) error {
	const q = `
		INSERT INTO screenings
			(` + screeningCols + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`
	args, err := screeningArgs(scr)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, q, args...)
	return perr.FromPostgres(err, "screening insert")
}

// Update rewrites the mutable columns of a screening row
func (s *pg) Update(ctx context.Context, scr domain.Screening) error {
	const q = `
		UPDATE screenings SET
			permitted_checks = $2, blocked_checks = $3,
			consent_id = $4,
			status = $5, fail_reason = $6, fail_detail = $7, missing_scopes = $8,
			type_states = $9, knowledge = $10, inconsistencies = $11, score = $12,
			stale_data_used = $13, raw_hashes = $14,
			started_at = $15, completed_at = $16
		WHERE id = $1`
	permitted, blocked, scopes, err := gateColumns(scr)
	if err != nil {
		return err
	}
	states, knowledge, incs, score, hashes, err := progressColumns(scr)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, q,
		scr.ID, permitted, blocked, scr.ConsentID,
		string(scr.Status), string(scr.FailReason), scr.FailDetail, scopes,
		states, knowledge, incs, score, scr.StaleDataUsed, hashes,
		scr.StartedAt, scr.CompletedAt)
	if err != nil {
		return perr.FromPostgres(err, "screening update")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("screening %q not found", scr.ID)
	}
	return nil
}

// Get returns one screening by id within the tenant
func (s *pg) Get(ctx context.Context, tenantID, id string) (domain.Screening, error) {
	const q = `
		SELECT ` + screeningCols + `
		FROM screenings
		WHERE tenant_id = $1 AND id = $2`
	rows, err := s.q.Query(ctx, q, tenantID, id)
	if err != nil {
		return domain.Screening{}, perr.FromPostgres(err, "screening get")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Screening{}, perr.FromPostgres(err, "screening get")
		}
		return domain.Screening{}, perr.NotFoundf("screening %q not found", id)
	}
	return scanScreening(rows)
}

// Lease claims up to limit pending screenings for workerID and flips
// them to running; leaseFor defines the TTL
func (s *pg) Lease(ctx context.Context, workerID string, limit int, leaseFor time.Duration) ([]domain.Screening, error) {
	const q = `
		WITH ready AS (
			SELECT id
			  FROM screenings
			 WHERE status = 'pending'
			 ORDER BY created_at ASC
			 LIMIT $1
			 FOR UPDATE SKIP LOCKED
		), upd AS (
			UPDATE screenings s
			   SET status = 'running',
			       leased_by = $2,
			       lease_expires_at = now() + $3::interval,
			       started_at = COALESCE(s.started_at, now())
			 WHERE s.id IN (SELECT id FROM ready)
			RETURNING s.*
		)
		SELECT ` + screeningCols + ` FROM upd`
	rows, err := s.q.Query(ctx, q, limit, workerID, leaseFor.String())
	if err != nil {
		return nil, perr.FromPostgres(err, "screening lease")
	}
	defer rows.Close()

	var out []domain.Screening
	for rows.Next() {
		scr, err := scanScreening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scr)
	}
	return out, rows.Err()
}

// MarkCancelled flips a still-pending screening to cancelled.
// Running screenings are cancelled through their context instead
func (s *pg) MarkCancelled(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	const q = `
		UPDATE screenings
		SET status = 'cancelled', completed_at = $3
		WHERE tenant_id = $1 AND id = $2 AND status = 'pending'`
	tag, err := s.q.Exec(ctx, q, tenantID, id, at)
	if err != nil {
		return false, perr.FromPostgres(err, "screening cancel")
	}
	return tag.RowsAffected() > 0, nil
}

// ActiveBySubject lists the tenant's pending and running screenings
// for one subject ref, oldest first
func (s *pg) ActiveBySubject(ctx context.Context, tenantID, subjectRef string) ([]domain.Screening, error) {
	const q = `
		SELECT ` + screeningCols + `
		FROM screenings
		WHERE tenant_id = $1 AND subject_ref = $2 AND status IN ('pending', 'running')
		ORDER BY created_at ASC`
	rows, err := s.q.Query(ctx, q, tenantID, subjectRef)
	if err != nil {
		return nil, perr.FromPostgres(err, "screening list active")
	}
	defer rows.Close()

	var out []domain.Screening
	for rows.Next() {
		scr, err := scanScreening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scr)
	}
	return out, rows.Err()
}

// CompletedSince lists complete screenings for reindexing, oldest first
func (s *pg) CompletedSince(ctx context.Context, since time.Time, limit int) ([]domain.Screening, error) {
	const q = `
		SELECT ` + screeningCols + `
		FROM screenings
		WHERE status = 'complete' AND completed_at >= $1
		ORDER BY completed_at ASC
		LIMIT $2`
	rows, err := s.q.Query(ctx, q, since, limit)
	if err != nil {
		return nil, perr.FromPostgres(err, "screening list completed")
	}
	defer rows.Close()

	var out []domain.Screening
	for rows.Next() {
		scr, err := scanScreening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scr)
	}
	return out, rows.Err()
}

func screeningArgs(scr domain.Screening) ([]any, error) {
	subj, err := json.Marshal(scr.Subject)
	if err != nil {
		return nil, err
	}
	requested, err := json.Marshal(scr.RequestedChecks)
	if err != nil {
		return nil, err
	}
	permitted, blocked, scopes, err := gateColumns(scr)
	if err != nil {
		return nil, err
	}
	states, knowledge, incs, score, hashes, err := progressColumns(scr)
	if err != nil {
		return nil, err
	}
	return []any{
		scr.ID, scr.TenantID, scr.SubjectRef, subj,
		requested, permitted, blocked,
		string(scr.Tier), scr.Locale, scr.Role, scr.ConsentID, scr.CorrelationID,
		string(scr.Status), string(scr.FailReason), scr.FailDetail, scopes,
		states, knowledge, incs, score, scr.StaleDataUsed, hashes,
		scr.CreatedAt, scr.StartedAt, scr.CompletedAt,
	}, nil
}

func gateColumns(scr domain.Screening) (permitted, blocked, scopes []byte, err error) {
	if permitted, err = json.Marshal(scr.PermittedChecks); err != nil {
		return nil, nil, nil, err
	}
	if blocked, err = json.Marshal(scr.BlockedChecks); err != nil {
		return nil, nil, nil, err
	}
	if scopes, err = json.Marshal(scr.MissingScopes); err != nil {
		return nil, nil, nil, err
	}
	return permitted, blocked, scopes, nil
}

func progressColumns(scr domain.Screening) (states, knowledge, incs, score, hashes []byte, err error) {
	if states, err = json.Marshal(scr.TypeStates); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if scr.Knowledge != nil {
		if knowledge, err = json.Marshal(scr.Knowledge); err != nil {
			return nil, nil, nil, nil, nil, err
		}
	}
	if incs, err = json.Marshal(scr.Inconsistencies); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if scr.Score != nil {
		if score, err = json.Marshal(scr.Score); err != nil {
			return nil, nil, nil, nil, nil, err
		}
	}
	if hashes, err = json.Marshal(scr.RawHashes); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	return states, knowledge, incs, score, hashes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScreening(row scanner) (domain.Screening, error) {
	var (
		scr                                 domain.Screening
		subj, requested, permitted, blocked []byte
		scopes, states, knowledge, incs     []byte
		score, hashes                       []byte
		tier, status, failReason            string
	)
	err := row.Scan(
		&scr.ID, &scr.TenantID, &scr.SubjectRef, &subj,
		&requested, &permitted, &blocked,
		&tier, &scr.Locale, &scr.Role, &scr.ConsentID, &scr.CorrelationID,
		&status, &failReason, &scr.FailDetail, &scopes,
		&states, &knowledge, &incs, &score, &scr.StaleDataUsed, &hashes,
		&scr.CreatedAt, &scr.StartedAt, &scr.CompletedAt,
	)
	if err != nil {
		return domain.Screening{}, perr.FromPostgres(err, "screening scan")
	}
	scr.Tier = compliance.Tier(tier)
	scr.Status = domain.Status(status)
	scr.FailReason = domain.FailReason(failReason)

	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{subj, &scr.Subject},
		{requested, &scr.RequestedChecks},
		{permitted, &scr.PermittedChecks},
		{blocked, &scr.BlockedChecks},
		{scopes, &scr.MissingScopes},
		{states, &scr.TypeStates},
		{incs, &scr.Inconsistencies},
		{hashes, &scr.RawHashes},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return domain.Screening{}, err
		}
	}
	if len(knowledge) > 0 {
		scr.Knowledge = &assess.View{}
		if err := json.Unmarshal(knowledge, scr.Knowledge); err != nil {
			return domain.Screening{}, err
		}
	}
	if len(score) > 0 {
		scr.Score = &risk.Score{}
		if err := json.Unmarshal(score, scr.Score); err != nil {
			return domain.Screening{}, err
		}
	}
	return scr, nil
}
