// Package service implements the consent store.
// Coverage math is pure core/consent; this layer loads the subject's
// grants, picks the covering consent, and writes the audit trail for
// grants and revocations
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backcheck/internal/core/consent"
	"backcheck/internal/modkit"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	auditdom "backcheck/internal/services/audit/domain"
	"backcheck/internal/services/consent/domain"
	crepo "backcheck/internal/services/consent/repo"
	retdom "backcheck/internal/services/retention/domain"
)

// Svc implements domain.StorePort
type Svc struct {
	repo  domain.StorageRepo
	audit auditdom.RecorderPort
	ret   retdom.RecorderPort
	log   logger.Logger
	now   func() time.Time
}

// New constructs the consent service
func New(deps modkit.Deps, ports domain.Ports) *Svc {
	var repo domain.StorageRepo
	if deps.PG != nil {
		repo = repokit.MustBind(crepo.NewPG(), deps.PG)
	}
	return &Svc{
		repo:  repo,
		audit: ports.Audit,
		ret:   ports.Retention,
		log:   deps.Log.With().Str("component", "consent").Logger(),
		now:   time.Now,
	}
}

// Verify reports whether the subject's consents cover every required
// scope. ConsentID names the newest valid grant that contributed
func (s *Svc) Verify(ctx context.Context, tenantID, subjectID string, required []consent.Scope) (domain.Result, error) {
	if tenantID == "" || subjectID == "" {
		return domain.Result{}, perr.InvalidArgf("verify needs a tenant and subject")
	}

	var consents []consent.Consent
	if s.repo != nil {
		var err error
		if consents, err = s.repo.BySubject(ctx, tenantID, subjectID); err != nil {
			return domain.Result{}, err
		}
	}

	now := s.now()
	missing := consent.MissingScopes(consents, required, now)

	res := domain.Result{
		Valid:         len(missing) == 0,
		MissingScopes: missing,
	}
	for _, c := range consents { // newest first from the repo
		if c.ValidAt(now) && coversAny(c, required, now) {
			res.ConsentID = c.ID
			break
		}
	}
	if !res.Valid {
		for _, scope := range missing {
			res.Errors = append(res.Errors, "scope not covered: "+string(scope))
		}
	}
	return res, nil
}

// coversAny reports whether c grants at least one of the required
// scopes; with no requirements validity alone qualifies it
func coversAny(c consent.Consent, required []consent.Scope, now time.Time) bool {
	if len(required) == 0 {
		return true
	}
	for _, scope := range required {
		if c.Covers(scope, now) {
			return true
		}
	}
	return false
}

// Grant persists one consent, filling ID and GrantedAt when zero, and
// records the audit and retention trail
func (s *Svc) Grant(ctx context.Context, c consent.Consent) (consent.Consent, error) {
	if c.TenantID == "" || c.SubjectID == "" {
		return consent.Consent{}, perr.InvalidArgf("consent needs a tenant and subject")
	}
	if len(c.Scopes) == 0 {
		return consent.Consent{}, perr.InvalidArgf("consent needs at least one scope")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.GrantedAt.IsZero() {
		c.GrantedAt = s.now().UTC()
	}

	if s.repo != nil {
		if err := s.repo.Insert(ctx, c); err != nil {
			return consent.Consent{}, err
		}
	}

	scopes := make([]string, len(c.Scopes))
	for i, sc := range c.Scopes {
		scopes[i] = string(sc)
	}
	s.auditEvent(ctx, auditdom.Event{
		Kind:      auditdom.KindConsentGranted,
		TenantID:  c.TenantID,
		SubjectID: c.SubjectID,
		Detail:    map[string]any{"consent_id": c.ID, "scopes": scopes, "method": string(c.Method)},
	})
	if s.ret != nil {
		err := s.ret.Put(ctx, retdom.Record{
			DataType: retdom.DataConsentRecord,
			RefID:    c.ID,
			TenantID: c.TenantID,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("consent_id", c.ID).Msg("retention record failed")
		}
	}
	return c, nil
}

// Revoke stamps the consent revoked. Revocation is one-way; revoking an
// already revoked consent is a no-op
func (s *Svc) Revoke(ctx context.Context, tenantID, consentID string) error {
	if s.repo == nil {
		return perr.Unavailablef("consent storage not configured")
	}
	changed, err := s.repo.Revoke(ctx, tenantID, consentID, s.now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		// distinguish missing from already revoked
		if _, err := s.repo.Get(ctx, tenantID, consentID); err != nil {
			return err
		}
		return nil
	}
	s.auditEvent(ctx, auditdom.Event{
		Kind:     auditdom.KindConsentRevoked,
		TenantID: tenantID,
		Detail:   map[string]any{"consent_id": consentID},
	})
	return nil
}

// VerifyFCRA checks the stored consent's FCRA disclosure sub-record
// against the locale's rules. Investigative consumer reports
// additionally require the disclosure to acknowledge investigative
// scope
func (s *Svc) VerifyFCRA(ctx context.Context, tenantID, consentID, locale string, investigative bool) (bool, []string, error) {
	if s.repo == nil {
		return false, nil, perr.Unavailablef("consent storage not configured")
	}
	c, err := s.repo.Get(ctx, tenantID, consentID)
	if err != nil {
		return false, nil, err
	}
	ok, errs := consent.VerifyFCRADisclosure(c, locale)
	if investigative && (c.FCRA == nil || !c.FCRA.InvestigativeReport) {
		ok = false
		errs = append(errs, "investigative report disclosure missing")
	}
	return ok, errs, nil
}

func (s *Svc) auditEvent(ctx context.Context, ev auditdom.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("audit record failed")
	}
}
