// Package service implements the screening orchestrator.
// Submit runs the admission gates (tenant, compliance, consent, FCRA)
// and queues the work; the runner drives phased search-assess-refine
// loops through the dispatcher and scores the terminal outcome
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/consent"
	"backcheck/internal/modkit"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	auditdom "backcheck/internal/services/audit/domain"
	consentdom "backcheck/internal/services/consent/domain"
	dispatchdom "backcheck/internal/services/dispatch/domain"
	provdom "backcheck/internal/services/providers/domain"
	retdom "backcheck/internal/services/retention/domain"
	"backcheck/internal/services/screening/domain"
	srepo "backcheck/internal/services/screening/repo"
	tenantdom "backcheck/internal/services/tenants/domain"
)

// Config tunes the orchestrator
type Config struct {
	StandardDeadline time.Duration
	EnhancedDeadline time.Duration
	WorkerID         string
	Concurrency      int
	TakeBatch        int
	TickEvery        time.Duration
	LeaseFor         time.Duration

	// InlineRun executes admitted screenings in-process instead of
	// leaving them for a screener worker to lease. Single-binary
	// deployments only; do not combine with a separate worker
	InlineRun bool

	// Metrics defaults to a set registered on the default registerer;
	// tests inject their own
	Metrics *Metrics
}

const (
	defaultStandardDeadline = 10 * time.Minute
	defaultEnhancedDeadline = 30 * time.Minute
	defaultConcurrency      = 4
	defaultTakeBatch        = 2
	defaultTickEvery        = 500 * time.Millisecond

	// lease TTL must outlive the longest screening deadline
	defaultLeaseFor = 35 * time.Minute
)

// Svc implements domain.ScreeningPort and domain.WorkerPort
type Svc struct {
	repo    domain.StorageRepo
	tenants tenantdom.RegistryPort
	eval    *compliance.Evaluator
	consent consentdom.StorePort
	disp    dispatchdom.DispatcherPort
	prov    provdom.RegistryPort
	audit   auditdom.RecorderPort
	ret     retdom.RecorderPort
	index   domain.IndexerPort

	cfg     Config
	metrics *Metrics
	log     logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	handles  map[string]*handle
	inflight sync.WaitGroup
}

// handle tracks one in-process run so Cancel can reach its context
type handle struct {
	cancel    context.CancelFunc
	requested bool
}

// New constructs the orchestrator
func New(deps modkit.Deps, cfg Config, ports domain.Ports) *Svc {
	if cfg.StandardDeadline <= 0 {
		cfg.StandardDeadline = defaultStandardDeadline
	}
	if cfg.EnhancedDeadline <= 0 {
		cfg.EnhancedDeadline = defaultEnhancedDeadline
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.TakeBatch <= 0 {
		cfg.TakeBatch = defaultTakeBatch
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = defaultTickEvery
	}
	if cfg.LeaseFor <= 0 {
		cfg.LeaseFor = defaultLeaseFor
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	var repo domain.StorageRepo
	if deps.PG != nil {
		repo = repokit.MustBind(srepo.NewPG(), deps.PG)
	}
	return &Svc{
		repo:    repo,
		tenants: ports.Tenants,
		eval:    ports.Compliance,
		consent: ports.Consent,
		disp:    ports.Dispatcher,
		prov:    ports.Providers,
		audit:   ports.Audit,
		ret:     ports.Retention,
		index:   ports.Indexer,
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     deps.Log.With().Str("component", "screening").Logger(),
		now:     time.Now,
		handles: map[string]*handle{},
	}
}

// Submit admits one screening request. Gates run in order: tenant
// active, compliance, consent scopes, FCRA disclosure. A gate failure
// persists a failed screening so the trail stays queryable, then
// surfaces as the matching typed error
func (s *Svc) Submit(ctx context.Context, req domain.Request) (domain.Screening, error) {
	req.Tier = compliance.ParseTier(string(req.Tier))
	if err := validateRequest(req); err != nil {
		return domain.Screening{}, err
	}
	if s.repo == nil {
		return domain.Screening{}, perr.Unavailablef("screening storage not configured")
	}
	if _, err := s.tenants.RequireActive(ctx, req.TenantID); err != nil {
		return domain.Screening{}, err
	}

	scr := domain.Screening{
		ID:              uuid.NewString(),
		TenantID:        req.TenantID,
		SubjectRef:      req.SubjectRef,
		Subject:         req.Subject,
		RequestedChecks: req.Checks,
		Tier:            req.Tier,
		Locale:          req.Locale,
		Role:            req.Role,
		ConsentID:       req.ConsentID,
		CorrelationID:   req.CorrelationID,
		Status:          domain.StatusPending,
		CreatedAt:       s.now().UTC(),
	}

	permitted, blocked := s.eval.ValidateChecks(req.Locale, req.Checks, req.Role, req.Tier)
	scr.PermittedChecks = permitted
	scr.BlockedChecks = blocked
	for _, b := range blocked {
		s.auditEvent(ctx, auditdom.Event{
			Kind:        auditdom.KindComplianceViolation,
			TenantID:    scr.TenantID,
			ScreeningID: scr.ID,
			SubjectID:   scr.SubjectRef,
			Detail:      map[string]any{"check": string(b.Check), "reason": b.Reason},
		})
	}
	if len(permitted) == 0 {
		err := perr.ComplianceBlockedf("no requested check is permitted in %s", req.Locale)
		return s.failSubmit(ctx, scr, domain.FailComplianceBlock, blockDetail(blocked), err)
	}

	res, err := s.consent.Verify(ctx, req.TenantID, req.SubjectRef, consent.RequiredScopes(permitted))
	if err != nil {
		return domain.Screening{}, err
	}
	if !res.Valid {
		scr.MissingScopes = res.MissingScopes
		detail := "missing consent scopes: " + strings.Join(scopeNames(res.MissingScopes), ", ")
		return s.failSubmit(ctx, scr, domain.FailConsentMissing, detail, perr.ConsentMissingf("%s", detail))
	}
	if res.ConsentID != "" {
		scr.ConsentID = res.ConsentID
	}

	if scr.ConsentID != "" && s.requiresDisclosure(req, permitted) {
		ok, errs, err := s.consent.VerifyFCRA(ctx, req.TenantID, scr.ConsentID, req.Locale, req.InvestigativeReport)
		if err != nil {
			return domain.Screening{}, err
		}
		if !ok {
			detail := "fcra disclosure: " + strings.Join(errs, "; ")
			return s.failSubmit(ctx, scr, domain.FailConsentMissing, detail, perr.ConsentMissingf("%s", detail))
		}
	}

	if err := s.repo.Insert(ctx, scr); err != nil {
		return domain.Screening{}, err
	}
	s.auditEvent(ctx, auditdom.Event{
		Kind:        auditdom.KindScreeningInitiated,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
		SubjectID:   scr.SubjectRef,
		Detail: map[string]any{
			"checks":  checkNames(permitted),
			"blocked": len(blocked),
			"tier":    string(scr.Tier),
			"locale":  scr.Locale,
		},
	})
	s.log.Info().Str("screening_id", scr.ID).Str("tenant", scr.TenantID).
		Int("permitted", len(permitted)).Int("blocked", len(blocked)).
		Msg("screening admitted")

	if s.cfg.InlineRun {
		s.inflight.Add(1)
		go s.execute(scr)
	}
	return scr, nil
}

// Get returns one screening scoped to the tenant
func (s *Svc) Get(ctx context.Context, tenantID, id string) (domain.Screening, error) {
	if tenantID == "" || id == "" {
		return domain.Screening{}, perr.InvalidArgf("get needs a tenant and screening id")
	}
	if s.repo == nil {
		return domain.Screening{}, perr.Unavailablef("screening storage not configured")
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Cancel stops a screening. Pending rows flip straight to cancelled;
// an in-process run is cancelled through its context and reaches the
// cancelled status when the runner winds down. Terminal screenings are
// a no-op returning the current state
func (s *Svc) Cancel(ctx context.Context, tenantID, id string) (domain.Screening, error) {
	if tenantID == "" || id == "" {
		return domain.Screening{}, perr.InvalidArgf("cancel needs a tenant and screening id")
	}
	if s.repo == nil {
		return domain.Screening{}, perr.Unavailablef("screening storage not configured")
	}

	scr, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return domain.Screening{}, err
	}
	if scr.Status.Terminal() {
		return scr, nil
	}

	changed, err := s.repo.MarkCancelled(ctx, tenantID, id, s.now().UTC())
	if err != nil {
		return domain.Screening{}, err
	}
	delivered := s.requestCancel(id)
	if changed {
		// was still pending; the runner never saw it
		s.auditEvent(ctx, auditdom.Event{
			Kind:        auditdom.KindScreeningCancelled,
			TenantID:    tenantID,
			ScreeningID: id,
			SubjectID:   scr.SubjectRef,
		})
		s.metrics.RecordScreening(string(domain.StatusCancelled), 0)
	}
	if !changed && !delivered {
		s.log.Warn().Str("screening_id", id).
			Msg("cancel requested for a run owned by another worker")
	}
	return s.repo.Get(ctx, tenantID, id)
}

// CancelBySubject cancels every non-terminal screening the tenant holds
// for the subject ref. Used when an HRIS reports the employee gone; a
// subject with no active screenings is not an error
func (s *Svc) CancelBySubject(ctx context.Context, tenantID, subjectRef string) ([]domain.Screening, error) {
	if tenantID == "" || subjectRef == "" {
		return nil, perr.InvalidArgf("cancel needs a tenant and subject ref")
	}
	if s.repo == nil {
		return nil, perr.Unavailablef("screening storage not configured")
	}

	active, err := s.repo.ActiveBySubject(ctx, tenantID, subjectRef)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Screening, 0, len(active))
	for _, scr := range active {
		cancelled, err := s.Cancel(ctx, tenantID, scr.ID)
		if err != nil {
			return out, err
		}
		out = append(out, cancelled)
	}
	return out, nil
}

// Report assembles the caller-facing risk report for a complete
// screening and writes the data.accessed trail event
func (s *Svc) Report(ctx context.Context, tenantID, id string) (domain.Report, error) {
	scr, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return domain.Report{}, err
	}
	if scr.Status != domain.StatusComplete || scr.Score == nil {
		return domain.Report{}, perr.Conflictf("screening %q is %s; the report needs complete", id, string(scr.Status))
	}

	rep := domain.Report{
		ScreeningID:     scr.ID,
		TenantID:        scr.TenantID,
		SubjectRef:      scr.SubjectRef,
		Subject:         scr.Subject,
		Checks:          scr.PermittedChecks,
		BlockedChecks:   scr.BlockedChecks,
		Tier:            scr.Tier,
		Locale:          scr.Locale,
		Score:           *scr.Score,
		TypeStates:      scr.TypeStates,
		Inconsistencies: scr.Inconsistencies,
		StaleDataUsed:   scr.StaleDataUsed,
		GeneratedAt:     s.now().UTC(),
	}
	if scr.Knowledge != nil {
		rep.Knowledge = *scr.Knowledge
	}
	if scr.CompletedAt != nil {
		rep.CompletedAt = *scr.CompletedAt
	}
	s.auditEvent(ctx, auditdom.Event{
		Kind:        auditdom.KindDataAccessed,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
		SubjectID:   scr.SubjectRef,
		Detail:      map[string]any{"surface": "report"},
	})
	return rep, nil
}

// failSubmit persists the gate failure, emits the trail event and
// returns the typed gate error with the failed screening
func (s *Svc) failSubmit(ctx context.Context, scr domain.Screening, reason domain.FailReason, detail string, cause error) (domain.Screening, error) {
	now := s.now().UTC()
	scr.Status = domain.StatusFailed
	scr.FailReason = reason
	scr.FailDetail = detail
	scr.CompletedAt = &now
	if err := s.repo.Insert(ctx, scr); err != nil {
		s.log.Error().Err(err).Str("screening_id", scr.ID).Msg("gate failure not persisted")
	}
	s.auditEvent(ctx, auditdom.Event{
		Kind:        auditdom.KindScreeningFailed,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
		SubjectID:   scr.SubjectRef,
		Detail:      map[string]any{"reason": string(reason), "detail": detail},
	})
	s.metrics.RecordScreening(string(domain.StatusFailed), 0)
	return scr, cause
}

// requiresDisclosure reports whether any permitted check carries an
// FCRA disclosure requirement under the request's locale rules
func (s *Svc) requiresDisclosure(req domain.Request, permitted []compliance.CheckType) bool {
	for _, c := range permitted {
		if s.eval.Evaluate(req.Locale, c, req.Role, req.Tier).RequiresDisclosure {
			return true
		}
	}
	return false
}

func (s *Svc) register(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[id] = &handle{cancel: cancel}
}

func (s *Svc) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// requestCancel reaches an in-process run; reports whether one was found
func (s *Svc) requestCancel(id string) bool {
	s.mu.Lock()
	h, ok := s.handles[id]
	if ok {
		h.requested = true
	}
	s.mu.Unlock()
	if ok {
		h.cancel()
	}
	return ok
}

// cancelRequested distinguishes a caller cancel from the deadline firing
func (s *Svc) cancelRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return ok && h.requested
}

func (s *Svc) auditEvent(ctx context.Context, ev auditdom.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("audit record failed")
	}
}

func (s *Svc) retain(ctx context.Context, rec retdom.Record) {
	if s.ret == nil {
		return
	}
	if err := s.ret.Put(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("data_type", string(rec.DataType)).Msg("retention record failed")
	}
}

func validateRequest(req domain.Request) error {
	switch {
	case req.TenantID == "":
		return perr.InvalidArgf("tenant_id is required")
	case req.SubjectRef == "":
		return perr.InvalidArgf("subject_ref is required")
	case strings.TrimSpace(req.Subject.FullName) == "":
		return perr.InvalidArgf("subject full_name is required")
	case req.Locale == "":
		return perr.InvalidArgf("locale is required")
	case len(req.Checks) == 0:
		return perr.InvalidArgf("at least one check is required")
	}
	for _, c := range req.Checks {
		if !compliance.KnownCheck(c) {
			return perr.InvalidArgf("unknown check type %q", string(c))
		}
	}
	return nil
}

func scopeNames(scopes []consent.Scope) []string {
	out := make([]string, len(scopes))
	for i, sc := range scopes {
		out[i] = string(sc)
	}
	return out
}

func checkNames(checks []compliance.CheckType) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = string(c)
	}
	return out
}

func blockDetail(blocked []compliance.BlockedCheck) string {
	parts := make([]string, len(blocked))
	for i, b := range blocked {
		parts[i] = string(b.Check) + ": " + b.Reason
	}
	return "all requested checks blocked: " + strings.Join(parts, "; ")
}

var _ domain.ScreeningPort = (*Svc)(nil)
var _ domain.WorkerPort = (*Svc)(nil)
