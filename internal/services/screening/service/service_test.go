package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/consent"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/queryplan"
	"backcheck/internal/core/subject"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	auditdom "backcheck/internal/services/audit/domain"
	consentdom "backcheck/internal/services/consent/domain"
	dispatchdom "backcheck/internal/services/dispatch/domain"
	provdom "backcheck/internal/services/providers/domain"
	retdom "backcheck/internal/services/retention/domain"
	routerdom "backcheck/internal/services/router/domain"
	"backcheck/internal/services/screening/domain"
	tenantdom "backcheck/internal/services/tenants/domain"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu    sync.Mutex
	rows  map[string]domain.Screening
	order []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]domain.Screening{}}
}

func (f *fakeRepo) Insert(_ context.Context, scr domain.Screening) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[scr.ID] = scr
	f.order = append(f.order, scr.ID)
	return nil
}

func (f *fakeRepo) Update(_ context.Context, scr domain.Screening) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[scr.ID]; !ok {
		return perr.NotFoundf("screening %q not found", scr.ID)
	}
	f.rows[scr.ID] = scr
	return nil
}

func (f *fakeRepo) Get(_ context.Context, tenantID, id string) (domain.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scr, ok := f.rows[id]
	if !ok || scr.TenantID != tenantID {
		return domain.Screening{}, perr.NotFoundf("screening %q not found", id)
	}
	return scr, nil
}

func (f *fakeRepo) Lease(_ context.Context, _ string, limit int, _ time.Duration) ([]domain.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Screening
	for _, id := range f.order {
		if len(out) >= limit {
			break
		}
		scr := f.rows[id]
		if scr.Status != domain.StatusPending {
			continue
		}
		now := time.Now().UTC()
		scr.Status = domain.StatusRunning
		scr.StartedAt = &now
		f.rows[id] = scr
		out = append(out, scr)
	}
	return out, nil
}

func (f *fakeRepo) MarkCancelled(_ context.Context, tenantID, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scr, ok := f.rows[id]
	if !ok || scr.TenantID != tenantID || scr.Status != domain.StatusPending {
		return false, nil
	}
	scr.Status = domain.StatusCancelled
	scr.CompletedAt = &at
	f.rows[id] = scr
	return true, nil
}

func (f *fakeRepo) ActiveBySubject(_ context.Context, tenantID, subjectRef string) ([]domain.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Screening
	for _, id := range f.order {
		scr := f.rows[id]
		if scr.TenantID != tenantID || scr.SubjectRef != subjectRef || scr.Status.Terminal() {
			continue
		}
		out = append(out, scr)
	}
	return out, nil
}

func (f *fakeRepo) CompletedSince(_ context.Context, since time.Time, limit int) ([]domain.Screening, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Screening
	for _, id := range f.order {
		if len(out) >= limit {
			break
		}
		scr := f.rows[id]
		if scr.Status == domain.StatusComplete && scr.CompletedAt != nil && !scr.CompletedAt.Before(since) {
			out = append(out, scr)
		}
	}
	return out, nil
}

// get reads a row without tenant scoping; test assertions only
func (f *fakeRepo) get(t *testing.T, id string) domain.Screening {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	scr, ok := f.rows[id]
	if !ok {
		t.Fatalf("screening %q not in repo", id)
	}
	return scr
}

type fakeTenants struct {
	active map[string]bool
}

func (f *fakeTenants) Get(_ context.Context, id string) (tenantdom.Tenant, error) {
	return tenantdom.Tenant{ID: id, Enabled: f.active[id]}, nil
}

func (f *fakeTenants) RequireActive(_ context.Context, id string) (tenantdom.Tenant, error) {
	if !f.active[id] {
		return tenantdom.Tenant{}, perr.Forbiddenf("tenant %q is disabled", id)
	}
	return tenantdom.Tenant{ID: id, Enabled: true}, nil
}

func (f *fakeTenants) Authenticate(_ context.Context, _ string) (tenantdom.Tenant, error) {
	return tenantdom.Tenant{}, perr.Unauthorizedf("not implemented")
}

type fakeConsent struct {
	res           consentdom.Result
	fcraOK        bool
	fcraErrs      []string
	fcraCalls     int
	investigative bool
	gotScopes     []consent.Scope
}

func (f *fakeConsent) Verify(_ context.Context, _, _ string, required []consent.Scope) (consentdom.Result, error) {
	f.gotScopes = required
	return f.res, nil
}

func (f *fakeConsent) Grant(_ context.Context, c consent.Consent) (consent.Consent, error) {
	return c, nil
}

func (f *fakeConsent) Revoke(_ context.Context, _, _ string) error { return nil }

func (f *fakeConsent) VerifyFCRA(_ context.Context, _, _, _ string, investigative bool) (bool, []string, error) {
	f.fcraCalls++
	f.investigative = investigative
	return f.fcraOK, f.fcraErrs, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	subs      []dispatchdom.Submission
	results   map[infotype.Type][]routerdom.RoutedResult
	block     bool
	submitErr error
}

func (f *fakeDispatcher) Start() {}
func (f *fakeDispatcher) Stop()  {}

func (f *fakeDispatcher) Submit(_ context.Context, sub dispatchdom.Submission) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeDispatcher) DispatchForType(ctx context.Context, t infotype.Type) ([]routerdom.RoutedResult, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[t], nil
}

func (f *fakeDispatcher) DispatchAll(_ context.Context) ([]routerdom.RoutedResult, error) {
	return nil, nil
}

func (f *fakeDispatcher) submissions() []dispatchdom.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatchdom.Submission, len(f.subs))
	copy(out, f.subs)
	return out
}

type fakeProviders struct{}

func (fakeProviders) Get(_ string) (provdom.Adapter, bool)              { return nil, false }
func (fakeProviders) ForCheck(_ compliance.CheckType) []provdom.Adapter { return nil }
func (fakeProviders) All() []provdom.Adapter                            { return nil }

func (fakeProviders) PlannerView() []queryplan.ProviderInfo {
	return []queryplan.ProviderInfo{
		{ID: "fixture-identity", Checks: []compliance.CheckType{compliance.CheckIdentity}},
		{ID: "fixture-verify", Checks: []compliance.CheckType{
			compliance.CheckEmployment, compliance.CheckEducation, compliance.CheckCreditReport,
		}},
	}
}

func (fakeProviders) HealthAll(_ context.Context) map[string]provdom.Health { return nil }

type fakeAudit struct {
	mu     sync.Mutex
	events []auditdom.Event
}

func (f *fakeAudit) Record(_ context.Context, ev auditdom.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAudit) kinds() map[auditdom.Kind]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[auditdom.Kind]int, len(f.events))
	for _, ev := range f.events {
		out[ev.Kind]++
	}
	return out
}

type fakeRetention struct {
	mu      sync.Mutex
	records []retdom.Record
}

func (f *fakeRetention) Put(_ context.Context, rec retdom.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRetention) types() map[retdom.DataType]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[retdom.DataType]int, len(f.records))
	for _, rec := range f.records {
		out[rec.DataType]++
	}
	return out
}

type fakeIndexer struct {
	mu  sync.Mutex
	got []domain.Screening
}

func (f *fakeIndexer) IndexScreening(_ context.Context, scr domain.Screening) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, scr)
	return nil
}

func (f *fakeIndexer) indexed() []domain.Screening {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Screening, len(f.got))
	copy(out, f.got)
	return out
}

type env struct {
	svc     *Svc
	repo    *fakeRepo
	tenants *fakeTenants
	consent *fakeConsent
	disp    *fakeDispatcher
	audit   *fakeAudit
	ret     *fakeRetention
	index   *fakeIndexer
}

func newTestEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	eval, err := compliance.New()
	if err != nil {
		t.Fatalf("compliance.New: %v", err)
	}
	if cfg.StandardDeadline == 0 {
		cfg.StandardDeadline = 5 * time.Second
	}
	if cfg.EnhancedDeadline == 0 {
		cfg.EnhancedDeadline = 10 * time.Second
	}
	e := &env{
		repo:    newFakeRepo(),
		tenants: &fakeTenants{active: map[string]bool{"tenant-a": true}},
		consent: &fakeConsent{},
		disp:    &fakeDispatcher{},
		audit:   &fakeAudit{},
		ret:     &fakeRetention{},
		index:   &fakeIndexer{},
	}
	e.svc = &Svc{
		repo:    e.repo,
		tenants: e.tenants,
		eval:    eval,
		consent: e.consent,
		disp:    e.disp,
		prov:    fakeProviders{},
		audit:   e.audit,
		ret:     e.ret,
		index:   e.index,
		cfg:     cfg,
		log:     *logger.Named("screening-test"),
		now:     func() time.Time { return fixedNow },
		handles: map[string]*handle{},
	}
	return e
}

func validReq() domain.Request {
	return domain.Request{
		TenantID:   "tenant-a",
		SubjectRef: "emp-1001",
		Subject:    subject.Subject{FullName: "Jordan Q. Sample", DOB: "1990-04-12"},
		Checks:     []compliance.CheckType{compliance.CheckIdentity, compliance.CheckEmployment},
		Locale:     "US",
		Role:       "engineer",
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true}

	cases := []struct {
		name   string
		mutate func(*domain.Request)
	}{
		{"missing tenant", func(r *domain.Request) { r.TenantID = "" }},
		{"missing subject ref", func(r *domain.Request) { r.SubjectRef = "" }},
		{"blank subject name", func(r *domain.Request) { r.Subject.FullName = "   " }},
		{"missing locale", func(r *domain.Request) { r.Locale = "" }},
		{"no checks", func(r *domain.Request) { r.Checks = nil }},
		{"unknown check", func(r *domain.Request) {
			r.Checks = []compliance.CheckType{"PALM_READING"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validReq()
			tc.mutate(&req)
			_, err := e.svc.Submit(context.Background(), req)
			if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
				t.Fatalf("err = %v, want invalid argument", err)
			}
		})
	}
}

func TestSubmitRejectsInactiveTenant(t *testing.T) {
	e := newTestEnv(t, Config{})
	req := validReq()
	req.TenantID = "tenant-disabled"

	_, err := e.svc.Submit(context.Background(), req)
	if !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestSubmitAllChecksBlocked(t *testing.T) {
	e := newTestEnv(t, Config{})
	req := validReq()
	req.Locale = "EU"
	req.Checks = []compliance.CheckType{compliance.CheckCreditReport, compliance.CheckCriminalCounty}

	scr, err := e.svc.Submit(context.Background(), req)
	if !perr.IsCode(err, perr.ErrorCodeComplianceBlocked) {
		t.Fatalf("err = %v, want compliance blocked", err)
	}
	if scr.Status != domain.StatusFailed || scr.FailReason != domain.FailComplianceBlock {
		t.Fatalf("screening = %s/%s, want failed/%s", scr.Status, scr.FailReason, domain.FailComplianceBlock)
	}
	if len(scr.BlockedChecks) != 2 || len(scr.PermittedChecks) != 0 {
		t.Fatalf("blocked = %d permitted = %d, want 2 and 0", len(scr.BlockedChecks), len(scr.PermittedChecks))
	}

	// the gate failure must leave a queryable row
	row := e.repo.get(t, scr.ID)
	if row.Status != domain.StatusFailed {
		t.Fatalf("persisted status = %s, want failed", row.Status)
	}
	kinds := e.audit.kinds()
	if kinds[auditdom.KindComplianceViolation] != 2 {
		t.Fatalf("compliance violations = %d, want 2", kinds[auditdom.KindComplianceViolation])
	}
	if kinds[auditdom.KindScreeningFailed] != 1 {
		t.Fatalf("screening.failed events = %d, want 1", kinds[auditdom.KindScreeningFailed])
	}
}

func TestSubmitMissingConsentScopes(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{
		Valid:         false,
		MissingScopes: []consent.Scope{consent.ScopeBackgroundCheck},
	}

	scr, err := e.svc.Submit(context.Background(), validReq())
	if !perr.IsCode(err, perr.ErrorCodeConsentMissing) {
		t.Fatalf("err = %v, want consent missing", err)
	}
	if scr.FailReason != domain.FailConsentMissing {
		t.Fatalf("fail reason = %s, want %s", scr.FailReason, domain.FailConsentMissing)
	}
	if len(scr.MissingScopes) != 1 || scr.MissingScopes[0] != consent.ScopeBackgroundCheck {
		t.Fatalf("missing scopes = %v", scr.MissingScopes)
	}
	if len(e.consent.gotScopes) == 0 {
		t.Fatal("verify never received the required scopes")
	}
	row := e.repo.get(t, scr.ID)
	if row.Status != domain.StatusFailed {
		t.Fatalf("persisted status = %s, want failed", row.Status)
	}
}

func TestSubmitFCRADisclosureGate(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true, ConsentID: "c-1"}
	e.consent.fcraOK = false
	e.consent.fcraErrs = []string{"standalone disclosure missing"}

	req := validReq()
	req.Checks = []compliance.CheckType{compliance.CheckCreditReport}
	req.InvestigativeReport = true

	scr, err := e.svc.Submit(context.Background(), req)
	if !perr.IsCode(err, perr.ErrorCodeConsentMissing) {
		t.Fatalf("err = %v, want consent missing", err)
	}
	if e.consent.fcraCalls != 1 {
		t.Fatalf("fcra calls = %d, want 1", e.consent.fcraCalls)
	}
	if !e.consent.investigative {
		t.Fatal("investigative flag not passed through")
	}
	if scr.FailReason != domain.FailConsentMissing {
		t.Fatalf("fail reason = %s, want %s", scr.FailReason, domain.FailConsentMissing)
	}
}

func TestSubmitAdmitsPendingScreening(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true, ConsentID: "c-9"}

	scr, err := e.svc.Submit(context.Background(), validReq())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if scr.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", scr.Status)
	}
	if scr.Tier != compliance.TierStandard {
		t.Fatalf("tier = %s, want standard default", scr.Tier)
	}
	if scr.ConsentID != "c-9" {
		t.Fatalf("consent id = %q, want the verified consent", scr.ConsentID)
	}
	if len(scr.PermittedChecks) != 2 {
		t.Fatalf("permitted = %d, want 2", len(scr.PermittedChecks))
	}
	if !scr.CreatedAt.Equal(fixedNow) {
		t.Fatalf("created at = %v, want %v", scr.CreatedAt, fixedNow)
	}
	if e.audit.kinds()[auditdom.KindScreeningInitiated] != 1 {
		t.Fatal("screening.initiated event missing")
	}
	row := e.repo.get(t, scr.ID)
	if row.Status != domain.StatusPending {
		t.Fatalf("persisted status = %s, want pending", row.Status)
	}
}

func TestGetScopedToTenant(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true}
	scr, err := e.svc.Submit(context.Background(), validReq())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := e.svc.Get(context.Background(), "tenant-a", scr.ID); err != nil {
		t.Fatalf("get own screening: %v", err)
	}
	_, err = e.svc.Get(context.Background(), "tenant-b", scr.ID)
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("cross-tenant get err = %v, want not found", err)
	}
}

func TestCancelPendingScreening(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true}
	scr, err := e.svc.Submit(context.Background(), validReq())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := e.svc.Cancel(context.Background(), "tenant-a", scr.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(fixedNow) {
		t.Fatalf("completed at = %v, want %v", got.CompletedAt, fixedNow)
	}
	if e.audit.kinds()[auditdom.KindScreeningCancelled] != 1 {
		t.Fatal("screening.cancelled event missing")
	}

	// a second cancel is a no-op on the terminal row
	again, err := e.svc.Cancel(context.Background(), "tenant-a", scr.ID)
	if err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if again.Status != domain.StatusCancelled {
		t.Fatalf("repeat status = %s, want cancelled", again.Status)
	}
	if e.audit.kinds()[auditdom.KindScreeningCancelled] != 1 {
		t.Fatal("repeat cancel must not add a second trail event")
	}
}

func TestCancelBySubjectSweepsActiveRows(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true}

	first, err := e.svc.Submit(context.Background(), validReq())
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	second, err := e.svc.Submit(context.Background(), validReq())
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}

	other := validReq()
	other.SubjectRef = "emp-2002"
	bystander, err := e.svc.Submit(context.Background(), other)
	if err != nil {
		t.Fatalf("submit bystander: %v", err)
	}

	got, err := e.svc.CancelBySubject(context.Background(), "tenant-a", "emp-1001")
	if err != nil {
		t.Fatalf("cancel by subject: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("cancelled = %d rows, want 2", len(got))
	}
	for _, scr := range got {
		if scr.Status != domain.StatusCancelled {
			t.Fatalf("screening %s status = %s, want cancelled", scr.ID, scr.Status)
		}
	}
	if e.repo.get(t, first.ID).Status != domain.StatusCancelled ||
		e.repo.get(t, second.ID).Status != domain.StatusCancelled {
		t.Fatal("subject rows not cancelled in storage")
	}
	if e.repo.get(t, bystander.ID).Status != domain.StatusPending {
		t.Fatal("other subject's screening must stay pending")
	}

	// terminal rows fall out of the active set, so a repeat is empty
	again, err := e.svc.CancelBySubject(context.Background(), "tenant-a", "emp-1001")
	if err != nil {
		t.Fatalf("repeat cancel by subject: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("repeat cancelled %d rows, want 0", len(again))
	}
}

func TestReportRequiresCompleteStatus(t *testing.T) {
	e := newTestEnv(t, Config{})
	e.consent.res = consentdom.Result{Valid: true}
	scr, err := e.svc.Submit(context.Background(), validReq())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = e.svc.Report(context.Background(), "tenant-a", scr.ID)
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}
