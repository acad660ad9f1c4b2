// Package service processes HRIS webhook deliveries. The pipeline is
// fixed: tenant gate, per-tenant rate limit, signature verification,
// payload parse, then event routing. Order matters; nothing derived
// from the body is trusted before the signature holds
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/consent"
	"backcheck/internal/modkit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	auditdom "backcheck/internal/services/audit/domain"
	consentdom "backcheck/internal/services/consent/domain"
	"backcheck/internal/services/hris/domain"
	routerdom "backcheck/internal/services/router/domain"
	screeningdom "backcheck/internal/services/screening/domain"
	tenantdom "backcheck/internal/services/tenants/domain"
)

const (
	defaultWebhookRPS   = 10
	defaultWebhookBurst = 20
	defaultLocale       = "US"
	defaultSeedFreshFor = 30 * 24 * time.Hour
	defaultSeedStaleFor = 60 * 24 * time.Hour
)

// Config tunes webhook processing
type Config struct {
	WebhookRPS   float64
	WebhookBurst int

	// DefaultChecks run when a hire event names none
	DefaultChecks []compliance.CheckType

	// DefaultLocale applies when neither the screening block nor the
	// employee address carries one
	DefaultLocale string

	// SeedFreshFor and SeedStaleFor bound the employment data a hire
	// event seeds into the check cache
	SeedFreshFor time.Duration
	SeedStaleFor time.Duration

	Metrics *Metrics
}

// Svc implements domain.WebhookPort
type Svc struct {
	tenants tenantdom.RegistryPort
	scr     screeningdom.ScreeningPort
	consent consentdom.StorePort
	audit   auditdom.RecorderPort
	cache   routerdom.CacheSeedPort

	cfg     Config
	limits  *limiterSet
	metrics *Metrics
	log     logger.Logger
}

// New constructs the webhook processor
func New(deps modkit.Deps, cfg Config, ports domain.Ports) *Svc {
	if cfg.WebhookRPS <= 0 {
		cfg.WebhookRPS = defaultWebhookRPS
	}
	if cfg.WebhookBurst <= 0 {
		cfg.WebhookBurst = defaultWebhookBurst
	}
	if len(cfg.DefaultChecks) == 0 {
		cfg.DefaultChecks = []compliance.CheckType{
			compliance.CheckIdentity,
			compliance.CheckCriminalNational,
			compliance.CheckEmployment,
		}
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = defaultLocale
	}
	if cfg.SeedFreshFor <= 0 {
		cfg.SeedFreshFor = defaultSeedFreshFor
	}
	if cfg.SeedStaleFor <= 0 {
		cfg.SeedStaleFor = defaultSeedStaleFor
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	return &Svc{
		tenants: ports.Tenants,
		scr:     ports.Screenings,
		consent: ports.Consent,
		audit:   ports.Audit,
		cache:   ports.Cache,
		cfg:     cfg,
		limits:  newLimiterSet(cfg.WebhookRPS, cfg.WebhookBurst),
		metrics: cfg.Metrics,
		log:     deps.Log.With().Str("component", "hris").Logger(),
	}
}

// Process runs one delivery through the pipeline. Errors carry codes
// the HTTP layer maps directly: not-found for unknown or disabled
// tenants, too-many-requests past the limiter, unauthorized on a bad
// signature, validation on an unreadable body or unroutable event
func (s *Svc) Process(ctx context.Context, d domain.Delivery) (domain.Ack, error) {
	ten, err := s.requireHRISTenant(ctx, d.TenantID)
	if err != nil {
		s.metrics.RecordRejected("tenant")
		return domain.Ack{}, err
	}
	if !s.limits.allow(ten.ID) {
		s.metrics.RecordRejected("rate")
		return domain.Ack{}, perr.TooManyRequestsf("tenant %q is over its webhook rate", ten.ID)
	}
	if err := verifySignature(ten.WebhookSecret, d.Body, d.Signatures); err != nil {
		s.metrics.RecordRejected("signature")
		return domain.Ack{}, err
	}

	payload, err := parsePayload(d.Body)
	if err != nil {
		s.metrics.RecordRejected("payload")
		return domain.Ack{}, err
	}
	event, ok := resolveEvent(d.TypeHints, payload)
	if !ok {
		s.metrics.RecordRejected("event_type")
		return domain.Ack{}, perr.Newf(perr.ErrorCodeValidation, "event type missing or unrecognized")
	}

	s.auditEvent(ctx, auditdom.Event{
		Kind:     auditdom.KindWebhookReceived,
		TenantID: ten.ID,
		Actor:    "hris",
		Detail:   map[string]any{"event": string(event), "bytes": len(d.Body)},
	})

	var ack domain.Ack
	switch event {
	case domain.EventHireInitiated, domain.EventRehireInitiated:
		ack, err = s.handleHire(ctx, ten, event, payload)
	case domain.EventConsentGranted:
		ack, err = s.handleConsent(ctx, ten, payload)
	case domain.EventPositionChanged:
		ack = domain.Ack{Event: event, Action: domain.ActionAcknowledged}
	case domain.EventEmployeeTerminated:
		ack, err = s.handleTermination(ctx, ten, payload)
	}
	if err != nil {
		return domain.Ack{}, err
	}
	s.metrics.RecordProcessed(string(event), ack.Action)
	s.log.Info().
		Str("tenant", ten.ID).
		Str("event", string(event)).
		Str("action", ack.Action).
		Msg("hris webhook processed")
	return ack, nil
}

// requireHRISTenant resolves the tenant for webhook traffic. This
// surface never distinguishes unknown from disabled; both read as
// not-found so probes cannot enumerate tenant ids
func (s *Svc) requireHRISTenant(ctx context.Context, id string) (tenantdom.Tenant, error) {
	if strings.TrimSpace(id) == "" {
		return tenantdom.Tenant{}, perr.NotFoundf("unknown tenant")
	}
	ten, err := s.tenants.RequireActive(ctx, id)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) || perr.IsCode(err, perr.ErrorCodeForbidden) {
			return tenantdom.Tenant{}, perr.NotFoundf("unknown tenant %q", id)
		}
		return tenantdom.Tenant{}, err
	}
	if !ten.HRISEnabled {
		return tenantdom.Tenant{}, perr.NotFoundf("no hris connection for tenant %q", id)
	}
	return ten, nil
}

// verifySignature checks the delivery HMAC against every presented
// signature value. Values are hex, with or without a sha256= prefix
func verifySignature(secret string, body []byte, sigs []string) error {
	if secret == "" {
		return perr.Unauthorizedf("webhook signing is not configured")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	for _, sig := range sigs {
		sig = strings.TrimPrefix(strings.TrimSpace(sig), "sha256=")
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, want) {
			return nil
		}
	}
	return perr.Unauthorizedf("webhook signature invalid")
}

// handleHire turns a hire or rehire event into a screening submission.
// Consent embedded in the payload is recorded first so the submission
// sees it; employment data seeds the check cache before any provider
// would be asked to verify what the employer already attested
func (s *Svc) handleHire(ctx context.Context, ten tenantdom.Tenant, event domain.EventType, payload map[string]any) (domain.Ack, error) {
	emp := section(payload, "employee")
	ref := str(emp, "id", "employee_id")
	if ref == "" {
		return domain.Ack{}, perr.Newf(perr.ErrorCodeValidation, "%s event carries no employee id", event)
	}

	scrBlock := section(payload, "screening")
	req := screeningdom.Request{
		TenantID:      ten.ID,
		SubjectRef:    ref,
		Subject:       subjectFrom(emp),
		Checks:        checksFrom(scrBlock, s.cfg.DefaultChecks),
		Tier:          compliance.ParseTier(str(scrBlock, "tier")),
		Locale:        s.localeFor(scrBlock, emp),
		Role:          str(section(payload, "position"), "title"),
		ConsentID:     str(scrBlock, "consent_id"),
		CorrelationID: str(payload, "correlation_id", "id"),
	}

	if c := section(payload, "consent"); c != nil {
		granted, err := s.consent.Grant(ctx, consentFrom(ten.ID, ref, req.Locale, c))
		if err != nil {
			if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
				return domain.Ack{}, err
			}
			s.log.Warn().Err(err).Str("tenant", ten.ID).Msg("hris inline consent rejected")
		} else {
			req.ConsentID = granted.ID
		}
	}

	s.seedEmployment(ctx, ten.ID, req, payload)

	scr, err := s.scr.Submit(ctx, req)
	if err != nil {
		// A submission the sender cannot repair by retrying still acks;
		// the failed row and its audit trail already exist on our side
		if perr.IsCode(err, perr.ErrorCodeComplianceBlocked) ||
			perr.IsCode(err, perr.ErrorCodeConsentMissing) ||
			perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
			s.log.Warn().Err(err).Str("tenant", ten.ID).Str("subject_ref", ref).Msg("hris screening rejected")
			return domain.Ack{
				Event:  event,
				Action: domain.ActionScreeningRejected,
				Detail: err.Error(),
			}, nil
		}
		return domain.Ack{}, err
	}
	return domain.Ack{
		Event:       event,
		Action:      domain.ActionScreeningSubmitted,
		ScreeningID: scr.ID,
	}, nil
}

// handleConsent records a standalone consent grant
func (s *Svc) handleConsent(ctx context.Context, ten tenantdom.Tenant, payload map[string]any) (domain.Ack, error) {
	emp := section(payload, "employee")
	ref := str(emp, "id", "employee_id")
	if ref == "" {
		ref = str(payload, "subject_id", "employee_id")
	}
	if ref == "" {
		return domain.Ack{}, perr.Newf(perr.ErrorCodeValidation, "consent event carries no employee id")
	}

	block := section(payload, "consent")
	if block == nil {
		block = payload
	}
	c := consentFrom(ten.ID, ref, s.localeFor(block, emp), block)
	granted, err := s.consent.Grant(ctx, c)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
			return domain.Ack{}, perr.Newf(perr.ErrorCodeValidation, "consent event invalid: %v", err)
		}
		return domain.Ack{}, err
	}
	return domain.Ack{
		Event:     domain.EventConsentGranted,
		Action:    domain.ActionConsentRecorded,
		ConsentID: granted.ID,
	}, nil
}

// handleTermination sweeps the subject's active screenings. A subject
// with nothing in flight still acks; the roster is the HRIS's truth,
// not ours
func (s *Svc) handleTermination(ctx context.Context, ten tenantdom.Tenant, payload map[string]any) (domain.Ack, error) {
	emp := section(payload, "employee")
	ref := str(emp, "id", "employee_id")
	if ref == "" {
		ref = str(payload, "employee_id", "subject_id")
	}
	if ref == "" {
		return domain.Ack{}, perr.Newf(perr.ErrorCodeValidation, "termination event carries no employee id")
	}

	cancelled, err := s.scr.CancelBySubject(ctx, ten.ID, ref)
	if err != nil {
		return domain.Ack{}, err
	}
	ids := make([]string, 0, len(cancelled))
	for _, scr := range cancelled {
		ids = append(ids, scr.ID)
	}
	return domain.Ack{
		Event:        domain.EventEmployeeTerminated,
		Action:       domain.ActionScreeningsCancelled,
		CancelledIDs: ids,
	}, nil
}

// localeFor picks the screening locale: explicit block value, then the
// employee's address country/region, then the configured default
func (s *Svc) localeFor(block, emp map[string]any) string {
	if v := str(block, "locale"); v != "" {
		return v
	}
	if addr := section(emp, "address"); addr != nil {
		country := strings.ToUpper(str(addr, "country"))
		region := strings.ToUpper(str(addr, "region", "state"))
		switch {
		case country != "" && region != "":
			return country + "_" + region
		case country != "":
			return country
		}
	}
	return s.cfg.DefaultLocale
}

// seedEmployment pushes the employer-attested position into the check
// cache under CUSTOMER_PROVIDED origin. Best effort; a seed failure
// never blocks the screening
func (s *Svc) seedEmployment(ctx context.Context, tenantID string, req screeningdom.Request, payload map[string]any) {
	if s.cache == nil {
		return
	}
	company := str(section(payload, "company"), "name")
	if company == "" {
		return
	}
	employer := map[string]any{"name": company}
	if pos := section(payload, "position"); pos != nil {
		if v := str(pos, "title"); v != "" {
			employer["title"] = v
		}
		if v := str(pos, "start_date"); v != "" {
			employer["start_date"] = v
		}
		if v := str(pos, "department"); v != "" {
			employer["department"] = v
		}
	}
	err := s.cache.Seed(ctx, routerdom.SeedRequest{
		CheckType: compliance.CheckEmployment,
		Subject:   req.Subject,
		Locale:    req.Locale,
		TenantID:  tenantID,
		Source:    "hris",
		Data:      map[string]any{"employers": []any{employer}, "confidence": 0.95},
		FreshFor:  s.cfg.SeedFreshFor,
		StaleFor:  s.cfg.SeedStaleFor,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("tenant", tenantID).Msg("hris employment seed failed")
	}
}

// consentFrom builds a consent row from a payload block. The method is
// always hris-api; this pipeline is the API in question
func consentFrom(tenantID, subjectID, locale string, block map[string]any) consent.Consent {
	c := consent.Consent{
		SubjectID: subjectID,
		TenantID:  tenantID,
		Method:    consent.MethodHRISAPI,
		Locale:    locale,
	}
	for _, raw := range list(block, "scopes") {
		v, ok := raw.(string)
		if !ok {
			continue
		}
		if sc := consent.ParseScope(v); sc != "" {
			c.Scopes = append(c.Scopes, sc)
		}
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []consent.Scope{consent.ScopeBackgroundCheck}
	}
	if at := timeAt(block, "granted_at"); at != nil {
		c.GrantedAt = *at
	}
	if at := timeAt(block, "expires_at"); at != nil {
		c.ExpiresAt = at
	}
	if f := section(block, "fcra"); f != nil {
		c.FCRA = &consent.FCRADisclosure{
			StandaloneDisclosure: boolAt(f, "standalone_disclosure"),
			SummaryOfRights:      boolAt(f, "summary_of_rights"),
			InvestigativeReport:  boolAt(f, "investigative_report"),
		}
	}
	return c
}

func (s *Svc) auditEvent(ctx context.Context, ev auditdom.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("audit record failed")
	}
}

var _ domain.WebhookPort = (*Svc)(nil)
