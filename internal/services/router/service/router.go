// Package service implements request routing: cache, provider selection
// with ordered fallbacks, per-provider rate limits and circuit breakers,
// bounded retries, and the routing failure taxonomy
package service

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"backcheck/internal/modkit"
	"backcheck/internal/platform/logger"
	"backcheck/internal/platform/store"
	auditdom "backcheck/internal/services/audit/domain"
	provdom "backcheck/internal/services/providers/domain"
	"backcheck/internal/services/router/domain"
)

const (
	defaultMaxRetries      = 2
	defaultRetryBase       = 500 * time.Millisecond
	defaultRequestTimeout  = 30 * time.Second
	defaultLatencyEstimate = 2 * time.Second
	maxBackoff             = 30 * time.Second
)

// Config controls the router
type Config struct {
	MaxRetries      int
	RetryBase       time.Duration
	RequestTimeout  time.Duration
	LatencyEstimate time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
	ProviderRPS     float64
	ProviderBurst   int

	// Metrics defaults to a set registered on the default registerer;
	// tests inject one bound to a private registry
	Metrics *Metrics
}

// Router implements domain.RouterPort, domain.CacheSeedPort (via its
// cache), and domain.BreakerViewPort. Rate buckets and breakers are
// shared process-wide through this value
type Router struct {
	registry provdom.RegistryPort
	audit    auditdom.RecorderPort
	cache    *Cache
	limits   *limiterSet
	breakers *breakerSet
	metrics  *Metrics
	cfg      Config
	log      logger.Logger

	now    func() time.Time
	sleep  func(time.Duration)
	jitter func(time.Duration) time.Duration

	mu  sync.Mutex
	lat map[string]time.Duration
}

// New constructs the router. A nil deps.RDS falls back to an in-process
// cache, which keeps single-node deployments and tests working
func New(deps modkit.Deps, cfg Config, ports domain.Ports) *Router {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.LatencyEstimate <= 0 {
		cfg.LatencyEstimate = defaultLatencyEstimate
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	log := deps.Log.With().Str("component", "router").Logger()

	kv := deps.RDS
	if kv == nil {
		kv = store.NewMemKV()
	}

	r := &Router{
		registry: ports.Providers,
		audit:    ports.Audit,
		cache:    NewCache(kv, log),
		limits:   newLimiterSet(cfg.ProviderRPS, cfg.ProviderBurst),
		metrics:  cfg.Metrics,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sleep:    time.Sleep,
		jitter:   uniformJitter,
		lat:      make(map[string]time.Duration),
	}
	r.breakers = newBreakerSet(cfg.BreakerFailures, cfg.BreakerOpenFor, log, func(provider string, state gobreaker.State) {
		r.metrics.SetBreakerState(provider, breakerGaugeValue(state))
	})
	return r
}

// Cache exposes the seed port for tenant-provided data
func (r *Router) Cache() *Cache { return r.cache }

// BreakerStates implements domain.BreakerViewPort
func (r *Router) BreakerStates() map[string]string { return r.breakers.states() }

// Route implements domain.RouterPort
func (r *Router) Route(ctx context.Context, req domain.RoutedRequest) domain.RoutedResult {
	deadline := r.deadlineFor(ctx, req)

	candidates := r.registry.ForCheck(req.CheckType)
	if len(candidates) == 0 {
		return r.fail(req, "", domain.Failure{
			Reason:  domain.FailNoProvider,
			Message: "no provider supports " + string(req.CheckType),
		})
	}
	candidates = preferProvider(candidates, req.Provider)

	if res, ok := r.fromCache(ctx, req, candidates); ok {
		return res
	}

	var (
		dispatched bool
		rateSkips  int
		openSkips  int
	)
	lastFailure := domain.Failure{Reason: domain.FailProviderError, Message: "no provider attempt succeeded"}

	for _, prov := range candidates {
		pid := prov.ID()

		if r.breakers.open(pid) {
			openSkips++
			lastFailure = domain.Failure{Reason: domain.FailCircuitOpen, Message: pid + " breaker open"}
			continue
		}

		res, outcome := r.tryProvider(ctx, req, prov, deadline)
		switch outcome {
		case tryDone:
			return res
		case tryRateLimited:
			rateSkips++
			lastFailure = *res.Failure
		case tryCircuitOpen:
			openSkips++
			lastFailure = *res.Failure
		case tryFailed:
			dispatched = true
			lastFailure = *res.Failure
		case tryDeadline:
			lastFailure = *res.Failure
		}

		if !r.now().Before(deadline) {
			lastFailure = domain.Failure{Reason: domain.FailTimeout, Message: "request deadline exhausted"}
			break
		}
		if ctx.Err() != nil {
			lastFailure = domain.Failure{Reason: domain.FailTimeout, Message: "request cancelled"}
			break
		}
	}

	if !dispatched && rateSkips > 0 {
		if lastFailure.Reason != domain.FailAllRateLimited {
			lastFailure = domain.Failure{Reason: domain.FailAllRateLimited, Message: "every provider rate limited"}
		}
	} else if !dispatched && openSkips == len(candidates) {
		lastFailure = domain.Failure{Reason: domain.FailCircuitOpen, Message: "every provider breaker open"}
	}

	return r.fail(req, "", lastFailure)
}

// RouteBatch implements domain.RouterPort. Results land at the index of
// their request, so order is preserved regardless of completion order
func (r *Router) RouteBatch(ctx context.Context, reqs []domain.RoutedRequest) []domain.RoutedResult {
	out := make([]domain.RoutedResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = r.Route(gctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type tryOutcome int

const (
	tryDone tryOutcome = iota
	tryFailed
	tryRateLimited
	tryCircuitOpen
	tryDeadline
)

// tryProvider runs the attempt loop against one provider. It returns
// tryDone with a success result, or a failure result tagged with how the
// provider was left so the caller can pick the request-level reason
func (r *Router) tryProvider(ctx context.Context, req domain.RoutedRequest, prov provdom.Adapter, deadline time.Time) (domain.RoutedResult, tryOutcome) {
	pid := prov.ID()
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(req, pid, domain.Failure{Reason: domain.FailTimeout, Message: "request cancelled"}), tryDeadline
		}

		remaining := deadline.Sub(r.now())
		if remaining < r.estimate(pid) {
			return r.fail(req, pid, domain.Failure{
				Reason:  domain.FailTimeout,
				Message: "remaining deadline below estimated latency for " + pid,
			}), tryDeadline
		}

		// the reservation spends the token; sleeping out the delay is the
		// await point, so no second acquisition happens after it
		td := r.limits.reserve(pid)
		if td.delay > 0 {
			if td.delay+r.estimate(pid) > remaining {
				td.cancel()
				return r.fail(req, pid, domain.Failure{
					Reason:     domain.FailAllRateLimited,
					Message:    pid + " has no rate token within deadline",
					RetryAfter: td.delay,
				}), tryRateLimited
			}
			r.sleep(td.delay)
			if err := ctx.Err(); err != nil {
				return r.fail(req, pid, domain.Failure{Reason: domain.FailTimeout, Message: "request cancelled"}), tryDeadline
			}
		}

		done, err := r.breakers.get(pid).Allow()
		if err != nil {
			return r.fail(req, pid, domain.Failure{Reason: domain.FailCircuitOpen, Message: pid + ": " + err.Error()}), tryCircuitOpen
		}

		cctx, cancel := context.WithDeadline(ctx, deadline)
		start := r.now()
		res, xerr := prov.Execute(cctx, req.CheckType, req.Subject, req.Locale, req.Params)
		cancel()
		observed := r.now().Sub(start)
		if res.Latency > 0 {
			observed = res.Latency
		}
		r.observe(pid, observed)
		r.metrics.RecordDispatch(pid, observed.Seconds())

		done(breakerSuccess(res, xerr))
		r.auditQuery(ctx, req, pid, res, xerr)

		switch {
		case xerr != nil:
			if ctx.Err() != nil {
				return r.fail(req, pid, domain.Failure{Reason: domain.FailTimeout, Message: "request cancelled"}), tryDeadline
			}
			if wait := r.backoff(attempts); attempts < r.cfg.MaxRetries && r.waitFits(wait, pid, deadline) {
				r.retryAfter(pid, wait, attempts, "transport error")
				attempts++
				continue
			}
			return r.fail(req, pid, domain.Failure{Reason: domain.FailProviderError, Message: xerr.Error()}), tryFailed

		case res.Success:
			return r.succeed(ctx, req, pid, res), tryDone

		case res.ErrorCode == provdom.ErrInvalidSubject:
			// the request shape is invalid for every provider, not just
			// this one; surface immediately with no fallback
			return r.fail(req, pid, domain.Failure{Reason: domain.FailInvalidRequest, Message: res.ErrorMsg}), tryDone

		case res.ErrorCode == provdom.ErrRateLimited:
			wait := res.RetryAfter
			if wait > 0 && attempts < r.cfg.MaxRetries && r.waitFits(wait, pid, deadline) {
				r.retryAfter(pid, wait, attempts, "provider rate limited")
				attempts++
				continue
			}
			return r.fail(req, pid, domain.Failure{
				Reason:     domain.FailAllRateLimited,
				Message:    pid + " rate limited",
				RetryAfter: wait,
			}), tryRateLimited

		case res.Transient():
			reason := domain.FailProviderError
			if res.ErrorCode == provdom.ErrTimeout {
				reason = domain.FailTimeout
			}
			if wait := r.backoff(attempts); attempts < r.cfg.MaxRetries && r.waitFits(wait, pid, deadline) {
				r.retryAfter(pid, wait, attempts, string(res.ErrorCode))
				attempts++
				continue
			}
			return r.fail(req, pid, domain.Failure{Reason: reason, Message: res.ErrorMsg}), tryFailed

		default:
			// permanent for this provider (auth, not found); a different
			// source may still have the data
			return r.fail(req, pid, domain.Failure{
				Reason:  domain.FailProviderError,
				Message: pid + " " + string(res.ErrorCode) + ": " + res.ErrorMsg,
			}), tryFailed
		}
	}
}

// fromCache probes tenant-seeded data first, then each candidate's paid
// entry, and returns the first usable hit
func (r *Router) fromCache(ctx context.Context, req domain.RoutedRequest, candidates []provdom.Adapter) (domain.RoutedResult, bool) {
	// tenant seeds are identity-scoped, so the customer probe stays
	// param-less and matches any query shape for the subject
	fps := make([]string, 0, len(candidates)+1)
	fps = append(fps, Fingerprint(req.CheckType, CustomerProviderID, req.Subject, req.Locale, nil))
	for _, prov := range candidates {
		fps = append(fps, Fingerprint(req.CheckType, prov.ID(), req.Subject, req.Locale, req.Params))
	}

	for _, fp := range fps {
		entry, fresh, ok := r.cache.Lookup(ctx, fp, req.TenantID)
		if !ok {
			continue
		}
		stale := fresh == domain.FreshnessStale
		r.metrics.RecordCacheLookup("hit_" + string(fresh))
		outcome := "cache_hit_fresh"
		if stale {
			outcome = "cache_hit_stale"
		}
		r.metrics.RecordOutcome(entry.ProviderID, outcome)
		r.auditEvent(ctx, req, auditdom.KindCacheHit, map[string]any{
			"provider":  entry.ProviderID,
			"check":     string(req.CheckType),
			"freshness": string(fresh),
			"origin":    string(entry.Origin),
		})
		return domain.RoutedResult{
			CheckType:     req.CheckType,
			ProviderID:    entry.ProviderID,
			Success:       true,
			Data:          entry.Data,
			RawHash:       entry.RawHash,
			CacheHit:      true,
			StaleDataUsed: stale,
			AcquiredAt:    entry.AcquiredAt,
		}, true
	}

	r.metrics.RecordCacheLookup("miss")
	r.auditEvent(ctx, req, auditdom.KindCacheMiss, map[string]any{"check": string(req.CheckType)})
	return domain.RoutedResult{}, false
}

// succeed stores the provider result and builds the success envelope
func (r *Router) succeed(ctx context.Context, req domain.RoutedRequest, pid string, res provdom.Result) domain.RoutedResult {
	acquired := res.AcquiredAt
	if acquired.IsZero() {
		acquired = r.now().UTC()
	}
	entry := domain.CacheEntry{
		Fingerprint: Fingerprint(req.CheckType, pid, req.Subject, req.Locale, req.Params),
		ProviderID:  pid,
		CheckType:   req.CheckType,
		Data:        res.Data,
		RawHash:     res.RawHash,
		CostCents:   res.CostCents,
		Origin:      domain.OriginPaidExternal,
		AcquiredAt:  acquired,
		FreshUntil:  acquired.Add(res.FreshFor),
		StaleUntil:  acquired.Add(res.FreshFor + res.StaleFor),
	}
	if err := r.cache.Put(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("provider", pid).Msg("cache write failed")
	}

	r.metrics.RecordOutcome(pid, "success")
	r.metrics.RecordCost(pid, string(req.CheckType), res.CostCents)

	return domain.RoutedResult{
		CheckType:  req.CheckType,
		ProviderID: pid,
		Success:    true,
		Data:       res.Data,
		RawHash:    res.RawHash,
		Latency:    res.Latency,
		CostCents:  res.CostCents,
		AcquiredAt: acquired,
	}
}

func (r *Router) fail(req domain.RoutedRequest, pid string, f domain.Failure) domain.RoutedResult {
	label := pid
	if label == "" {
		label = "none"
	}
	r.metrics.RecordOutcome(label, strings.ToLower(string(f.Reason)))
	return domain.RoutedResult{CheckType: req.CheckType, ProviderID: pid, Failure: &f}
}

func (r *Router) retryAfter(pid string, wait time.Duration, attempt int, why string) {
	r.metrics.RecordRetry(pid)
	r.log.Warn().
		Str("provider", pid).
		Dur("retry_in", wait).
		Int("attempt", attempt).
		Str("cause", why).
		Msg("provider attempt failed, retrying")
	r.sleep(wait)
}

func (r *Router) auditQuery(ctx context.Context, req domain.RoutedRequest, pid string, res provdom.Result, xerr error) {
	detail := map[string]any{
		"provider":   pid,
		"check":      string(req.CheckType),
		"success":    res.Success,
		"latency_ms": res.Latency.Milliseconds(),
		"cost_cents": res.CostCents,
	}
	if res.ErrorCode != "" {
		detail["error_code"] = string(res.ErrorCode)
	}
	if xerr != nil {
		detail["transport_error"] = xerr.Error()
	}
	r.auditEvent(ctx, req, auditdom.KindProviderQuery, detail)
}

func (r *Router) auditEvent(ctx context.Context, req domain.RoutedRequest, kind auditdom.Kind, detail map[string]any) {
	if r.audit == nil {
		return
	}
	ev := auditdom.Event{
		Kind:        kind,
		TenantID:    req.TenantID,
		ScreeningID: req.ScreeningID,
		SubjectID:   req.EntityID,
		Detail:      detail,
	}
	if err := r.audit.Record(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("kind", string(kind)).Msg("audit record failed")
	}
}

// preferProvider moves a planner-pinned provider to the front of the
// candidate list; the rest keep registration order as fallbacks
func preferProvider(candidates []provdom.Adapter, id string) []provdom.Adapter {
	if id == "" {
		return candidates
	}
	for i, prov := range candidates {
		if prov.ID() != id {
			continue
		}
		out := make([]provdom.Adapter, 0, len(candidates))
		out = append(out, prov)
		out = append(out, candidates[:i]...)
		out = append(out, candidates[i+1:]...)
		return out
	}
	return candidates
}

func (r *Router) deadlineFor(ctx context.Context, req domain.RoutedRequest) time.Time {
	d := req.Deadline
	if d.IsZero() {
		d = r.now().Add(r.cfg.RequestTimeout)
	}
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

func (r *Router) estimate(pid string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.lat[pid]; ok {
		return d
	}
	return r.cfg.LatencyEstimate
}

// observe folds a latency sample into the provider's moving estimate
func (r *Router) observe(pid string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.lat[pid]; ok {
		r.lat[pid] = (prev*7 + d*3) / 10
	} else {
		r.lat[pid] = d
	}
}

func (r *Router) backoff(attempt int) time.Duration {
	d := r.cfg.RetryBase
	ms := int64(d / time.Millisecond)
	ms = ms << uint(attempt)
	limit := int64(maxBackoff / time.Millisecond)
	if ms > limit {
		ms = limit
	}
	d = time.Duration(ms) * time.Millisecond
	return d + r.jitter(d)
}

func (r *Router) waitFits(wait time.Duration, pid string, deadline time.Time) bool {
	return r.now().Add(wait).Add(r.estimate(pid)).Before(deadline)
}

// breakerSuccess reports whether a dispatch should count as healthy for
// the provider's breaker. Only transport-level trouble trips it; a 4xx
// class answer means the provider is alive
func breakerSuccess(res provdom.Result, err error) bool {
	if err != nil {
		return false
	}
	if res.Success {
		return true
	}
	switch res.ErrorCode {
	case provdom.ErrTimeout, provdom.ErrProvider:
		return false
	}
	return true
}

func breakerGaugeValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// uniformJitter adds up to half the base delay
func uniformJitter(d time.Duration) time.Duration {
	if d < 2 {
		return 0
	}
	return rand.N(d / 2)
}
