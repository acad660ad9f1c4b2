// Package http provides the operational endpoints: liveness, datastore
// health, and aggregate readiness
package http

import (
	stdctx "context"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backcheck/internal/core/version"
	"backcheck/internal/modkit/httpkit"

	provdom "backcheck/internal/services/providers/domain"
	routerdom "backcheck/internal/services/router/domain"
)

// Pinger is satisfied by store adapters that expose Ping
type Pinger interface {
	Ping(stdctx.Context) error
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	PG          any
	CH          any
	RDS         any

	// Providers and Breakers are optional; readiness reports them when wired
	Providers provdom.RegistryPort
	Breakers  routerdom.BreakerViewPort
}

type handlers struct {
	deps Deps
}

// Register mounts the health routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d}

	// mount routes
	httpkit.Get(r, "/", h.live)
	httpkit.Get(r, "/db", h.db)
	httpkit.Get(r, "/ready", h.ready)
}

// RegisterRoot mounts the version and metrics endpoints outside the
// health prefix
func RegisterRoot(r httpkit.Router) {
	httpkit.Get(r, "/version", buildVersion)
	r.Handle("/metrics", promhttp.Handler())
}

//
// Swagger DTOs and route docs
//

// LiveResponse is the liveness payload
// swagger:model
type LiveResponse struct {
	OK      bool   `json:"ok"       example:"true"`
	Service string `json:"service"  example:"backcheck-api"`
	Started string `json:"started"  example:"2025-09-03T13:00:00Z"`
	Now     string `json:"now"      example:"2025-09-03T13:05:00Z"`
}

// StoreCheck describes a single datastore ping
type StoreCheck struct {
	Name      string `json:"name"   example:"pg"`
	Status    string `json:"status" example:"ok"` // ok fail skipped unknown
	LatencyMS int64  `json:"latency_ms" example:"3"`
	Error     string `json:"error,omitempty" example:"dial tcp 127.0.0.1:5432 connect: connection refused"`
}

// StoresResponse summarizes datastore health
type StoresResponse struct {
	Status string       `json:"status" example:"ok"` // ok degraded fail
	Checks []StoreCheck `json:"checks"`
	Now    string       `json:"now"    example:"2025-09-03T13:05:00Z"`
}

// ProviderCheck reports one provider probe plus its breaker state
type ProviderCheck struct {
	Name      string `json:"name"    example:"fixture-a"`
	Status    string `json:"status"  example:"HEALTHY"` // HEALTHY DEGRADED UNHEALTHY
	LatencyMS int64  `json:"latency_ms" example:"12"`
	Breaker   string `json:"breaker,omitempty" example:"closed"`
	Detail    string `json:"detail,omitempty"`
}

// ReadyResponse aggregates datastore and provider health
type ReadyResponse struct {
	Status    string          `json:"status" example:"ok"` // ok degraded fail
	Stores    []StoreCheck    `json:"stores"`
	Providers []ProviderCheck `json:"providers,omitempty"`
	Now       string          `json:"now"    example:"2025-09-03T13:05:00Z"`
}

// swagger:route GET /health Meta healthLive
// @Summary Liveness check
// @Tags Meta
// @Produce json
// @Success 200 type LiveResponse ok
// @Router /health [get]
func (h *handlers) live(_ *http.Request) (any, error) {
	return LiveResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Now:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// swagger:route GET /health/db Meta healthDB
// @Summary Datastore pings for postgres, clickhouse, and redis
// @Tags Meta
// @Produce json
// @Success 200 type StoresResponse ok
// @Failure 503 type StoresResponse "a datastore ping failed"
// @Router /health/db [get]
func (h *handlers) db(_ *http.Request) (any, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 2*time.Second)
	defer cancel()

	checks, overall := h.storeChecks(ctx)
	body := StoresResponse{
		Status: overall,
		Checks: checks,
		Now:    time.Now().UTC().Format(time.RFC3339),
	}
	if overall == "fail" {
		return httpkit.Response{Status: http.StatusServiceUnavailable, Body: body}, nil
	}
	return body, nil
}

// swagger:route GET /health/ready Meta healthReady
// @Summary Readiness probe aggregating datastores, providers, and breakers
// @Tags Meta
// @Produce json
// @Success 200 type ReadyResponse ok
// @Failure 503 type ReadyResponse "a hard dependency is down"
// @Router /health/ready [get]
func (h *handlers) ready(_ *http.Request) (any, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
	defer cancel()

	checks, overall := h.storeChecks(ctx)

	var provs []ProviderCheck
	if h.deps.Providers != nil {
		breakers := map[string]string{}
		if h.deps.Breakers != nil {
			breakers = h.deps.Breakers.BreakerStates()
		}

		all := h.deps.Providers.HealthAll(ctx)
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ph := all[name]
			provs = append(provs, ProviderCheck{
				Name:      name,
				Status:    string(ph.Status),
				LatencyMS: ph.Latency.Milliseconds(),
				Breaker:   breakers[name],
				Detail:    ph.Detail,
			})
		}

		// sick providers degrade readiness but never fail it: the router
		// still serves from cache and falls back across tiers
		if overall == "ok" {
			for _, p := range provs {
				if p.Status != string(provdom.HealthHealthy) {
					overall = "degraded"
					break
				}
			}
		}
	}

	body := ReadyResponse{
		Status:    overall,
		Stores:    checks,
		Providers: provs,
		Now:       time.Now().UTC().Format(time.RFC3339),
	}
	if overall == "fail" {
		return httpkit.Response{Status: http.StatusServiceUnavailable, Body: body}, nil
	}
	return body, nil
}

// swagger:route GET /version Meta buildVersion
// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 type version.BuildInfo ok
// @Router /version [get]
func buildVersion(_ *http.Request) (any, error) {
	return version.Info(), nil
}

// storeChecks pings each datastore seam and grades the set
func (h *handlers) storeChecks(ctx stdctx.Context) ([]StoreCheck, string) {
	check := func(name string, c any) StoreCheck {
		if c == nil {
			return StoreCheck{Name: name, Status: "skipped"}
		}
		p, ok := c.(Pinger)
		if !ok {
			return StoreCheck{Name: name, Status: "unknown"}
		}
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return StoreCheck{
				Name:      name,
				Status:    "fail",
				LatencyMS: time.Since(start).Milliseconds(),
				Error:     err.Error(),
			}
		}
		return StoreCheck{Name: name, Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
	}

	checks := []StoreCheck{
		check("pg", h.deps.PG),
		check("ch", h.deps.CH),
		check("redis", h.deps.RDS),
	}

	overall := "ok"
	for _, c := range checks {
		switch c.Status {
		case "fail":
			overall = "fail"
		case "skipped", "unknown":
			if overall == "ok" {
				overall = "degraded"
			}
		}
	}
	return checks, overall
}
