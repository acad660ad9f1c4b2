// Package module wires the request router and exposes its ports
package module

import (
	"net/http"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/router/domain"
	"backcheck/internal/services/router/service"
)

// Ports exposed by the router module
type Ports struct {
	Router   domain.RouterPort
	Seeder   domain.CacheSeedPort
	Breakers domain.BreakerViewPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the router module
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("router"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("router module: expected WithPorts(router/domain.Ports)")
	}
	if ports.Providers == nil || ports.Audit == nil {
		panic("router module: Ports missing Providers or Audit")
	}

	cfg := FromConfig(deps.Cfg)
	if overrides.MaxRetries != 0 {
		cfg.MaxRetries = overrides.MaxRetries
	}
	if overrides.RetryBase != 0 {
		cfg.RetryBase = overrides.RetryBase
	}
	if overrides.RequestTimeout != 0 {
		cfg.RequestTimeout = overrides.RequestTimeout
	}
	if overrides.LatencyEstimate != 0 {
		cfg.LatencyEstimate = overrides.LatencyEstimate
	}
	if overrides.BreakerFailures != 0 {
		cfg.BreakerFailures = overrides.BreakerFailures
	}
	if overrides.BreakerOpenFor != 0 {
		cfg.BreakerOpenFor = overrides.BreakerOpenFor
	}
	if overrides.ProviderRPS != 0 {
		cfg.ProviderRPS = overrides.ProviderRPS
	}
	if overrides.ProviderBurst != 0 {
		cfg.ProviderBurst = overrides.ProviderBurst
	}

	router := service.New(deps, service.Config{
		MaxRetries:      cfg.MaxRetries,
		RetryBase:       cfg.RetryBase,
		RequestTimeout:  cfg.RequestTimeout,
		LatencyEstimate: cfg.LatencyEstimate,
		BreakerFailures: cfg.BreakerFailures,
		BreakerOpenFor:  cfg.BreakerOpenFor,
		ProviderRPS:     cfg.ProviderRPS,
		ProviderBurst:   cfg.ProviderBurst,
	}, ports)

	m := &Module{deps: deps}
	m.ports = Ports{
		Router:   router,
		Seeder:   router.Cache(),
		Breakers: router,
	}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "router" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
