// Package module wires the HRIS webhook processor and exposes its port
package module

import (
	"net/http"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/hris/domain"
	"backcheck/internal/services/hris/service"
)

// Ports exposed by the hris module
type Ports struct {
	Webhooks domain.WebhookPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the hris module
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("hris"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("hris module: expected WithPorts(hris/domain.Ports)")
	}
	switch {
	case ports.Tenants == nil:
		panic("hris module: Ports missing Tenants")
	case ports.Screenings == nil:
		panic("hris module: Ports missing Screenings")
	case ports.Consent == nil:
		panic("hris module: Ports missing Consent")
	case ports.Audit == nil:
		panic("hris module: Ports missing Audit")
	}

	cfg := FromConfig(deps.Cfg)
	if overrides.WebhookRPS != 0 {
		cfg.WebhookRPS = overrides.WebhookRPS
	}
	if overrides.WebhookBurst != 0 {
		cfg.WebhookBurst = overrides.WebhookBurst
	}
	if len(overrides.DefaultChecks) != 0 {
		cfg.DefaultChecks = overrides.DefaultChecks
	}
	if overrides.DefaultLocale != "" {
		cfg.DefaultLocale = overrides.DefaultLocale
	}
	if overrides.SeedFreshFor != 0 {
		cfg.SeedFreshFor = overrides.SeedFreshFor
	}
	if overrides.SeedStaleFor != 0 {
		cfg.SeedStaleFor = overrides.SeedStaleFor
	}

	svc := service.New(deps, service.Config{
		WebhookRPS:    cfg.WebhookRPS,
		WebhookBurst:  cfg.WebhookBurst,
		DefaultChecks: cfg.DefaultChecks,
		DefaultLocale: cfg.DefaultLocale,
		SeedFreshFor:  cfg.SeedFreshFor,
		SeedStaleFor:  cfg.SeedStaleFor,
	}, ports)

	m := &Module{deps: deps}
	m.ports = Ports{Webhooks: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "hris" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
