// Package module wires the provider registry
package module

import (
	"net/http"
	"strings"
	"time"

	"backcheck/internal/adapters/providers/fixture"
	"backcheck/internal/adapters/providers/httpapi"
	"backcheck/internal/core/compliance"
	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/providers/domain"
	"backcheck/internal/services/providers/service"
)

// Ports exposed by the providers module
type Ports struct {
	Registry domain.RegistryPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the providers module and registers the configured adapters
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	modkit.Build(append([]modkit.Option{modkit.WithName("providers")}, opts...)...)

	cfg := FromConfig(deps.Cfg)
	if overrides.FixtureLatencyMs != 0 {
		cfg.FixtureLatencyMs = overrides.FixtureLatencyMs
	}
	if len(overrides.HTTPNames) != 0 {
		cfg.HTTPNames = overrides.HTTPNames
	}
	cfg.FixturesEnabled = cfg.FixturesEnabled || overrides.FixturesEnabled

	reg := service.NewRegistry()

	if cfg.FixturesEnabled {
		lat := time.Duration(cfg.FixtureLatencyMs) * time.Millisecond
		if err := reg.Register(fixture.New(fixture.Options{ID: "fixture-a", Latency: lat})); err != nil {
			panic(err)
		}
		if err := reg.Register(fixture.New(fixture.Options{ID: "fixture-b", Latency: lat, Variant: 1})); err != nil {
			panic(err)
		}
	}

	for _, name := range cfg.HTTPNames {
		pf := deps.Cfg.Prefix("PROVIDER_" + strings.ToUpper(name) + "_")
		checks := make([]compliance.CheckType, 0, 8)
		for _, tok := range pf.MayCSV("CHECKS", nil) {
			checks = append(checks, compliance.CheckType(strings.ToUpper(strings.TrimSpace(tok))))
		}
		client := httpapi.New(httpapi.Options{
			ID:        strings.ToLower(name),
			BaseURL:   pf.MustString("URL"),
			Token:     pf.MayString("TOKEN", ""),
			Timeout:   pf.MayDuration("TIMEOUT", 30*time.Second),
			Checks:    checks,
			CostCents: pf.MayInt("COST_CENTS", 100),
		})
		if err := reg.Register(client); err != nil {
			panic(err)
		}
	}

	m := &Module{deps: deps}
	m.ports = Ports{Registry: reg}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "providers" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
