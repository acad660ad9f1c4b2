// Package module wires the screening orchestrator and exposes its ports
package module

import (
	"net/http"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/screening/domain"
	"backcheck/internal/services/screening/service"
)

// Ports exposed by the screening module
type Ports struct {
	Screenings domain.ScreeningPort
	Worker     domain.WorkerPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the screening module
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("screening"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("screening module: expected WithPorts(screening/domain.Ports)")
	}
	switch {
	case ports.Tenants == nil:
		panic("screening module: Ports missing Tenants")
	case ports.Compliance == nil:
		panic("screening module: Ports missing Compliance")
	case ports.Consent == nil:
		panic("screening module: Ports missing Consent")
	case ports.Dispatcher == nil:
		panic("screening module: Ports missing Dispatcher")
	case ports.Providers == nil:
		panic("screening module: Ports missing Providers")
	case ports.Audit == nil:
		panic("screening module: Ports missing Audit")
	}

	cfg := FromConfig(deps.Cfg)
	if overrides.StandardDeadline != 0 {
		cfg.StandardDeadline = overrides.StandardDeadline
	}
	if overrides.EnhancedDeadline != 0 {
		cfg.EnhancedDeadline = overrides.EnhancedDeadline
	}
	if overrides.WorkerID != "" {
		cfg.WorkerID = overrides.WorkerID
	}
	if overrides.Concurrency != 0 {
		cfg.Concurrency = overrides.Concurrency
	}
	if overrides.TakeBatch != 0 {
		cfg.TakeBatch = overrides.TakeBatch
	}
	if overrides.TickEvery != 0 {
		cfg.TickEvery = overrides.TickEvery
	}
	if overrides.LeaseFor != 0 {
		cfg.LeaseFor = overrides.LeaseFor
	}
	if overrides.InlineRun {
		cfg.InlineRun = true
	}

	svc := service.New(deps, service.Config{
		StandardDeadline: cfg.StandardDeadline,
		EnhancedDeadline: cfg.EnhancedDeadline,
		WorkerID:         cfg.WorkerID,
		Concurrency:      cfg.Concurrency,
		TakeBatch:        cfg.TakeBatch,
		TickEvery:        cfg.TickEvery,
		LeaseFor:         cfg.LeaseFor,
		InlineRun:        cfg.InlineRun,
	}, ports)

	m := &Module{deps: deps}
	m.ports = Ports{Screenings: svc, Worker: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "screening" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
