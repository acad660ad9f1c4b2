// Package module wires the priority dispatcher and exposes its port
package module

import (
	"net/http"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/dispatch/domain"
	"backcheck/internal/services/dispatch/service"
)

// Ports exposed by the dispatch module
type Ports struct {
	Dispatcher domain.DispatcherPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the dispatch module
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("dispatch"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("dispatch module: expected WithPorts(dispatch/domain.Ports)")
	}
	if ports.Router == nil {
		panic("dispatch module: Ports missing Router")
	}

	cfg := FromConfig(deps.Cfg)
	if overrides.RPM != 0 {
		cfg.RPM = overrides.RPM
	}

	d := service.New(deps, service.Config{RPM: cfg.RPM}, ports)

	m := &Module{deps: deps}
	m.ports = Ports{Dispatcher: d}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "dispatch" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
