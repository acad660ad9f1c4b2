// Package module wires the audit service and exposes its recorder port
package module

import (
	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/audit/service"
)

// Module defines the audit module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the audit module
func New(deps modkit.Deps, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)
	if overrides.NoMirror {
		opts.NoMirror = true
	}

	svc := service.New(deps, service.Config{Mirror: !opts.NoMirror})

	m := &Module{deps: deps}
	m.ports = Ports{Recorder: svc}
	return m
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "audit" }

// Prefix returns the module config prefix (no HTTP surface)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
