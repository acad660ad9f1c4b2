// Package module wires the retention tagging service
package module

import (
	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	dom "backcheck/internal/services/retention/domain"
	"backcheck/internal/services/retention/service"
)

// Ports holds the ports exposed by the retention module
type Ports struct {
	Recorder dom.RecorderPort
}

// Module defines the retention module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the retention module
func New(deps modkit.Deps) *Module {
	m := &Module{deps: deps}
	m.ports = Ports{Recorder: service.New(deps)}
	return m
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "retention" }

// Prefix returns the module config prefix (no HTTP surface)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
