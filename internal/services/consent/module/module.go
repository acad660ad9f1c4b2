// Package module wires the consent store and exposes its port
package module

import (
	"net/http"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/consent/domain"
	"backcheck/internal/services/consent/service"
)

// Ports exposed by the consent module
type Ports struct {
	Store domain.StorePort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the consent module
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("consent"),
	}, opts...)...)

	ports, ok := b.Ports.(domain.Ports)
	if !ok {
		panic("consent module: expected WithPorts(consent/domain.Ports)")
	}
	if ports.Audit == nil {
		panic("consent module: Ports missing Audit")
	}

	svc := service.New(deps, ports)

	m := &Module{deps: deps}
	m.ports = Ports{Store: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "consent" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
