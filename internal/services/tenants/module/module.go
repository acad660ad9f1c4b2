// Package module wires the tenant registry and exposes its port
package module

import (
	"net/http"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/services/tenants/domain"
	"backcheck/internal/services/tenants/service"
)

// Ports exposed by the tenants module
type Ports struct {
	Registry domain.RegistryPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the tenants module
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	modkit.Build(append([]modkit.Option{
		modkit.WithName("tenants"),
	}, opts...)...)

	svc := service.New(deps)

	m := &Module{deps: deps}
	m.ports = Ports{Registry: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "tenants" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix satisfies modkit.Module
func (m *Module) Prefix() string { return "" }

// Middlewares satisfies modkit.Module
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return nil }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(_ httpkit.Router) {}
