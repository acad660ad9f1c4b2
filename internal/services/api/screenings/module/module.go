// Package module wires the screening REST endpoints into the API
package module

import (
	"net/http"

	modkit "backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	str "backcheck/internal/platform/strings"

	scrhttp "backcheck/internal/services/api/screenings/http"
	screeningdom "backcheck/internal/services/screening/domain"
)

// Ports declares the worker ports this API module consumes
type Ports struct {
	Screenings screeningdom.ScreeningPort
}

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the screenings API module
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("screenings"),
		modkit.WithPrefix("/screenings"),
	}, opts...)...)

	ports, ok := b.Ports.(Ports)
	if !ok {
		panic("screenings api module: expected WithPorts(screenings/module.Ports)")
	}
	if ports.Screenings == nil {
		panic("screenings api module: Ports missing Screenings")
	}

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		scrhttp.Register(r, ports.Screenings)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name implements the modkit.Module interface
func (m *Module) Name() string { return str.MustString(m.name, "screenings") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares implements the modkit.Module interface
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
