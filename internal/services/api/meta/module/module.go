// Package module wires the operational endpoints into the API using a tiny module
package module

import (
	"net/http"
	"time"

	modkit "backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	str "backcheck/internal/platform/strings"

	"backcheck/internal/core/version"

	metahttp "backcheck/internal/services/api/meta/http"
	provdom "backcheck/internal/services/providers/domain"
	routerdom "backcheck/internal/services/router/domain"
)

// Ports are optional upstream views surfaced by the readiness endpoint
type Ports struct {
	Providers provdom.RegistryPort
	Breakers  routerdom.BreakerViewPort
}

// Module implements the modkit.Module interface
type Module struct {
	deps      modkit.Deps
	name      string
	prefix    string
	mws       []func(http.Handler) http.Handler
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	startedAt time.Time
}

// New constructs a meta module with the provided dependencies and options
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/health"),
	}, opts...)...)

	// provider and breaker views are optional; readiness skips them when absent
	var ports Ports
	if b.Ports != nil {
		p, ok := b.Ports.(Ports)
		if !ok {
			panic("meta module: expected WithPorts(meta/module.Ports)")
		}
		ports = p
	}

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		startedAt: time.Now(),
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		metahttp.Register(r, metahttp.Deps{
			ServiceName: version.Info().Service,
			StartedAt:   m.startedAt,
			PG:          deps.PG,
			CH:          deps.CH,
			RDS:         deps.RDS,
			Providers:   ports.Providers,
			Breakers:    ports.Breakers,
		})
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
func (m *Module) Name() string { return str.MustString(m.name, "meta") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares implements the modkit.Module interface
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
