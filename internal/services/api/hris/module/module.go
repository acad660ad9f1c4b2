// Package module wires the HRIS webhook endpoint into the API
package module

import (
	"net/http"

	modkit "backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	str "backcheck/internal/platform/strings"

	hrishttp "backcheck/internal/services/api/hris/http"
	hrisdom "backcheck/internal/services/hris/domain"
)

// Ports declares the worker ports this API module consumes
type Ports struct {
	Webhooks hrisdom.WebhookPort
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

// New constructs the hris API module. Webhook traffic authenticates by
// signature, not bearer token, so this module is mounted outside the
// protected group
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("hris-webhooks"),
		modkit.WithPrefix("/hris"),
	}, opts...)...)

	ports, ok := b.Ports.(Ports)
	if !ok {
		panic("hris api module: expected WithPorts(hris/module.Ports)")
	}
	if ports.Webhooks == nil {
		panic("hris api module: Ports missing Webhooks")
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
		hrishttp.Register(r, ports.Webhooks)
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
func (m *Module) Name() string { return str.MustString(m.name, "hris-webhooks") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares implements the modkit.Module interface
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
