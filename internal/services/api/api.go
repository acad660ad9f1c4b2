// Package api provides the HTTP API for the application
package api

import (
	"net/http"

	"backcheck/internal/platform/config"
	"backcheck/internal/platform/logger"
	phttp "backcheck/internal/platform/net/http"
	"backcheck/internal/platform/store"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/modkit/module"
	"backcheck/internal/modkit/swaggerkit"

	"backcheck/internal/core/compliance"

	hrisapimod "backcheck/internal/services/api/hris/module"
	metahttp "backcheck/internal/services/api/meta/http"
	metamod "backcheck/internal/services/api/meta/module"
	scrapimod "backcheck/internal/services/api/screenings/module"

	auditmod "backcheck/internal/services/audit/module"
	consentmod "backcheck/internal/services/consent/module"
	cimod "backcheck/internal/services/crossindex/module"
	dispatchmod "backcheck/internal/services/dispatch/module"
	hrismod "backcheck/internal/services/hris/module"
	provmod "backcheck/internal/services/providers/module"
	retmod "backcheck/internal/services/retention/module"
	routermod "backcheck/internal/services/router/module"
	scrmod "backcheck/internal/services/screening/module"
	tenantmod "backcheck/internal/services/tenants/module"

	consentdom "backcheck/internal/services/consent/domain"
	dispatchdom "backcheck/internal/services/dispatch/domain"
	hrisdom "backcheck/internal/services/hris/domain"
	routerdom "backcheck/internal/services/router/domain"
	screeningdom "backcheck/internal/services/screening/domain"
	tenantdom "backcheck/internal/services/tenants/domain"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
		RDS: opt.Store.RDS,
	}
	if opt.Logger != nil {
		deps.Log = *opt.Logger
	}

	// Worker modules first; the API modules borrow their ports.
	tenants := tenantmod.New(deps)
	registry := module.MustPortsOf[tenantmod.Ports](tenants).Registry

	auditm := auditmod.New(deps, auditmod.Options{})
	recorder := module.MustPortsOf[auditmod.Ports](auditm).Recorder

	retentionm := retmod.New(deps)
	retain := module.MustPortsOf[retmod.Ports](retentionm).Recorder

	consentm := consentmod.New(deps, modkit.WithPorts(consentdom.Ports{
		Audit:     recorder,
		Retention: retain,
	}))
	consents := module.MustPortsOf[consentmod.Ports](consentm).Store

	providersm := provmod.New(deps, provmod.Options{})
	providers := module.MustPortsOf[provmod.Ports](providersm).Registry

	routerm := routermod.New(deps, routermod.Options{}, modkit.WithPorts(routerdom.Ports{
		Providers: providers,
		Audit:     recorder,
	}))
	routerPorts := module.MustPortsOf[routermod.Ports](routerm)

	dispatchm := dispatchmod.New(deps, dispatchmod.Options{}, modkit.WithPorts(dispatchdom.Ports{
		Router: routerPorts.Router,
	}))
	dispatcher := module.MustPortsOf[dispatchmod.Ports](dispatchm).Dispatcher

	crossm := cimod.New(deps, cimod.Options{})
	indexer := module.MustPortsOf[cimod.Ports](crossm).Index

	// the embedded default pack is validated at build time, so a parse
	// failure here is a programmer error
	evaluator, err := compliance.New()
	if err != nil {
		panic(err)
	}

	screeningm := scrmod.New(deps, scrmod.Options{}, modkit.WithPorts(screeningdom.Ports{
		Tenants:    registry,
		Compliance: evaluator,
		Consent:    consents,
		Dispatcher: dispatcher,
		Providers:  providers,
		Audit:      recorder,
		Retention:  retain,
		Indexer:    indexer,
	}))
	scrPorts := module.MustPortsOf[scrmod.Ports](screeningm)

	hrism := hrismod.New(deps, hrismod.Options{}, modkit.WithPorts(hrisdom.Ports{
		Tenants:    registry,
		Screenings: scrPorts.Screenings,
		Consent:    consents,
		Audit:      recorder,
		Cache:      routerPorts.Seeder,
	}))
	hooks := module.MustPortsOf[hrismod.Ports](hrism).Webhooks

	// API modules over the worker ports
	apiScreenings := scrapimod.New(deps, modkit.WithPorts(scrapimod.Ports{
		Screenings: scrPorts.Screenings,
	}))
	apiHooks := hrisapimod.New(deps, modkit.WithPorts(hrisapimod.Ports{
		Webhooks: hooks,
	}))
	meta := metamod.New(deps, modkit.WithPorts(metamod.Ports{
		Providers: providers,
		Breakers:  routerPorts.Breakers,
	}))

	// register each module's ports under its own name for cross-module lookups
	for _, m := range []module.Module{
		tenants, auditm, retentionm, consentm, providersm,
		routerm, dispatchm, crossm, screeningm, hrism,
		apiScreenings, apiHooks, meta,
	} {
		module.Register(m.Name(), m.Ports())
	}

	// operational endpoints live outside the versioned tree so probes skip
	// the common middleware stack
	meta.MountRoutes(r)
	metahttp.RegisterRoot(r)

	// Swagger + profiler
	swaggerkit.Mount(r, opt.EnableSwagger)
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	// versioned API with a common middleware stack
	r.Route("/v1", func(api phttp.Router) {
		api.Use(httpkit.CommonStack()...)

		// webhook ingress authenticates with per-tenant HMAC signatures,
		// so it mounts outside the bearer group
		apiHooks.MountRoutes(api)

		httpkit.Protected(api, apiKeyAuth{tenants: registry}, func(gr httpkit.Router) {
			apiScreenings.MountRoutes(gr)
		})
	})
}

// apiKeyAuth resolves bearer API keys against the tenant registry
type apiKeyAuth struct {
	tenants tenantdom.RegistryPort
}

// Parse implements middleware.AuthPort. API keys identify tenants rather
// than users, so the user id stays empty.
func (a apiKeyAuth) Parse(r *http.Request) (string, string, error) {
	raw, err := httpkit.JWT(r)
	if err != nil {
		return "", "", err
	}
	t, err := a.tenants.Authenticate(r.Context(), raw)
	if err != nil {
		return "", "", err
	}
	return "", t.ID, nil
}
