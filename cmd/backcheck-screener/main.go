package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/module"
	"backcheck/internal/platform/config"
	"backcheck/internal/platform/logger"
	"backcheck/internal/platform/store"

	"backcheck/internal/core/compliance"

	auditmod "backcheck/internal/services/audit/module"
	consentmod "backcheck/internal/services/consent/module"
	cimod "backcheck/internal/services/crossindex/module"
	dispatchmod "backcheck/internal/services/dispatch/module"
	provmod "backcheck/internal/services/providers/module"
	retmod "backcheck/internal/services/retention/module"
	routermod "backcheck/internal/services/router/module"
	scrmod "backcheck/internal/services/screening/module"
	tenantmod "backcheck/internal/services/tenants/module"

	consentdom "backcheck/internal/services/consent/domain"
	dispatchdom "backcheck/internal/services/dispatch/domain"
	routerdom "backcheck/internal/services/router/domain"
	screeningdom "backcheck/internal/services/screening/domain"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	rdsCfg := root.Prefix("SERVICE_REDIS_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: true,
			URL:     chCfg.MustString("DBURL"),
		},
		RDS: store.RedisConfig{
			Enabled:  rdsCfg.MayBool("ENABLED", true),
			Addr:     rdsCfg.MayString("ADDR", "localhost:6379"),
			DB:       rdsCfg.MayInt("DB", 0),
			Password: rdsCfg.MayString("PASSWORD", ""),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var (
		fWorkerID = flag.String("worker-id", "", "stable worker identity for lease ownership (defaults to hostname)")
		fConc     = flag.Int("concurrency", 4, "screenings executed in parallel")
		fBatch    = flag.Int("batch", 2, "screenings leased per poll")
		fTick     = flag.String("tick", "500ms", "poll interval while the queue is empty")
		fLease    = flag.String("lease", "35m", "lease duration before an abandoned screening is retaken")
	)
	flag.Parse()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		RDS: st.RDS,
		Log: *l,
	}

	// Export as env so the module can also read via FromConfig.
	mustSetEnv("CORE_SCREENING_WORKER_ID", *fWorkerID)
	mustSetEnv("CORE_SCREENING_CONCURRENCY", fmt.Sprintf("%d", *fConc))
	mustSetEnv("CORE_SCREENING_TAKE_BATCH", fmt.Sprintf("%d", *fBatch))
	mustSetEnv("CORE_SCREENING_TICK_EVERY", *fTick)
	mustSetEnv("CORE_SCREENING_LEASE_FOR", *fLease)

	// Wire the worker side of the screening pipeline.
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

	evaluator, err := compliance.New()
	if err != nil {
		l.Panic().Err(err).Msg("compliance pack failed to load")
	}

	mod := scrmod.New(deps, scrmod.Options{
		WorkerID:    *fWorkerID,
		Concurrency: *fConc,
		TakeBatch:   *fBatch,
	}, modkit.WithPorts(screeningdom.Ports{
		Tenants:    registry,
		Compliance: evaluator,
		Consent:    consents,
		Dispatcher: dispatcher,
		Providers:  providers,
		Audit:      recorder,
		Retention:  retain,
		Indexer:    indexer,
	}))
	module.Register(mod.Name(), mod.Ports())

	ports := module.MustPortsOf[scrmod.Ports](mod)

	if err := ports.Worker.Run(context.Background()); err != nil {
		l.Fatal().Err(err).Msg("screening worker failed")
	}
}
