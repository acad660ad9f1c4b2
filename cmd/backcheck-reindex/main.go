package main

import (
	"context"
	"flag"
	"time"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/module"
	"backcheck/internal/modkit/repokit"
	"backcheck/internal/platform/config"
	"backcheck/internal/platform/logger"
	"backcheck/internal/platform/store"

	cimod "backcheck/internal/services/crossindex/module"
	srepo "backcheck/internal/services/screening/repo"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
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
		fFrom   = flag.String("from", "", "reindex completions at or after this UTC instant (RFC3339)")
		fWindow = flag.String("window", "720h", "lookback window when -from is not given")
		fBatch  = flag.Int("batch", 200, "screenings fetched per page")
	)
	flag.Parse()

	since := time.Time{}
	if *fFrom != "" {
		t, err := time.Parse(time.RFC3339, *fFrom)
		if err != nil {
			l.Panic().Err(err).Msg("bad -from")
		}
		since = t.UTC()
	} else {
		window, err := time.ParseDuration(*fWindow)
		if err != nil {
			l.Panic().Err(err).Msg("bad -window")
		}
		since = time.Now().UTC().Add(-window)
	}
	if *fBatch <= 0 {
		l.Panic().Int("batch", *fBatch).Msg("-batch must be positive")
	}

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	mod := cimod.New(deps, cimod.Options{})
	module.Register(mod.Name(), mod.Ports())
	indexer := module.MustPortsOf[cimod.Ports](mod).Index

	screenings := repokit.MustBind(srepo.NewPG(), st.PG)

	ctx := context.Background()
	cursor := since
	total, failed := 0, 0

	l.Info().Time("since", since).Int("batch", *fBatch).Msg("reindex started")

	for {
		page, err := screenings.CompletedSince(ctx, cursor, *fBatch)
		if err != nil {
			l.Panic().Err(err).Msg("failed to page completed screenings")
		}
		if len(page) == 0 {
			break
		}

		for _, scr := range page {
			if err := indexer.IndexScreening(ctx, scr); err != nil {
				failed++
				l.Error().Err(err).Str("screening_id", scr.ID).Msg("reindex failed for screening")
				continue
			}
			total++
		}

		last := page[len(page)-1]
		if last.CompletedAt != nil && last.CompletedAt.After(cursor) {
			cursor = *last.CompletedAt
		} else {
			// a page of identical completion instants cannot advance the
			// cursor; nudge past it to avoid refetching forever
			cursor = cursor.Add(time.Millisecond)
		}

		if len(page) < *fBatch {
			break
		}
	}

	l.Info().Int("indexed", total).Int("failed", failed).Msg("reindex finished")
}
