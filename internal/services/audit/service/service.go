// Package service implements the append-only audit trail.
// Postgres is the system of record; ClickHouse receives a best-effort
// mirror for analytics and never fails a write
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/repokit"
	"backcheck/internal/platform/logger"
	"backcheck/internal/platform/store"
	"backcheck/internal/services/audit/domain"
	arepo "backcheck/internal/services/audit/repo"
)

const mirrorTable = "audit_events"

// Config controls the audit writer
type Config struct {
	// Mirror enables the ClickHouse copy when a CH seam is configured
	Mirror bool
}

// Svc implements domain.RecorderPort
type Svc struct {
	repo domain.StorageRepo
	ch   store.Clickhouse
	cfg  Config
	log  logger.Logger
	now  func() time.Time
}

// New constructs the audit service
func New(deps modkit.Deps, cfg Config) *Svc {
	var repo domain.StorageRepo
	if deps.PG != nil {
		repo = repokit.MustBind(arepo.NewPG(), deps.PG)
	}
	return &Svc{
		repo: repo,
		ch:   deps.CH,
		cfg:  cfg,
		log:  deps.Log.With().Str("component", "audit").Logger(),
		now:  time.Now,
	}
}

// Record appends one event. A missing id or timestamp is filled in here
// so call sites stay terse. The pg write is authoritative; the mirror is
// logged and dropped on failure
func (s *Svc) Record(ctx context.Context, ev domain.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}

	if s.repo != nil {
		if err := s.repo.Append(ctx, ev); err != nil {
			return err
		}
	}

	if s.cfg.Mirror && s.ch != nil {
		if err := s.ch.Insert(ctx, mirrorTable, arepo.MirrorRowOf(ev)); err != nil {
			s.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("audit mirror write failed")
		}
	}
	return nil
}
