// Package service implements the cross-screening network index.
// IndexScreening distills one completed screening into per-subject
// observations and subject-subject edges; Query and NetworkGraph walk
// the accumulated edge set with bounded breadth-first traversals
package service

import (
	"context"
	"time"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	"backcheck/internal/services/crossindex/domain"
	crepo "backcheck/internal/services/crossindex/repo"
	screeningdom "backcheck/internal/services/screening/domain"
)

// Config tunes the index
type Config struct {
	// MaxDegree caps Query traversal depth; requests past the cap are
	// clamped, not rejected
	MaxDegree int

	// MaxDepth caps NetworkGraph traversal depth
	MaxDepth int

	// Metrics defaults to a set registered on the default registerer;
	// tests inject their own
	Metrics *Metrics
}

const (
	defaultMaxDegree = 3
	defaultMaxDepth  = 3
)

// Svc implements domain.IndexPort
type Svc struct {
	repo    domain.StorageRepo
	cfg     Config
	metrics *Metrics
	log     logger.Logger
	now     func() time.Time
}

// New constructs the index service
func New(deps modkit.Deps, cfg Config) *Svc {
	if cfg.MaxDegree <= 0 {
		cfg.MaxDegree = defaultMaxDegree
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	var repo domain.StorageRepo
	if deps.PG != nil {
		repo = repokit.MustBind(crepo.NewPG(), deps.PG)
	}
	return &Svc{
		repo:    repo,
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     deps.Log.With().Str("component", "crossindex").Logger(),
		now:     time.Now,
	}
}

// IndexScreening distills one completed screening into the graph.
// Non-complete screenings are ignored. Callers run this out of band;
// an error here never changes the screening outcome
func (s *Svc) IndexScreening(ctx context.Context, scr screeningdom.Screening) error {
	if s.repo == nil {
		return nil
	}
	if scr.Status != screeningdom.StatusComplete {
		s.log.Debug().Str("screening_id", scr.ID).Str("status", string(scr.Status)).
			Msg("crossindex skipping non-complete screening")
		return nil
	}
	key := domain.NodeKey(scr.Subject)
	if key == "" {
		return perr.InvalidArgf("screening %s has no subject name to index", scr.ID)
	}
	at := s.now().UTC()

	obs := extractObservations(key, scr, at)
	edges := directEdges(key, scr, at)

	if err := s.repo.PutObservations(ctx, obs); err != nil {
		return err
	}
	shared, err := s.sharedEdges(ctx, key, scr.TenantID, obs, at)
	if err != nil {
		return err
	}
	edges = dedupeEdges(append(edges, shared...))
	if len(edges) > 0 {
		if err := s.repo.UpsertEdges(ctx, edges); err != nil {
			return err
		}
	}

	s.metrics.RecordIndexed(len(obs), len(edges))
	s.log.Debug().
		Str("screening_id", scr.ID).
		Str("subject", key).
		Int("observations", len(obs)).
		Int("edges", len(edges)).
		Msg("screening indexed")
	return nil
}

// sharedEdges joins this subject's observations against every other
// indexed subject and emits the derived edge per observation kind
func (s *Svc) sharedEdges(ctx context.Context, key, tenantID string, obs []domain.Observation, at time.Time) ([]domain.Edge, error) {
	byKind := map[domain.ObsKind][]string{}
	for _, o := range obs {
		byKind[o.Kind] = append(byKind[o.Kind], o.Value)
	}

	var out []domain.Edge
	for _, kind := range obsKinds {
		values := byKind[kind]
		if len(values) == 0 {
			continue
		}
		spec := sharedEdgeSpecs[kind]
		matches, err := s.repo.Matches(ctx, kind, values, key)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			out = append(out, domain.Edge{
				SubjectA:   key,
				SubjectB:   m.SubjectID,
				Type:       spec.conn,
				Strength:   spec.strength,
				Evidence:   m.Value,
				TenantID:   tenantID,
				ObservedAt: at,
			}.Normalize())
		}
	}
	return out, nil
}

// dedupeEdges collapses duplicate (pair, type) edges keeping the
// strongest sighting
func dedupeEdges(edges []domain.Edge) []domain.Edge {
	idx := make(map[string]int, len(edges))
	out := make([]domain.Edge, 0, len(edges))
	for _, e := range edges {
		e = e.Normalize()
		if e.SubjectA == e.SubjectB {
			continue
		}
		k := e.SubjectA + "\x1f" + e.SubjectB + "\x1f" + string(e.Type)
		if i, ok := idx[k]; ok {
			if e.Strength.Rank() > out[i].Strength.Rank() {
				out[i] = e
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}

var _ domain.IndexPort = (*Svc)(nil)
var _ screeningdom.IndexerPort = (*Svc)(nil)
