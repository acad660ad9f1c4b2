package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"backcheck/internal/core/assess"
	"backcheck/internal/core/compliance"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/queryplan"
	"backcheck/internal/core/risk"
	"backcheck/internal/core/sar"
	"backcheck/internal/platform/logger"
	auditdom "backcheck/internal/services/audit/domain"
	dispatchdom "backcheck/internal/services/dispatch/domain"
	retdom "backcheck/internal/services/retention/domain"
	routerdom "backcheck/internal/services/router/domain"
	"backcheck/internal/services/screening/domain"
)

const terminalPersistTimeout = 10 * time.Second

// runState bundles the per-screening machinery shared by the phase and
// type loops
type runState struct {
	scr       *domain.Screening
	machine   *sar.Machine
	kb        *assess.KnowledgeBase
	seen      *assess.FactSet
	assessor  *assess.Assessor
	planner   *queryplan.Planner
	refiner   *queryplan.Refiner
	providers []queryplan.ProviderInfo

	// guards the scr fields written by concurrent type loops
	mu sync.Mutex
}

// execute runs one leased or inline screening to a terminal status.
// Callers must have bumped s.inflight
func (s *Svc) execute(scr domain.Screening) {
	defer s.inflight.Done()

	deadline := s.cfg.StandardDeadline
	if scr.Tier == compliance.TierEnhanced {
		deadline = s.cfg.EnhancedDeadline
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	s.register(scr.ID, cancel)
	defer s.unregister(scr.ID)

	s.run(ctx, scr)
}

// run drives the screening through its phases to a terminal status.
// Phases are barriers: every selected type of the current phase reaches
// a terminal stage before the next phase starts, and progress is
// snapshotted at each barrier
func (s *Svc) run(ctx context.Context, scr domain.Screening) {
	log := s.log.With().Str("screening_id", scr.ID).Logger()
	started := s.now()

	scr.Status = domain.StatusRunning
	if scr.StartedAt == nil {
		now := s.now().UTC()
		scr.StartedAt = &now
	}
	s.persistSnapshot(ctx, &scr, log)

	selected := infotype.SelectForChecks(scr.PermittedChecks, scr.Tier)
	mgr, err := infotype.NewManager(s.eval, selected, scr.Tier, scr.Locale, scr.Role)
	if err != nil {
		s.finishFailed(&scr, domain.FailInfrastructure, err.Error(), started, log)
		return
	}

	st := &runState{
		scr:       &scr,
		machine:   sar.NewMachine(sar.DefaultController(), sar.WithNow(s.now)),
		kb:        assess.NewKnowledgeBase(scr.Subject),
		seen:      assess.NewFactSet(),
		assessor:  assess.New(assess.WithNow(s.now)),
		planner:   queryplan.NewPlanner(),
		refiner:   queryplan.NewRefiner(),
		providers: s.prov.PlannerView(),
	}

	completed := make(map[infotype.Type]bool, len(selected))
	var runErr error

phases:
	for _, phase := range mgr.Phases() {
		if ctx.Err() != nil {
			break
		}
		phaseStart := s.now()

		for {
			seq := mgr.NextForPhase(phase, completed)
			if len(seq.Eligible) == 0 {
				// nothing left can start inside this phase; the rest
				// is terminally blocked (tier, compliance, or a dep
				// that will never complete)
				for _, b := range seq.Blocked {
					if err := st.machine.Skip(b.Type, b.Reason); err == nil {
						log.Info().Str("info_type", string(b.Type)).
							Str("reason", b.Reason).Msg("type skipped")
					}
					completed[b.Type] = true
				}
				break
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, t := range seq.Eligible {
				g.Go(func() error { return s.runType(gctx, st, phase, t) })
			}
			if err := g.Wait(); err != nil {
				if ctx.Err() != nil {
					break phases
				}
				runErr = err
				break phases
			}
			for _, t := range seq.Eligible {
				completed[t] = true
			}
		}

		s.snapshotProgress(st)
		s.persistSnapshot(ctx, &scr, log)
		s.metrics.RecordPhase(string(phase), s.now().Sub(phaseStart).Seconds())
	}

	switch {
	case runErr != nil:
		s.cancelRemaining(st, selected)
		s.snapshotProgress(st)
		s.finishFailed(&scr, domain.FailInfrastructure, runErr.Error(), started, log)
	case ctx.Err() != nil:
		s.cancelRemaining(st, selected)
		s.snapshotProgress(st)
		if s.cancelRequested(scr.ID) {
			s.finishCancelled(&scr, started, log)
		} else {
			s.finishFailed(&scr, domain.FailTimeout, "screening deadline exceeded", started, log)
		}
	default:
		s.finishComplete(&scr, st, started, log)
	}
}

// runType drives one info type through its search-assess-refine loop
// until the controller stops it or the context dies
func (s *Svc) runType(ctx context.Context, st *runState, phase infotype.Phase, t infotype.Type) error {
	if err := st.machine.Initialize(t); err != nil {
		return err
	}
	log := s.log.With().Str("screening_id", st.scr.ID).Str("info_type", string(t)).Logger()

	var last assess.Assessment
	for {
		if err := ctx.Err(); err != nil {
			st.machine.Cancel(t)
			return err
		}
		n, err := st.machine.StartIteration(t)
		if err != nil {
			return err
		}

		queries := s.planQueries(st, t, n, last)
		if err := s.submitQueries(ctx, st, phase, t, queries); err != nil {
			st.machine.Cancel(t)
			return err
		}
		results, err := s.disp.DispatchForType(ctx, t)
		if err != nil {
			st.machine.Cancel(t)
			return err
		}

		as := s.assessResults(st, t, n, results)
		last = as
		dec, err := st.machine.CompleteIteration(t, as.Metrics())
		if err != nil {
			return err
		}
		log.Debug().Int("iteration", n).Float64("confidence", as.Confidence).
			Int("new_facts", as.NewFacts).Bool("continue", dec.Continue).
			Msg("iteration assessed")
		if !dec.Continue {
			return nil
		}
	}
}

// planQueries plans the iteration's query set: the initial plan first,
// gap-driven refinement afterwards, falling back to an enriched re-plan
// when refinement has nothing left to chase
func (s *Svc) planQueries(st *runState, t infotype.Type, iteration int, last assess.Assessment) []queryplan.Query {
	view := st.kb.View()
	scr := st.scr
	if iteration <= 1 {
		return st.planner.Plan(t, scr.Subject, view, scr.Tier, st.providers, iteration)
	}
	queries := st.refiner.Refine(last, scr.Subject, view, scr.Tier, st.providers, iteration)
	if len(queries) == 0 {
		queries = st.planner.Plan(t, scr.Subject, view, scr.Tier, st.providers, iteration)
	}
	return queries
}

func (s *Svc) submitQueries(ctx context.Context, st *runState, phase infotype.Phase, t infotype.Type, queries []queryplan.Query) error {
	for _, q := range queries {
		sub := dispatchdom.Submission{
			Request: routerdom.RoutedRequest{
				CheckType:   q.CheckType,
				Subject:     st.scr.Subject,
				Locale:      st.scr.Locale,
				EntityID:    st.scr.SubjectRef,
				TenantID:    st.scr.TenantID,
				Tier:        st.scr.Tier,
				ScreeningID: st.scr.ID,
				QueryID:     q.ID,
				Provider:    q.Provider,
				Params:      q.Params,
			},
			InfoType:  t,
			Phase:     phase,
			Modifiers: priorityModifiers(q.Priority),
		}
		if err := s.disp.Submit(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

// assessResults folds the iteration's routed results into the knowledge
// base and tracks stale usage and raw payload hashes on the screening
func (s *Svc) assessResults(st *runState, t infotype.Type, iteration int, results []routerdom.RoutedResult) assess.Assessment {
	qres := make([]assess.QueryResult, len(results))
	var hashes []string
	for i, r := range results {
		qres[i] = assess.QueryResult{
			Provider:  r.ProviderID,
			CheckType: r.CheckType,
			Success:   r.Success,
			Stale:     r.StaleDataUsed,
			Data:      r.Data,
		}
		if r.RawHash != "" {
			hashes = append(hashes, r.RawHash)
		}
	}

	as := st.assessor.Assess(t, qres, iteration, st.kb, st.seen)

	st.mu.Lock()
	st.scr.StaleDataUsed = st.scr.StaleDataUsed || as.StaleDataUsed
	st.scr.RawHashes = appendDistinct(st.scr.RawHashes, hashes)
	st.mu.Unlock()
	return as
}

// snapshotProgress copies the machine and KB state onto the screening row
func (s *Svc) snapshotProgress(st *runState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scr.TypeStates = st.machine.Snapshot()
	v := st.kb.View()
	st.scr.Knowledge = &v
	st.scr.Inconsistencies = st.kb.Inconsistencies()
}

// cancelRemaining terminally marks every unfinished selected type:
// started types keep their last confidence, never-started types record
// a cancelled skip
func (s *Svc) cancelRemaining(st *runState, selected []infotype.Type) {
	for _, t := range selected {
		if st.machine.Terminal(t) {
			continue
		}
		if _, ok := st.machine.StateOf(t); ok {
			st.machine.Cancel(t)
			continue
		}
		_ = st.machine.Skip(t, sar.ReasonCancelled)
	}
}

func (s *Svc) finishComplete(scr *domain.Screening, st *runState, started time.Time, log logger.Logger) {
	s.snapshotProgress(st)

	findings := risk.NewClassifier().Classify(st.kb.Facts(), st.kb.Inconsistencies())
	for _, ts := range scr.TypeStates {
		// a type that ran and still has zero confidence weakens the
		// screening; types skipped before any work carry no signal
		if ts.Stage.Terminal() && len(ts.Iterations) > 0 && ts.FinalConfidence == 0 {
			findings = append(findings, risk.WeakFinding(ts.Type))
		}
		s.metrics.RecordType(string(ts.Type), len(ts.Iterations), ts.FinalConfidence)
	}

	score := risk.NewScorer(risk.WithNow(s.now)).Score(findings, scr.Role)
	risk.SortFindings(score.Findings)
	for _, w := range score.Warnings {
		log.Warn().Str("warning", w).Msg("risk scoring")
	}

	now := s.now().UTC()
	scr.Status = domain.StatusComplete
	scr.Score = &score
	scr.CompletedAt = &now
	if !s.persistTerminal(scr, log) {
		scr.Status = domain.StatusFailed
		scr.FailReason = domain.FailInfrastructure
		scr.FailDetail = "completion not persisted"
		scr.Score = nil
		s.persistTerminal(scr, log)
		s.metrics.RecordScreening(string(domain.StatusFailed), s.now().Sub(started).Seconds())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), terminalPersistTimeout)
	defer cancel()
	s.auditEvent(ctx, auditdom.Event{
		Kind:        auditdom.KindScreeningCompleted,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
		SubjectID:   scr.SubjectRef,
		Detail: map[string]any{
			"overall":         score.Overall,
			"level":           string(score.Level),
			"recommendation":  string(score.Recommendation),
			"findings":        len(score.Findings),
			"stale_data_used": scr.StaleDataUsed,
		},
	})
	s.retainCompletion(ctx, scr, score)
	s.metrics.RecordScreening(string(domain.StatusComplete), s.now().Sub(started).Seconds())
	s.metrics.RecordRiskScore(score.Overall)
	log.Info().Int("overall", score.Overall).Str("level", string(score.Level)).
		Int("findings", len(score.Findings)).Msg("screening complete")

	s.indexOut(*scr)
}

func (s *Svc) finishCancelled(scr *domain.Screening, started time.Time, log logger.Logger) {
	now := s.now().UTC()
	scr.Status = domain.StatusCancelled
	scr.CompletedAt = &now
	s.persistTerminal(scr, log)

	ctx, cancel := context.WithTimeout(context.Background(), terminalPersistTimeout)
	defer cancel()
	s.auditEvent(ctx, auditdom.Event{
		Kind:        auditdom.KindScreeningCancelled,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
		SubjectID:   scr.SubjectRef,
	})
	s.metrics.RecordScreening(string(domain.StatusCancelled), s.now().Sub(started).Seconds())
	log.Info().Msg("screening cancelled")
}

func (s *Svc) finishFailed(scr *domain.Screening, reason domain.FailReason, detail string, started time.Time, log logger.Logger) {
	now := s.now().UTC()
	scr.Status = domain.StatusFailed
	scr.FailReason = reason
	scr.FailDetail = detail
	scr.CompletedAt = &now
	s.persistTerminal(scr, log)

	ctx, cancel := context.WithTimeout(context.Background(), terminalPersistTimeout)
	defer cancel()
	s.auditEvent(ctx, auditdom.Event{
		Kind:        auditdom.KindScreeningFailed,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
		SubjectID:   scr.SubjectRef,
		Detail:      map[string]any{"reason": string(reason), "detail": detail},
	})
	s.metrics.RecordScreening(string(domain.StatusFailed), s.now().Sub(started).Seconds())
	log.Error().Str("reason", string(reason)).Str("detail", detail).Msg("screening failed")
}

// persistSnapshot saves intermediate progress; failures degrade the
// partial trail, never the run
func (s *Svc) persistSnapshot(ctx context.Context, scr *domain.Screening, log logger.Logger) {
	if err := s.repo.Update(ctx, *scr); err != nil {
		log.Warn().Err(err).Msg("progress snapshot not persisted")
	}
}

// persistTerminal writes the terminal row on a fresh context so a dead
// run context cannot lose the outcome; one retry on failure
func (s *Svc) persistTerminal(scr *domain.Screening, log logger.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), terminalPersistTimeout)
	defer cancel()
	err := s.repo.Update(ctx, *scr)
	if err == nil {
		return true
	}
	if err = s.repo.Update(ctx, *scr); err == nil {
		return true
	}
	log.Error().Err(err).Str("status", string(scr.Status)).Msg("terminal status not persisted")
	return false
}

func (s *Svc) retainCompletion(ctx context.Context, scr *domain.Screening, score risk.Score) {
	if s.ret == nil {
		return
	}
	s.retain(ctx, retdom.Record{
		DataType:    retdom.DataScreeningResult,
		RefID:       scr.ID,
		TenantID:    scr.TenantID,
		ScreeningID: scr.ID,
	})
	for _, f := range score.Findings {
		s.retain(ctx, retdom.Record{
			DataType:    retdom.DataScreeningFinding,
			RefID:       f.ID,
			TenantID:    scr.TenantID,
			ScreeningID: scr.ID,
		})
	}
	if len(scr.RawHashes) > 0 {
		s.retain(ctx, retdom.Record{
			DataType:    retdom.DataScreeningRaw,
			RefID:       scr.ID,
			TenantID:    scr.TenantID,
			ScreeningID: scr.ID,
			Meta:        map[string]any{"raw_hashes": scr.RawHashes},
		})
	}
}

// indexOut hands the completed screening to the cross-screening indexer
// out of band; indexing never affects the screening outcome
func (s *Svc) indexOut(scr domain.Screening) {
	if s.index == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.index.IndexScreening(ctx, scr); err != nil {
			s.log.Warn().Err(err).Str("screening_id", scr.ID).Msg("crossindex failed")
		}
	}()
}

// priorityModifiers translates a planner priority boost into dispatch
// modifier tokens, one step each
func priorityModifiers(priority int) []string {
	if priority <= 1 {
		return nil
	}
	mods := make([]string, 0, priority-1)
	for i := 1; i < priority; i++ {
		mods = append(mods, "+boost")
	}
	return mods
}

func appendDistinct(dst []string, add []string) []string {
	if len(add) == 0 {
		return dst
	}
	seen := make(map[string]bool, len(dst)+len(add))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range add {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}
