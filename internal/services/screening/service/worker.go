package service

import (
	"context"
	"time"
)

// Run is the screening worker loop: lease a small batch of pending
// screenings on each tick and execute them concurrently behind a
// semaphore. On shutdown it stops leasing and drains in-flight runs;
// the platform shutdown timeout bounds the drain, and anything cut off
// there is re-leased once its lease expires
func (s *Svc) Run(ctx context.Context) error {
	log := s.log.With().Str("component", "screening-worker").Logger()
	sem := make(chan struct{}, max(1, s.cfg.Concurrency))
	ticker := time.NewTicker(s.cfg.TickEvery)
	defer ticker.Stop()

	log.Info().Str("worker_id", s.cfg.WorkerID).Int("concurrency", s.cfg.Concurrency).
		Msg("screening worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("screening worker draining")
			s.inflight.Wait()
			return ctx.Err()
		case <-ticker.C:
			leased, err := s.repo.Lease(ctx, s.cfg.WorkerID, s.cfg.TakeBatch, s.cfg.LeaseFor)
			if err != nil {
				log.Error().Err(err).Msg("lease screenings failed")
				continue
			}
			for i := range leased {
				sem <- struct{}{}
				scr := leased[i]
				s.inflight.Add(1)
				go func() {
					defer func() { <-sem }()
					s.execute(scr)
				}()
			}
		}
	}
}
