package module

import (
	"time"

	"backcheck/internal/platform/config"
)

// Options controls the screening orchestrator and its worker loop
type Options struct {
	StandardDeadline time.Duration
	EnhancedDeadline time.Duration
	WorkerID         string
	Concurrency      int
	TakeBatch        int
	TickEvery        time.Duration
	LeaseFor         time.Duration
	InlineRun        bool
}

// FromConfig reads with CORE_SCREENING_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_SCREENING_")
	return Options{
		StandardDeadline: c.MayDuration("STANDARD_DEADLINE", 10*time.Minute),
		EnhancedDeadline: c.MayDuration("ENHANCED_DEADLINE", 30*time.Minute),
		WorkerID:         c.MayString("WORKER_ID", ""),
		Concurrency:      c.MayInt("CONCURRENCY", 4),
		TakeBatch:        c.MayInt("TAKE_BATCH", 2),
		TickEvery:        c.MayDuration("TICK_EVERY", 500*time.Millisecond),
		LeaseFor:         c.MayDuration("LEASE_FOR", 35*time.Minute),
		InlineRun:        c.MayBool("INLINE_RUN", false),
	}
}
