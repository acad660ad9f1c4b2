package module

import (
	"strings"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/platform/config"
)

// Options controls webhook processing
type Options struct {
	WebhookRPS    float64
	WebhookBurst  int
	DefaultChecks []compliance.CheckType
	DefaultLocale string
	SeedFreshFor  time.Duration
	SeedStaleFor  time.Duration
}

// FromConfig reads with CORE_HRIS_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_HRIS_")
	var checks []compliance.CheckType
	for _, v := range c.MayCSV("DEFAULT_CHECKS", nil) {
		v = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), "-", "_"))
		if v != "" {
			checks = append(checks, compliance.CheckType(v))
		}
	}
	return Options{
		WebhookRPS:    c.MayFloat64("WEBHOOK_RPS", 10),
		WebhookBurst:  c.MayInt("WEBHOOK_BURST", 20),
		DefaultChecks: checks,
		DefaultLocale: c.MayString("DEFAULT_LOCALE", "US"),
		SeedFreshFor:  c.MayDuration("SEED_FRESH_FOR", 30*24*time.Hour),
		SeedStaleFor:  c.MayDuration("SEED_STALE_FOR", 60*24*time.Hour),
	}
}
