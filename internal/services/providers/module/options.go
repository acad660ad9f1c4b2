package module

import "backcheck/internal/platform/config"

// Options holds configuration settings for the providers module
type Options struct {
	// FixturesEnabled registers the two deterministic fixture providers
	FixturesEnabled  bool
	FixtureLatencyMs int

	// HTTPNames lists remote providers; each NAME reads its own
	// PROVIDER_<NAME>_* block (URL, TOKEN, CHECKS, COST_CENTS)
	HTTPNames []string
}

// FromConfig extracts Options from the given config.Conf
func FromConfig(cfg config.Conf) Options {
	pf := cfg.Prefix("CORE_PROVIDERS_")
	return Options{
		FixturesEnabled:  pf.MayBool("FIXTURES", true),
		FixtureLatencyMs: pf.MayInt("FIXTURE_LATENCY_MS", 0),
		HTTPNames:        pf.MayCSV("HTTP", nil),
	}
}
