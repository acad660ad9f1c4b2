package module

import (
	"backcheck/internal/platform/config"
)

// Options controls the dispatcher
type Options struct {
	// RPM is the global cross-provider dispatch budget per minute
	RPM int
}

// FromConfig reads with CORE_DISPATCH_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_DISPATCH_")
	return Options{
		RPM: c.MayInt("RPM", 300),
	}
}
