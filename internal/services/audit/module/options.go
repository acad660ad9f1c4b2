package module

import "backcheck/internal/platform/config"

// Options controls the audit module
type Options struct {
	// NoMirror disables the ClickHouse copy even when a CH seam exists
	NoMirror bool
}

// FromConfig reads with CORE_AUDIT_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_AUDIT_")
	return Options{
		NoMirror: !c.MayBool("MIRROR_CH", true),
	}
}
