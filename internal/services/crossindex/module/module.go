// Package module wires the cross-screening network index
package module

import (
	"backcheck/internal/modkit"
	"backcheck/internal/modkit/httpkit"
	"backcheck/internal/platform/config"
	dom "backcheck/internal/services/crossindex/domain"
	"backcheck/internal/services/crossindex/service"
)

// Options controls traversal caps
type Options struct {
	MaxDegree int
	MaxDepth  int
}

// FromConfig reads with CORE_CROSSINDEX_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_CROSSINDEX_")
	return Options{
		MaxDegree: c.MayInt("MAX_DEGREE", 3),
		MaxDepth:  c.MayInt("MAX_DEPTH", 3),
	}
}

// Ports holds the ports exposed by the crossindex module
type Ports struct {
	Index dom.IndexPort
}

// Module defines the crossindex module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the crossindex module
func New(deps modkit.Deps, overrides Options) *Module {
	cfg := FromConfig(deps.Cfg)
	if overrides.MaxDegree != 0 {
		cfg.MaxDegree = overrides.MaxDegree
	}
	if overrides.MaxDepth != 0 {
		cfg.MaxDepth = overrides.MaxDepth
	}

	svc := service.New(deps, service.Config{
		MaxDegree: cfg.MaxDegree,
		MaxDepth:  cfg.MaxDepth,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Index: svc}
	return m
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "crossindex" }

// Prefix returns the module config prefix (no HTTP surface)
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
