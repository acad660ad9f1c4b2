// Package domain defines the priority dispatch types and ports.
// The dispatcher wraps the router with global cross-provider flow
// control: one process-wide token bucket plus a burst gate, fed from a
// priority queue so foundation work never starves behind bulk phases
package domain

import (
	"context"

	"backcheck/internal/core/infotype"
	routerdom "backcheck/internal/services/router/domain"
)

// Submission is one routed query queued for dispatch
type Submission struct {
	Request  routerdom.RoutedRequest `json:"request"`
	InfoType infotype.Type           `json:"info_type"`
	Phase    infotype.Phase          `json:"phase"`

	// Modifiers tweak the phase base priority: tokens starting with
	// "+" raise it, "-" lower it, one step each
	Modifiers []string `json:"modifiers,omitempty"`
}

// DispatcherPort is the flow-control surface the screening runner uses.
// Submit enqueues; DispatchForType blocks until every submission for
// that info type has completed and drains its results; DispatchAll does
// the same across all types
type DispatcherPort interface {
	Start()
	Stop()
	Submit(ctx context.Context, sub Submission) error
	DispatchForType(ctx context.Context, t infotype.Type) ([]routerdom.RoutedResult, error)
	DispatchAll(ctx context.Context) ([]routerdom.RoutedResult, error)
}

// Ports are dependencies injected into the dispatch module
type Ports struct {
	Router routerdom.RouterPort // required
}
