package sar

import "backcheck/internal/core/infotype"

// Decision is the controller's verdict after one completed iteration
type Decision struct {
	Continue bool
	Stage    Stage  // terminal stage when stopping, REFINE when continuing
	Reason   string // completion reason when stopping
}

// Controller decides whether a SAR loop refires or stops.
// Rules are evaluated in order; the first match wins:
// threshold met, iteration cap, diminishing returns, else continue
type Controller struct {
	FoundationThreshold float64
	DefaultThreshold    float64
	FoundationMaxIter   int
	DefaultMaxIter      int
	EarlyStop           bool
	MinInfoGainRate     float64
	MinConfidenceDelta  float64
}

// DefaultController returns the production thresholds
func DefaultController() Controller {
	return Controller{
		FoundationThreshold: 0.90,
		DefaultThreshold:    0.85,
		FoundationMaxIter:   4,
		DefaultMaxIter:      3,
		EarlyStop:           true,
		MinInfoGainRate:     0.1,
		MinConfidenceDelta:  0.05,
	}
}

// Threshold returns the confidence bar for t
func (c Controller) Threshold(t infotype.Type) float64 {
	if infotype.IsFoundation(t) {
		return c.FoundationThreshold
	}
	return c.DefaultThreshold
}

// MaxIterations returns the iteration budget for t
func (c Controller) MaxIterations(t infotype.Type) int {
	if infotype.IsFoundation(t) {
		return c.FoundationMaxIter
	}
	return c.DefaultMaxIter
}

// ShouldContinue applies the stop rules to the just-completed iteration.
// prev is nil on the first iteration. All comparisons at the boundary are
// inclusive: confidence exactly at the threshold stops, iteration exactly
// at the cap stops
func (c Controller) ShouldContinue(t infotype.Type, cur Iteration, prev *Iteration) Decision {
	if cur.Confidence >= c.Threshold(t) {
		return Decision{Stage: StageComplete, Reason: ReasonThresholdMet}
	}

	if cur.Number >= c.MaxIterations(t) {
		return Decision{Stage: StageCapped, Reason: ReasonMaxIterations}
	}

	if c.EarlyStop && cur.Number > 1 && prev != nil {
		if cur.InfoGainRate < c.MinInfoGainRate || cur.Confidence-prev.Confidence < c.MinConfidenceDelta {
			return Decision{Stage: StageDiminished, Reason: ReasonDiminishing}
		}
	}

	return Decision{Continue: true, Stage: StageRefine}
}
