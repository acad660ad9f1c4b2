// Package sar implements the Search-Assess-Refine loop state per
// information type: the per-type state machine, the iteration controller
// that decides refire vs stop, and the confidence scorer.
//
// One Machine belongs to exactly one screening. Iterations within a type
// are strictly serial; the machine enforces the legal stage transitions
// and records why each type stopped
package sar

import (
	"fmt"
	"sync"
	"time"

	"backcheck/internal/core/infotype"
)

// Stage is the lifecycle stage of one type's SAR loop
type Stage string

const (
	StageIdle       Stage = "IDLE"
	StageSearch     Stage = "SEARCH"
	StageAssess     Stage = "ASSESS"
	StageRefine     Stage = "REFINE"
	StageComplete   Stage = "COMPLETE"
	StageCapped     Stage = "CAPPED"
	StageDiminished Stage = "DIMINISHED"
	StageSkipped    Stage = "SKIPPED"
)

// Terminal reports whether no further iterations may run in this stage
func (s Stage) Terminal() bool {
	switch s {
	case StageComplete, StageCapped, StageDiminished, StageSkipped:
		return true
	}
	return false
}

// Completion reasons recorded on terminal states
const (
	ReasonThresholdMet  = "confidence_threshold_met"
	ReasonMaxIterations = "max_iterations_reached"
	ReasonDiminishing   = "diminishing_returns"
	ReasonCancelled     = "cancelled"
)

// Iteration is the record of one SEARCH->ASSESS round
type Iteration struct {
	Number           int       `json:"number"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
	Confidence       float64   `json:"confidence"`
	FactsExtracted   int       `json:"facts_extracted"`
	NewFacts         int       `json:"new_facts"`
	QueriesExecuted  int       `json:"queries_executed"`
	QueriesSucceeded int       `json:"queries_succeeded"`
	InfoGainRate     float64   `json:"info_gain_rate"`
}

// Metrics is what the assessor hands back when an iteration finishes
type Metrics struct {
	Confidence       float64
	FactsExtracted   int
	NewFacts         int
	QueriesExecuted  int
	QueriesSucceeded int
}

// TypeState is the full SAR record for one information type
type TypeState struct {
	Type             infotype.Type `json:"type"`
	Stage            Stage         `json:"stage"`
	Iterations       []Iteration   `json:"iterations,omitempty"`
	CompletionReason string        `json:"completion_reason,omitempty"`
	FinalConfidence  float64       `json:"final_confidence"`
}

func (ts TypeState) clone() TypeState {
	out := ts
	out.Iterations = make([]Iteration, len(ts.Iterations))
	copy(out.Iterations, ts.Iterations)
	return out
}

// Machine owns one TypeState per scheduled information type
type Machine struct {
	mu     sync.Mutex
	states map[infotype.Type]*TypeState
	ctrl   Controller
	now    func() time.Time
}

// Option tweaks machine construction
type Option func(*Machine)

// WithNow injects a clock (tests)
func WithNow(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine builds an empty machine driven by ctrl
func NewMachine(ctrl Controller, opts ...Option) *Machine {
	m := &Machine{
		states: make(map[infotype.Type]*TypeState),
		ctrl:   ctrl,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize creates the IDLE state for t. Errors if already initialized
func (m *Machine) Initialize(t infotype.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[t]; ok {
		return fmt.Errorf("sar: type %s already initialized", t)
	}
	m.states[t] = &TypeState{Type: t, Stage: StageIdle}
	return nil
}

// StartIteration opens iteration N+1 and moves the type to SEARCH.
// Legal only from IDLE or REFINE
func (m *Machine) StartIteration(t infotype.Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.states[t]
	if !ok {
		return 0, fmt.Errorf("sar: type %s not initialized", t)
	}
	if ts.Stage != StageIdle && ts.Stage != StageRefine {
		return 0, fmt.Errorf("sar: type %s cannot start iteration from %s", t, ts.Stage)
	}

	n := len(ts.Iterations) + 1
	ts.Iterations = append(ts.Iterations, Iteration{Number: n, StartedAt: m.now()})
	ts.Stage = StageSearch
	return n, nil
}

// CompleteIteration records metrics for the open iteration, computes the
// info gain rate, and asks the controller whether to refine or stop.
// Returns the controller's decision
func (m *Machine) CompleteIteration(t infotype.Type, metrics Metrics) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.states[t]
	if !ok {
		return Decision{}, fmt.Errorf("sar: type %s not initialized", t)
	}
	if ts.Stage != StageSearch {
		return Decision{}, fmt.Errorf("sar: type %s has no open iteration (stage %s)", t, ts.Stage)
	}

	cur := &ts.Iterations[len(ts.Iterations)-1]
	cur.CompletedAt = m.now()
	cur.Confidence = clamp01(metrics.Confidence)
	cur.FactsExtracted = metrics.FactsExtracted
	cur.NewFacts = metrics.NewFacts
	cur.QueriesExecuted = metrics.QueriesExecuted
	cur.QueriesSucceeded = metrics.QueriesSucceeded
	cur.InfoGainRate = float64(metrics.NewFacts) / float64(max(1, metrics.QueriesExecuted))
	ts.Stage = StageAssess

	var prev *Iteration
	if len(ts.Iterations) > 1 {
		prev = &ts.Iterations[len(ts.Iterations)-2]
	}

	dec := m.ctrl.ShouldContinue(t, *cur, prev)
	if dec.Continue {
		ts.Stage = StageRefine
		return dec, nil
	}

	ts.Stage = dec.Stage
	ts.CompletionReason = dec.Reason
	ts.FinalConfidence = cur.Confidence
	return dec, nil
}

// Skip terminally marks t as SKIPPED with confidence 0.
// Errors if the type is already terminal
func (m *Machine) Skip(t infotype.Type, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.states[t]
	if !ok {
		ts = &TypeState{Type: t}
		m.states[t] = ts
	}
	if ts.Stage.Terminal() {
		return fmt.Errorf("sar: type %s already terminal (%s)", t, ts.Stage)
	}
	ts.Stage = StageSkipped
	ts.CompletionReason = reason
	ts.FinalConfidence = 0
	return nil
}

// Cancel terminally marks t with reason cancelled, keeping the last
// observed confidence. Idempotent on already-terminal types
func (m *Machine) Cancel(t infotype.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.states[t]
	if !ok || ts.Stage.Terminal() {
		return
	}
	ts.Stage = StageSkipped
	ts.CompletionReason = ReasonCancelled
	if n := len(ts.Iterations); n > 0 {
		ts.FinalConfidence = ts.Iterations[n-1].Confidence
	}
}

// StateOf returns a copy of t's state
func (m *Machine) StateOf(t infotype.Type) (TypeState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.states[t]
	if !ok {
		return TypeState{}, false
	}
	return ts.clone(), true
}

// Terminal reports whether t is initialized and in a terminal stage
func (m *Machine) Terminal(t infotype.Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.states[t]
	return ok && ts.Stage.Terminal()
}

// AllTerminal reports whether every initialized type has stopped
func (m *Machine) AllTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ts := range m.states {
		if !ts.Stage.Terminal() {
			return false
		}
	}
	return true
}

// Snapshot returns copies of all states in table order
func (m *Machine) Snapshot() []TypeState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TypeState, 0, len(m.states))
	for _, t := range infotype.All() {
		if ts, ok := m.states[t]; ok {
			out = append(out, ts.clone())
		}
	}
	return out
}

// FinalConfidences returns final confidence per terminal type
func (m *Machine) FinalConfidences() map[infotype.Type]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[infotype.Type]float64, len(m.states))
	for t, ts := range m.states {
		if ts.Stage.Terminal() {
			out[t] = ts.FinalConfidence
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
