// Package assess turns raw provider query results into accumulated
// knowledge: extracted facts, knowledge-base updates, gap detection,
// inconsistency detection, secondary-entity discovery, and the per-type
// confidence score
package assess

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
)

// QueryResult is the assessor's view of one executed search query
type QueryResult struct {
	QueryID   string
	Provider  string
	CheckType compliance.CheckType
	Success   bool
	Stale     bool           // served from cache past its fresh window
	Data      map[string]any // normalized provider payload
}

// Fact is one atomic claim about the subject from one source
type Fact struct {
	ID           string               `json:"id"`
	InfoType     infotype.Type        `json:"info_type"`
	Type         string               `json:"type"` // fact type token, e.g. "name_variant"
	Value        string               `json:"value"`
	Source       string               `json:"source"` // provider id
	CheckType    compliance.CheckType `json:"check_type,omitempty"`
	Confidence   float64              `json:"confidence"`
	Iteration    int                  `json:"iteration"`
	Stale        bool                 `json:"stale,omitempty"`
	DiscoveredAt time.Time            `json:"discovered_at"`
	Attrs        map[string]string    `json:"attrs,omitempty"`
}

func newFact(t infotype.Type, factType, value string, r QueryResult, iteration int, conf float64, now time.Time) Fact {
	return Fact{
		ID:           uuid.NewString(),
		InfoType:     t,
		Type:         factType,
		Value:        value,
		Source:       r.Provider,
		CheckType:    r.CheckType,
		Confidence:   conf,
		Iteration:    iteration,
		Stale:        r.Stale,
		DiscoveredAt: now,
	}
}

// TupleKey identifies a fact by its (fact_type, canonical value, source)
// tuple, the unit of novelty counting
func (f Fact) TupleKey() string {
	return f.Type + "\x1f" + subject.Canon(f.Value) + "\x1f" + f.Source
}

// FactSet tracks which fact tuples have been seen across iterations.
// Safe for concurrent use; types assessing in parallel share one set
type FactSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewFactSet returns an empty tuple tracker
func NewFactSet() *FactSet {
	return &FactSet{seen: make(map[string]bool)}
}

// Add records the fact's tuple and reports whether it was new
func (s *FactSet) Add(f Fact) bool {
	k := f.TupleKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[k] {
		return false
	}
	s.seen[k] = true
	return true
}

// Len returns the distinct tuple count
func (s *FactSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Inconsistency severities and kinds
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeverityMajor    = "major"

	KindSpelling      = "spelling"
	KindDateConflict  = "date_conflict"
	KindValueConflict = "value_conflict"
)

// Inconsistency records two sources disagreeing on the same fact type.
// Conflicting values never overwrite the knowledge base; they live here
type Inconsistency struct {
	FactType       string  `json:"fact_type"`
	ValueA         string  `json:"value_a"`
	ValueB         string  `json:"value_b"`
	SourceA        string  `json:"source_a"`
	SourceB        string  `json:"source_b"`
	Severity       string  `json:"severity"`
	Kind           string  `json:"kind"`
	DeceptionScore float64 `json:"deception_score"`
}

// pairKey is order-independent so A/B vs B/A dedupes
func (ic Inconsistency) pairKey() string {
	a := subject.Canon(ic.ValueA) + "\x1f" + ic.SourceA
	b := subject.Canon(ic.ValueB) + "\x1f" + ic.SourceB
	if a > b {
		a, b = b, a
	}
	return ic.FactType + "\x1f" + a + "\x1f" + b
}

// DeceptionScorer assigns a deception likelihood in [0,1] to one detected
// inconsistency. Deployments may plug their own heuristic
type DeceptionScorer func(Inconsistency) float64

// DefaultDeceptionScorer weighs severity, discounting spelling drift
func DefaultDeceptionScorer(ic Inconsistency) float64 {
	base := 0.2
	switch ic.Severity {
	case SeverityModerate:
		base = 0.5
	case SeverityMajor:
		base = 0.8
	}
	if ic.Kind == KindSpelling {
		base *= 0.3
	}
	if base > 1 {
		base = 1
	}
	return base
}

// Gap is a hole in the accumulated knowledge that refinement can target.
// Types follow the no_* (nothing found) / missing_* (partial) convention
type Gap struct {
	Type        string        `json:"type"`
	InfoType    infotype.Type `json:"info_type"`
	Description string        `json:"description"`
	Priority    int           `json:"priority"` // 1 = most urgent
}

// Entity kinds for discovered secondary entities
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
)

// Entity is a person or organization discovered while assessing facts
type Entity struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Relation string `json:"relation"` // employer, school, associate, ...
	Source   string `json:"source"`
}
