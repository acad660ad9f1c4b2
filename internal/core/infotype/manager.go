package infotype

import (
	"fmt"

	"backcheck/internal/core/compliance"
)

// Permitter is the slice of the compliance evaluator the manager needs
type Permitter interface {
	Evaluate(locale string, check compliance.CheckType, role string, tier compliance.Tier) compliance.Evaluation
}

// Blocked pairs a type that cannot start with the reason why
type Blocked struct {
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

// Sequence is the answer to "what can run next"
type Sequence struct {
	Eligible []Type    `json:"eligible"`
	Blocked  []Blocked `json:"blocked,omitempty"`
}

// Manager sequences the selected types of one screening.
// It is created per screening and holds no mutable state; callers pass
// the completed set on every query
type Manager struct {
	eval     Permitter
	selected map[Type]bool
	order    []Type
	tier     compliance.Tier
	locale   string
	role     string
}

// NewManager builds a sequencer over the selected types
func NewManager(eval Permitter, selected []Type, tier compliance.Tier, locale, role string) (*Manager, error) {
	m := &Manager{
		eval:     eval,
		selected: make(map[Type]bool, len(selected)),
		order:    make([]Type, 0, len(selected)),
		tier:     tier,
		locale:   locale,
		role:     role,
	}
	for _, t := range selected {
		if _, ok := byType[t]; !ok {
			return nil, fmt.Errorf("infotype: unknown type %q", t)
		}
		if m.selected[t] {
			continue
		}
		m.selected[t] = true
		m.order = append(m.order, t)
	}
	return m, nil
}

// Selected returns the selected types in table order
func (m *Manager) Selected() []Type {
	out := make([]Type, 0, len(m.order))
	for _, s := range table {
		if m.selected[s.Type] {
			out = append(out, s.Type)
		}
	}
	return out
}

// Phases returns the phases that have at least one selected type, in order
func (m *Manager) Phases() []Phase {
	var out []Phase
	for _, p := range PhaseOrder() {
		for _, s := range table {
			if s.Phase == p && m.selected[s.Type] {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Next returns the selected types that may start now given the completed
// set: dependencies terminal, tier admitted, primary check permitted.
// Everything else selected-but-not-completed lands in Blocked with a reason
func (m *Manager) Next(completed map[Type]bool) Sequence {
	return m.next(completed, "")
}

// NextForPhase is Next restricted to one phase
func (m *Manager) NextForPhase(phase Phase, completed map[Type]bool) Sequence {
	return m.next(completed, phase)
}

func (m *Manager) next(completed map[Type]bool, phase Phase) Sequence {
	var seq Sequence
	for _, s := range table {
		if !m.selected[s.Type] || completed[s.Type] {
			continue
		}
		if phase != "" && s.Phase != phase {
			continue
		}

		if s.EnhancedOnly && m.tier != compliance.TierEnhanced {
			seq.Blocked = append(seq.Blocked, Blocked{Type: s.Type, Reason: "enhanced tier required"})
			continue
		}

		if dep, ok := m.pendingDep(s, completed); !ok {
			seq.Blocked = append(seq.Blocked, Blocked{Type: s.Type, Reason: "waiting on " + string(dep)})
			continue
		}

		ev := m.eval.Evaluate(m.locale, s.PrimaryCheck, m.role, m.tier)
		if !ev.Permitted {
			reason := ev.BlockReason
			if reason == "" {
				reason = "not permitted"
			}
			seq.Blocked = append(seq.Blocked, Blocked{Type: s.Type, Reason: "compliance: " + reason})
			continue
		}

		seq.Eligible = append(seq.Eligible, s.Type)
	}
	return seq
}

// pendingDep returns the first unmet dependency. Dependencies on types
// that were never selected for this screening are vacuously satisfied
func (m *Manager) pendingDep(s Spec, completed map[Type]bool) (Type, bool) {
	for _, d := range s.DependsOn {
		if m.selected[d] && !completed[d] {
			return d, false
		}
	}
	return "", true
}
