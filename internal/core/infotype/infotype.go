// Package infotype defines the information types a screening gathers,
// their phase grouping, dependency edges, and the check-types each one
// is allowed to execute. Phases run in strict order with a barrier
// between them; within a phase, types run concurrently once their
// dependencies are terminal
package infotype

import (
	"fmt"

	"backcheck/internal/core/compliance"
)

// Type is one category of information about the subject
type Type string

const (
	Identity         Type = "IDENTITY"
	Employment       Type = "EMPLOYMENT"
	Education        Type = "EDUCATION"
	Criminal         Type = "CRIMINAL"
	Civil            Type = "CIVIL"
	Financial        Type = "FINANCIAL"
	Licenses         Type = "LICENSES"
	Sanctions        Type = "SANCTIONS"
	Regulatory       Type = "REGULATORY"
	AdverseMedia     Type = "ADVERSE_MEDIA"
	DigitalFootprint Type = "DIGITAL_FOOTPRINT"
	NetworkD2        Type = "NETWORK_D2"
	NetworkD3        Type = "NETWORK_D3"
	Reconciliation   Type = "RECONCILIATION"
)

// Phase is a barrier-separated group of information types
type Phase string

const (
	PhaseFoundation     Phase = "FOUNDATION"
	PhaseRecords        Phase = "RECORDS"
	PhaseIntelligence   Phase = "INTELLIGENCE"
	PhaseNetwork        Phase = "NETWORK"
	PhaseReconciliation Phase = "RECONCILIATION"
)

// PhaseOrder returns the phases in execution order
func PhaseOrder() []Phase {
	return []Phase{PhaseFoundation, PhaseRecords, PhaseIntelligence, PhaseNetwork, PhaseReconciliation}
}

// Spec is one row of the type table
type Spec struct {
	Type         Type
	Phase        Phase
	DependsOn    []Type
	EnhancedOnly bool
	PrimaryCheck compliance.CheckType
	Checks       []compliance.CheckType
}

// table drives sequencing; order matches phase order and is the
// deterministic iteration order everywhere in this package
var table = []Spec{
	{Type: Identity, Phase: PhaseFoundation,
		PrimaryCheck: compliance.CheckIdentity,
		Checks:       []compliance.CheckType{compliance.CheckIdentity}},
	{Type: Employment, Phase: PhaseFoundation, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckEmployment,
		Checks:       []compliance.CheckType{compliance.CheckEmployment}},
	{Type: Education, Phase: PhaseFoundation, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckEducation,
		Checks:       []compliance.CheckType{compliance.CheckEducation}},
	{Type: Criminal, Phase: PhaseRecords, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckCriminalNational,
		Checks: []compliance.CheckType{
			compliance.CheckCriminalNational, compliance.CheckCriminalCounty,
			compliance.CheckCriminalFederal, compliance.CheckSexOffender,
		}},
	{Type: Civil, Phase: PhaseRecords, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckCivilCourt,
		Checks:       []compliance.CheckType{compliance.CheckCivilCourt}},
	{Type: Financial, Phase: PhaseRecords, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckCreditReport,
		Checks:       []compliance.CheckType{compliance.CheckCreditReport, compliance.CheckBankruptcy}},
	{Type: Licenses, Phase: PhaseRecords, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckLicense,
		Checks:       []compliance.CheckType{compliance.CheckLicense}},
	{Type: Sanctions, Phase: PhaseRecords, DependsOn: []Type{Identity},
		PrimaryCheck: compliance.CheckSanctionsOFAC,
		Checks:       []compliance.CheckType{compliance.CheckSanctionsOFAC, compliance.CheckSanctionsGlobal}},
	{Type: Regulatory, Phase: PhaseRecords, DependsOn: []Type{Identity, Employment},
		PrimaryCheck: compliance.CheckRegulatoryFINRA,
		Checks:       []compliance.CheckType{compliance.CheckRegulatoryFINRA}},
	{Type: AdverseMedia, Phase: PhaseIntelligence, DependsOn: []Type{Identity, Employment},
		PrimaryCheck: compliance.CheckAdverseMedia,
		Checks:       []compliance.CheckType{compliance.CheckAdverseMedia, compliance.CheckAdverseMediaDeep}},
	{Type: DigitalFootprint, Phase: PhaseIntelligence, DependsOn: []Type{Identity}, EnhancedOnly: true,
		PrimaryCheck: compliance.CheckDigitalFootprint,
		Checks:       []compliance.CheckType{compliance.CheckDigitalFootprint, compliance.CheckSocialMedia}},
	{Type: NetworkD2, Phase: PhaseNetwork, DependsOn: []Type{Identity, Employment},
		PrimaryCheck: compliance.CheckNetworkAnalysis,
		Checks:       []compliance.CheckType{compliance.CheckNetworkAnalysis}},
	{Type: NetworkD3, Phase: PhaseNetwork, DependsOn: []Type{NetworkD2}, EnhancedOnly: true,
		PrimaryCheck: compliance.CheckNetworkAnalysis,
		Checks:       []compliance.CheckType{compliance.CheckNetworkAnalysis}},
	{Type: Reconciliation, Phase: PhaseReconciliation,
		DependsOn:    []Type{Identity, Employment, Education, Criminal},
		PrimaryCheck: compliance.CheckIdentity,
		Checks:       []compliance.CheckType{compliance.CheckIdentity}},
}

var byType = func() map[Type]Spec {
	m := make(map[Type]Spec, len(table))
	for _, s := range table {
		m[s.Type] = s
	}
	return m
}()

// foundation is the stricter-threshold type set
var foundation = map[Type]bool{Identity: true, Employment: true, Education: true}

// IsFoundation reports whether t gets foundation thresholds and budgets
func IsFoundation(t Type) bool { return foundation[t] }

// SpecOf returns the table row for t
func SpecOf(t Type) (Spec, bool) {
	s, ok := byType[t]
	return s, ok
}

// All returns every type in table order
func All() []Type {
	out := make([]Type, len(table))
	for i, s := range table {
		out[i] = s.Type
	}
	return out
}

// Parse validates a type token
func Parse(s string) (Type, error) {
	t := Type(s)
	if _, ok := byType[t]; !ok {
		return "", fmt.Errorf("infotype: unknown type %q", s)
	}
	return t, nil
}

// SelectForChecks maps a requested check set to the info types that run.
// Identity is always selected as the root dependency; Reconciliation is
// always selected to close out the screening. Enhanced-only types are
// dropped on the standard tier even when their checks were requested
func SelectForChecks(checks []compliance.CheckType, tier compliance.Tier) []Type {
	want := make(map[compliance.CheckType]bool, len(checks))
	for _, c := range checks {
		want[c] = true
	}

	out := make([]Type, 0, len(table))
	for _, s := range table {
		if s.EnhancedOnly && tier != compliance.TierEnhanced {
			continue
		}
		selected := s.Type == Identity || s.Type == Reconciliation
		for _, c := range s.Checks {
			if want[c] {
				selected = true
				break
			}
		}
		if selected {
			out = append(out, s.Type)
		}
	}
	return out
}
