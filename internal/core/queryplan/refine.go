package queryplan

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"backcheck/internal/core/assess"
	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
)

// Refinement caps. A single gap never spawns more than MaxPerGap queries
// and one refinement round never exceeds MaxTotal
const (
	DefaultMaxPerGap = 3
	DefaultMaxTotal  = 15
)

// gapPlan maps a detected gap onto the checks that can close it
type gapPlan struct {
	checks []compliance.CheckType
	focus  string
	boost  int
}

var gapPlans = map[string]gapPlan{
	"no_identity_found":   {[]compliance.CheckType{compliance.CheckIdentity}, "broad_identity", 3},
	"missing_dob":         {[]compliance.CheckType{compliance.CheckIdentity}, "date_of_birth", 2},
	"missing_address":     {[]compliance.CheckType{compliance.CheckIdentity}, "address_history", 2},
	"missing_national_id": {[]compliance.CheckType{compliance.CheckIdentity}, "national_id", 1},

	"no_employment_found": {[]compliance.CheckType{compliance.CheckEmployment}, "employment_history", 3},
	"missing_end_date":    {[]compliance.CheckType{compliance.CheckEmployment}, "employment_dates", 1},
	"missing_title":       {[]compliance.CheckType{compliance.CheckEmployment}, "position_title", 1},

	"no_education_found": {[]compliance.CheckType{compliance.CheckEducation}, "education_history", 2},
	"missing_degree":     {[]compliance.CheckType{compliance.CheckEducation}, "degree_detail", 1},

	"no_criminal_result":  {[]compliance.CheckType{compliance.CheckCriminalNational, compliance.CheckCriminalCounty}, "criminal_records", 3},
	"missing_disposition": {[]compliance.CheckType{compliance.CheckCriminalCounty}, "case_disposition", 2},

	"no_civil_result":      {[]compliance.CheckType{compliance.CheckCivilCourt}, "civil_records", 2},
	"no_financial_result":  {[]compliance.CheckType{compliance.CheckCreditReport, compliance.CheckBankruptcy}, "financial_records", 2},
	"no_license_found":     {[]compliance.CheckType{compliance.CheckLicense}, "license_registries", 2},
	"no_sanctions_result":  {[]compliance.CheckType{compliance.CheckSanctionsOFAC, compliance.CheckSanctionsGlobal}, "sanctions_lists", 3},
	"no_regulatory_result": {[]compliance.CheckType{compliance.CheckRegulatoryFINRA}, "regulatory_actions", 2},

	"no_media_found":     {[]compliance.CheckType{compliance.CheckAdverseMedia}, "media_coverage", 1},
	"no_footprint_found": {[]compliance.CheckType{compliance.CheckDigitalFootprint, compliance.CheckSocialMedia}, "online_presence", 1},
	"no_network_found":   {[]compliance.CheckType{compliance.CheckNetworkAnalysis}, "network_discovery", 1},

	"unresolved_conflicts":     {[]compliance.CheckType{compliance.CheckIdentity}, "conflict_resolution", 3},
	"no_reconciliation_result": {[]compliance.CheckType{compliance.CheckIdentity}, "cross_verification", 2},
}

// Refiner turns assessment gaps into targeted gap-fill queries
type Refiner struct {
	MaxPerGap int
	MaxTotal  int
}

// NewRefiner returns a Refiner with the default caps
func NewRefiner() *Refiner {
	return &Refiner{MaxPerGap: DefaultMaxPerGap, MaxTotal: DefaultMaxTotal}
}

// Refine plans gap-fill queries for the gaps in as, most urgent first.
// Absence gaps (no_*) outrank attribute gaps (missing_*), which outrank
// everything else; ties break on the gap's own priority. Queries that
// duplicate an already-planned shape are dropped, and the per-gap and
// per-round caps bound the output
func (r *Refiner) Refine(as assess.Assessment, sub subject.Subject, kb assess.View, tier compliance.Tier, providers []ProviderInfo, iteration int) []Query {
	gaps := make([]assess.Gap, len(as.Gaps))
	copy(gaps, as.Gaps)
	sort.SliceStable(gaps, func(i, j int) bool {
		ci, cj := gapClass(gaps[i].Type), gapClass(gaps[j].Type)
		if ci != cj {
			return ci < cj
		}
		return gaps[i].Priority < gaps[j].Priority
	})

	seen := map[string]struct{}{}
	var out []Query
	for _, gap := range gaps {
		if len(out) >= r.MaxTotal {
			break
		}
		plan, ok := gapPlans[gap.Type]
		if !ok {
			continue
		}

		perGap := 0
		params := baseParams(as.InfoType, sub, kb)
		params["focus"] = plan.focus

		for _, check := range plan.checks {
			if perGap >= r.MaxPerGap || len(out) >= r.MaxTotal {
				break
			}
			if compliance.EnhancedOnly(check) && tier != compliance.TierEnhanced {
				continue
			}
			for _, prov := range providers {
				if perGap >= r.MaxPerGap || len(out) >= r.MaxTotal {
					break
				}
				if !prov.Supports(check) {
					continue
				}
				q := Query{
					ID:        uuid.NewString(),
					InfoType:  as.InfoType,
					Kind:      KindGapFill,
					Provider:  prov.ID,
					CheckType: check,
					Params:    cloneParams(params),
					Iteration: iteration,
					Priority:  1 + plan.boost,
					TargetGap: gap.Type,
				}
				sig := q.Signature()
				if _, dup := seen[sig]; dup {
					continue
				}
				seen[sig] = struct{}{}
				out = append(out, q)
				perGap++
			}
		}
	}
	return out
}

// gapClass buckets gap types for ordering: absence, then attribute, then rest
func gapClass(gapType string) int {
	switch {
	case strings.HasPrefix(gapType, "no_"):
		return 0
	case strings.HasPrefix(gapType, "missing_"):
		return 1
	default:
		return 2
	}
}
