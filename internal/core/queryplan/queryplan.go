// Package queryplan builds the search queries a SAR iteration executes:
// initial/enriched plans from the subject plus accumulated knowledge, and
// targeted gap-fill plans during refinement
package queryplan

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"

	"backcheck/internal/core/assess"
	"backcheck/internal/core/compliance"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
)

// Query kinds
const (
	KindInitial  = "initial"
	KindEnriched = "enriched"
	KindGapFill  = "gap_fill"
)

// Query is one provider-executable search unit
type Query struct {
	ID        string               `json:"id"`
	InfoType  infotype.Type        `json:"info_type"`
	Kind      string               `json:"kind"`
	Provider  string               `json:"provider"`
	CheckType compliance.CheckType `json:"check_type"`
	Params    map[string]string    `json:"params,omitempty"`
	Iteration int                  `json:"iteration"`
	Priority  int                  `json:"priority"`
	TargetGap string               `json:"target_gap,omitempty"`
}

// Signature identifies a query shape for deduplication:
// hash of (provider, check, targeted gap, sorted params)
func (q Query) Signature() string {
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(q.Provider)
	b.WriteByte('|')
	b.WriteString(string(q.CheckType))
	b.WriteByte('|')
	b.WriteString(q.TargetGap)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Params[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ProviderInfo is the planner's view of one registered provider
type ProviderInfo struct {
	ID     string
	Checks []compliance.CheckType
}

// Supports reports whether the provider executes check
func (p ProviderInfo) Supports(check compliance.CheckType) bool {
	for _, c := range p.Checks {
		if c == check {
			return true
		}
	}
	return false
}

// Planner builds the per-iteration query set for one info type
type Planner struct{}

// NewPlanner returns a Planner
func NewPlanner() *Planner { return &Planner{} }

// Plan crosses the info type's check set (tier-filtered) with the
// providers that support each check, parameterized from the subject and
// the knowledge base. Iteration 1 plans are initial; later iterations
// are enriched with everything the KB has learned since
func (p *Planner) Plan(t infotype.Type, sub subject.Subject, kb assess.View, tier compliance.Tier, providers []ProviderInfo, iteration int) []Query {
	spec, ok := infotype.SpecOf(t)
	if !ok {
		return nil
	}

	kind := KindInitial
	if iteration > 1 {
		kind = KindEnriched
	}

	params := baseParams(t, sub, kb)

	var out []Query
	for _, check := range spec.Checks {
		if compliance.EnhancedOnly(check) && tier != compliance.TierEnhanced {
			continue
		}
		for _, prov := range providers {
			if !prov.Supports(check) {
				continue
			}
			out = append(out, Query{
				ID:        uuid.NewString(),
				InfoType:  t,
				Kind:      kind,
				Provider:  prov.ID,
				CheckType: check,
				Params:    cloneParams(params),
				Iteration: iteration,
				Priority:  1,
			})
		}
	}
	return out
}

// baseParams assembles the identifier params the info type cares about
func baseParams(t infotype.Type, sub subject.Subject, kb assess.View) map[string]string {
	params := map[string]string{}

	names := kb.Names
	if len(names) == 0 {
		names = sub.NameVariants()
	}
	if len(names) > 0 {
		params["name"] = names[0]
		if len(names) > 1 {
			params["name_variants"] = strings.Join(names[1:], ",")
		}
	}

	dob := kb.DOB
	if dob == "" {
		dob = sub.DOB
	}
	if dob != "" {
		params["dob"] = dob
	}

	idTail := kb.NationalIDLast4
	if idTail == "" {
		idTail = sub.NationalIDLast4
	}
	if idTail != "" {
		params["national_id_last4"] = idTail
	}

	switch t {
	case infotype.Criminal, infotype.Civil:
		if len(kb.States) > 0 {
			params["states"] = strings.Join(kb.States, ",")
		}
		if len(kb.Counties) > 0 {
			params["counties"] = strings.Join(kb.Counties, ",")
		}
	case infotype.Employment, infotype.Regulatory, infotype.NetworkD2, infotype.NetworkD3:
		if len(kb.Employers) > 0 {
			names := make([]string, len(kb.Employers))
			for i, e := range kb.Employers {
				names[i] = e.Name
			}
			params["employers"] = strings.Join(names, ",")
		}
	case infotype.Education:
		if len(kb.Schools) > 0 {
			names := make([]string, len(kb.Schools))
			for i, s := range kb.Schools {
				names[i] = s.Name
			}
			params["schools"] = strings.Join(names, ",")
		}
	case infotype.Licenses:
		if len(kb.States) > 0 {
			params["states"] = strings.Join(kb.States, ",")
		}
	}

	return params
}

func cloneParams(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
