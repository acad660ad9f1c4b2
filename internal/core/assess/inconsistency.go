package assess

import (
	"math"
	"time"

	"backcheck/internal/core/subject"
)

// detectInconsistencies pairs up same-type facts with unequal canonical
// values from different sources. Each new pair is recorded on the KB
// (duplicates across iterations are dropped there) and returned
func (a *Assessor) detectInconsistencies(facts []Fact, kb *KnowledgeBase) []Inconsistency {
	groups := make(map[string][]Fact)
	for _, f := range facts {
		groups[f.Type] = append(groups[f.Type], f)
	}

	var out []Inconsistency
	for factType, group := range groups {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				fa, fb := group[i], group[j]
				if fa.Source == fb.Source {
					continue
				}
				if subject.Canon(fa.Value) == subject.Canon(fb.Value) {
					continue
				}

				sev, kind := classifyConflict(fa.Value, fb.Value)
				ic := Inconsistency{
					FactType: factType,
					ValueA:   fa.Value,
					ValueB:   fb.Value,
					SourceA:  fa.Source,
					SourceB:  fb.Source,
					Severity: sev,
					Kind:     kind,
				}
				ic.DeceptionScore = a.deception(ic)
				if kb.AddInconsistency(ic) {
					out = append(out, ic)
				}
			}
		}
	}
	return out
}

// classifyConflict applies the severity heuristic: values that both parse
// as dates more than a year apart are major; loosely-equal strings are
// spelling drift; everything else is a minor value conflict
func classifyConflict(va, vb string) (severity, kind string) {
	da, okA := parseDate(va)
	db, okB := parseDate(vb)
	if okA && okB {
		if math.Abs(da.Sub(db).Hours()) > 365*24 {
			return SeverityMajor, KindDateConflict
		}
		return SeverityMinor, KindDateConflict
	}

	if looseEqual(va, vb) {
		return SeverityMinor, KindSpelling
	}
	return SeverityMinor, KindValueConflict
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "2006-01", "2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// looseEqual compares canonical forms with everything but letters and
// digits stripped, so "O'Brien" and "obrien" count as spelling variants
func looseEqual(a, b string) bool {
	return lettersOnly(subject.Canon(a)) == lettersOnly(subject.Canon(b))
}

func lettersOnly(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	return string(out)
}
