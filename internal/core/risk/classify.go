package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"backcheck/internal/core/assess"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
)

// factClass maps an adverse fact type onto a category and base severity
type factClass struct {
	category Category
	severity Severity
}

var factClasses = map[string]factClass{
	"criminal_record":   {CategoryCriminal, SeverityMedium},
	"civil_case":        {CategoryFinancial, SeverityLow},
	"sanctions_hit":     {CategoryRegulatory, SeverityCritical},
	"regulatory_action": {CategoryRegulatory, SeverityHigh},
	"bankruptcy":        {CategoryFinancial, SeverityMedium},
	"lien":              {CategoryFinancial, SeverityLow},
	"judgment":          {CategoryFinancial, SeverityMedium},
	"data_breach":       {CategoryBehavioral, SeverityLow},
}

var severityNames = map[string]Severity{
	"low":      SeverityLow,
	"medium":   SeverityMedium,
	"high":     SeverityHigh,
	"critical": SeverityCritical,
}

// Classifier maps extracted facts and detected inconsistencies to findings
type Classifier struct{}

// NewClassifier returns a Classifier
func NewClassifier() *Classifier { return &Classifier{} }

// Classify walks the fused facts and inconsistencies and produces one
// finding per distinct adverse observation. Facts carrying the same type
// and canonical value are folded into a single corroborated finding.
// Informational facts (names, addresses, employers, clears) produce no
// findings
func (c *Classifier) Classify(facts []assess.Fact, incs []assess.Inconsistency) []Finding {
	groups := map[string][]assess.Fact{}
	var order []string
	for _, f := range facts {
		key := f.Type + "\x1f" + subject.Canon(f.Value)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}

	var out []Finding
	for _, key := range order {
		group := groups[key]
		if finding, ok := c.classifyGroup(group); ok {
			out = append(out, finding)
		}
	}

	for _, inc := range incs {
		out = append(out, inconsistencyFinding(inc))
	}
	return out
}

func (c *Classifier) classifyGroup(group []assess.Fact) (Finding, bool) {
	lead := group[0]

	var category Category
	var severity Severity
	var title string

	switch lead.Type {
	case "license":
		status := strings.ToLower(lead.Attrs["status"])
		switch status {
		case "revoked", "suspended":
			category, severity = CategoryRegulatory, SeverityHigh
			title = fmt.Sprintf("license %s: %s", status, lead.Value)
		case "expired", "lapsed", "inactive":
			category, severity = CategoryVerification, SeverityLow
			title = fmt.Sprintf("license %s: %s", status, lead.Value)
		default:
			return Finding{}, false
		}
	case "adverse_media":
		sentiment := strings.ToLower(lead.Attrs["sentiment"])
		switch sentiment {
		case "positive", "neutral":
			return Finding{}, false
		case "negative":
			category, severity = CategoryReputation, SeverityMedium
		default:
			category, severity = CategoryReputation, SeverityLow
		}
		title = "adverse media coverage: " + lead.Value
	case "connection_person", "connection_org":
		flag := lead.Attrs["flag"]
		if flag == "" {
			return Finding{}, false
		}
		category = CategoryNetwork
		severity = SeverityMedium
		if strings.Contains(strings.ToLower(flag), "sanction") {
			severity = SeverityHigh
		}
		title = fmt.Sprintf("flagged connection %s (%s)", lead.Value, flag)
	default:
		class, ok := factClasses[lead.Type]
		if !ok {
			return Finding{}, false
		}
		category, severity = class.category, class.severity
		if override, ok := severityNames[strings.ToLower(lead.Attrs["severity"])]; ok {
			severity = override
		}
		title = strings.ReplaceAll(lead.Type, "_", " ") + ": " + lead.Value
	}

	sources := map[string]struct{}{}
	confidence := 0.0
	stale := false
	factIDs := make([]string, 0, len(group))
	for _, f := range group {
		sources[f.Source] = struct{}{}
		if f.Confidence > confidence {
			confidence = f.Confidence
		}
		stale = stale || f.Stale
		factIDs = append(factIDs, f.ID)
	}

	return Finding{
		ID:           uuid.NewString(),
		Category:     category,
		Severity:     severity,
		Title:        title,
		Detail:       detailOf(lead),
		Date:         parseFindingDate(lead.Attrs["date"]),
		Confidence:   confidence,
		Corroborated: len(sources) >= 2,
		InfoType:     lead.InfoType,
		FactIDs:      factIDs,
		Stale:        stale,
	}, true
}

var incSeverities = map[string]Severity{
	assess.SeverityMinor:    SeverityLow,
	assess.SeverityModerate: SeverityMedium,
	assess.SeverityMajor:    SeverityHigh,
}

const inconsistencyConfidence = 0.8

func inconsistencyFinding(inc assess.Inconsistency) Finding {
	severity, ok := incSeverities[inc.Severity]
	if !ok {
		severity = SeverityLow
	}
	return Finding{
		ID:         uuid.NewString(),
		Category:   CategoryVerification,
		Severity:   severity,
		Title:      fmt.Sprintf("conflicting %s across sources", strings.ReplaceAll(inc.FactType, "_", " ")),
		Detail:     fmt.Sprintf("%s (%s) vs %s (%s)", inc.ValueA, inc.SourceA, inc.ValueB, inc.SourceB),
		Confidence: inconsistencyConfidence,
	}
}

// WeakFinding marks an info type whose search produced nothing usable.
// It annotates the screening without failing it
func WeakFinding(t infotype.Type) Finding {
	return Finding{
		ID:         uuid.NewString(),
		Category:   CategoryVerification,
		Severity:   SeverityLow,
		Title:      fmt.Sprintf("no reliable data for %s", strings.ToLower(string(t))),
		Confidence: 0.3,
		InfoType:   t,
	}
}

var findingDateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "2006-01", "2006"}

func parseFindingDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range findingDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	return nil
}

func detailOf(f assess.Fact) string {
	if len(f.Attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f.Attrs))
	for _, k := range []string{"jurisdiction", "disposition", "court", "regulator", "authority", "outlet", "relation", "strength", "flag", "status", "date"} {
		if v, ok := f.Attrs[k]; ok && v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}
