// Package risk turns fused screening facts into findings and a weighted
// risk score with a level and a hiring recommendation
package risk

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"backcheck/internal/core/infotype"
)

// Category buckets findings for scoring
type Category string

// Finding categories
const (
	CategoryCriminal     Category = "criminal"
	CategoryFinancial    Category = "financial"
	CategoryRegulatory   Category = "regulatory"
	CategoryReputation   Category = "reputation"
	CategoryVerification Category = "verification"
	CategoryBehavioral   Category = "behavioral"
	CategoryNetwork      Category = "network"
)

// Severity grades a single finding
type Severity string

// Finding severities
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level grades the overall score
type Level string

// Risk levels
const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Recommendation is the scorer's hiring guidance
type Recommendation string

// Recommendations
const (
	RecommendProceed     Recommendation = "proceed"
	RecommendWithCaution Recommendation = "proceed_with_caution"
	RecommendReview      Recommendation = "review_required"
	RecommendDoNot       Recommendation = "do_not_proceed"
)

// Finding is one scored observation about the subject
type Finding struct {
	ID           string        `json:"id"`
	Category     Category      `json:"category"`
	Severity     Severity      `json:"severity"`
	Title        string        `json:"title"`
	Detail       string        `json:"detail,omitempty"`
	Date         *time.Time    `json:"date,omitempty"`
	Confidence   float64       `json:"confidence"`
	Corroborated bool          `json:"corroborated"`
	Relevance    float64       `json:"relevance"`
	InfoType     infotype.Type `json:"info_type,omitempty"`
	FactIDs      []string      `json:"fact_ids,omitempty"`
	Stale        bool          `json:"stale_data_used,omitempty"`
}

// Score is the scored screening outcome
type Score struct {
	Overall        int                  `json:"overall"`
	Level          Level                `json:"level"`
	Recommendation Recommendation       `json:"recommendation"`
	Categories     map[Category]float64 `json:"categories,omitempty"`
	Findings       []Finding            `json:"findings"`
	Warnings       []string             `json:"warnings,omitempty"`
}

var severityBase = map[Severity]float64{
	SeverityLow:      10,
	SeverityMedium:   25,
	SeverityHigh:     50,
	SeverityCritical: 75,
}

var categoryWeights = map[Category]float64{
	CategoryCriminal:     1.5,
	CategoryRegulatory:   1.3,
	CategoryVerification: 1.2,
	CategoryFinancial:    1.0,
	CategoryBehavioral:   1.0,
	CategoryNetwork:      0.9,
	CategoryReputation:   0.8,
}

// relevanceTable maps a role to per-category relevance multipliers.
// The table is deliberately partial; unresolved lookups fall back to
// 0.5 and surface a warning
var relevanceTable = map[string]map[Category]float64{
	"finance": {
		CategoryCriminal: 1.0, CategoryFinancial: 1.0, CategoryRegulatory: 1.0,
		CategoryVerification: 0.8, CategoryReputation: 0.7, CategoryBehavioral: 0.6,
		CategoryNetwork: 0.8,
	},
	"healthcare": {
		CategoryCriminal: 1.0, CategoryRegulatory: 0.9, CategoryVerification: 0.9,
		CategoryFinancial: 0.5, CategoryReputation: 0.6, CategoryBehavioral: 0.6,
		CategoryNetwork: 0.5,
	},
	"childcare": {
		CategoryCriminal: 1.0, CategoryVerification: 0.9, CategoryBehavioral: 0.8,
		CategoryRegulatory: 0.8, CategoryReputation: 0.7, CategoryNetwork: 0.6,
		CategoryFinancial: 0.4,
	},
	"education": {
		CategoryCriminal: 0.9, CategoryVerification: 0.9, CategoryReputation: 0.7,
		CategoryRegulatory: 0.7, CategoryBehavioral: 0.7, CategoryNetwork: 0.5,
		CategoryFinancial: 0.4,
	},
	"security": {
		CategoryCriminal: 1.0, CategoryVerification: 0.9, CategoryBehavioral: 0.8,
		CategoryNetwork: 0.8, CategoryRegulatory: 0.8, CategoryFinancial: 0.6,
		CategoryReputation: 0.6,
	},
	"executive": {
		CategoryReputation: 1.0, CategoryRegulatory: 1.0, CategoryFinancial: 0.9,
		CategoryNetwork: 0.9, CategoryCriminal: 0.8, CategoryVerification: 0.8,
		CategoryBehavioral: 0.7,
	},
	"engineering": {
		CategoryVerification: 0.8, CategoryCriminal: 0.6, CategoryBehavioral: 0.6,
		CategoryFinancial: 0.5, CategoryRegulatory: 0.5, CategoryReputation: 0.5,
		CategoryNetwork: 0.5,
	},
	"driver": {
		CategoryCriminal: 0.9, CategoryVerification: 0.8, CategoryBehavioral: 0.7,
		CategoryRegulatory: 0.6, CategoryFinancial: 0.4, CategoryReputation: 0.4,
		CategoryNetwork: 0.4,
	},
}

var roleAliases = map[string]string{
	"banking":         "finance",
	"securities":      "finance",
	"accounting":      "finance",
	"law_enforcement": "security",
}

// RelevanceFor resolves the role-category relevance multiplier. The
// second return reports whether the table had an entry; callers treat a
// miss as 0.5 and log a warning
func RelevanceFor(role string, cat Category) (float64, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(role)), " ", "_")
	if alias, ok := roleAliases[key]; ok {
		key = alias
	}
	row, ok := relevanceTable[key]
	if !ok {
		return 0.5, false
	}
	rel, ok := row[cat]
	if !ok {
		return 0.5, false
	}
	return rel, true
}

const defaultRecencyFactor = 0.8

// recencyFactor discounts findings by age. Buckets are inclusive at
// their upper bound; an unknown date lands between the middle buckets
func recencyFactor(date *time.Time, now time.Time) float64 {
	if date == nil || date.IsZero() {
		return defaultRecencyFactor
	}
	age := now.Sub(*date)
	switch {
	case age <= 365*24*time.Hour:
		return 1.0
	case age <= 3*365*24*time.Hour:
		return 0.9
	case age <= 7*365*24*time.Hour:
		return 0.7
	default:
		return 0.5
	}
}

// Scorer computes the weighted risk score
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithNow overrides the clock
func WithNow(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer returns a Scorer
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score folds findings into per-category scores and an overall weighted
// score. Per-category: sum of severity base x recency x confidence x
// corroboration bonus x relevance, clamped to [0, 100]. Overall is the
// weighted average across categories that actually have findings,
// truncated to an int and clamped to [0, 100]
func (s *Scorer) Score(findings []Finding, role string) Score {
	now := s.now().UTC()
	cats := map[Category]float64{}
	scored := make([]Finding, len(findings))
	var warnings []string
	warned := map[string]struct{}{}
	anyCritical := false

	for i, f := range findings {
		rel := f.Relevance
		if rel <= 0 {
			resolved, known := RelevanceFor(role, f.Category)
			if !known {
				key := role + "/" + string(f.Category)
				if _, dup := warned[key]; !dup {
					warned[key] = struct{}{}
					warnings = append(warnings, fmt.Sprintf("no relevance entry for role %q category %q, defaulting to 0.5", role, f.Category))
				}
			}
			rel = resolved
			f.Relevance = rel
		}

		bonus := 1.0
		if f.Corroborated {
			bonus = 1.2
		}
		cats[f.Category] += severityBase[f.Severity] * recencyFactor(f.Date, now) * f.Confidence * bonus * rel

		if f.Severity == SeverityCritical {
			anyCritical = true
		}
		scored[i] = f
	}

	var weighted, weightSum float64
	for cat := range cats {
		cats[cat] = clamp100(cats[cat])
		weighted += categoryWeights[cat] * cats[cat]
		weightSum += categoryWeights[cat]
	}

	overall := 0
	if weightSum > 0 {
		overall = int(weighted / weightSum)
	}
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	level := levelOf(overall)
	rec := recommend(level, anyCritical)

	if len(cats) == 0 {
		cats = nil
	}
	return Score{
		Overall:        overall,
		Level:          level,
		Recommendation: rec,
		Categories:     cats,
		Findings:       scored,
		Warnings:       warnings,
	}
}

func levelOf(overall int) Level {
	switch {
	case overall < 26:
		return LevelLow
	case overall <= 50:
		return LevelModerate
	case overall <= 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

func recommend(level Level, anyCritical bool) Recommendation {
	switch {
	case anyCritical || level == LevelCritical:
		return RecommendDoNot
	case level == LevelHigh:
		return RecommendReview
	case level == LevelModerate:
		return RecommendWithCaution
	default:
		return RecommendProceed
	}
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// SortFindings orders findings for stable report output: severity
// descending, then category, then title
func SortFindings(findings []Finding) {
	rank := map[Severity]int{SeverityCritical: 0, SeverityHigh: 1, SeverityMedium: 2, SeverityLow: 3}
	sort.SliceStable(findings, func(i, j int) bool {
		if rank[findings[i].Severity] != rank[findings[j].Severity] {
			return rank[findings[i].Severity] < rank[findings[j].Severity]
		}
		if findings[i].Category != findings[j].Category {
			return findings[i].Category < findings[j].Category
		}
		return findings[i].Title < findings[j].Title
	})
}
