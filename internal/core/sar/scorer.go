package sar

import "backcheck/internal/core/infotype"

// FactView is the scorer's minimal view of one extracted fact
type FactView struct {
	Type       string
	Value      string
	Source     string
	Confidence float64
}

// expectedFacts is how many facts a complete picture of each type holds
var expectedFacts = map[infotype.Type]int{
	infotype.Identity:         5,
	infotype.Employment:       3,
	infotype.Education:        3,
	infotype.Licenses:         2,
	infotype.Criminal:         1,
	infotype.Financial:        2,
	infotype.Sanctions:        1,
	infotype.AdverseMedia:     1,
	infotype.DigitalFootprint: 2,
	infotype.NetworkD2:        2,
	infotype.NetworkD3:        3,
	infotype.Reconciliation:   5,
}

// ExpectedFacts returns the completeness denominator for t (min 1)
func ExpectedFacts(t infotype.Type) int {
	if n, ok := expectedFacts[t]; ok && n > 0 {
		return n
	}
	return 1
}

// Factors are the five confidence inputs, each in [0,1]
type Factors struct {
	Completeness    float64 `json:"completeness"`
	Corroboration   float64 `json:"corroboration"`
	QuerySuccess    float64 `json:"query_success"`
	FactConfidence  float64 `json:"fact_confidence"`
	SourceDiversity float64 `json:"source_diversity"`
}

// Scorer turns factors into one confidence value via a weighted sum
type Scorer struct {
	wCompleteness    float64
	wCorroboration   float64
	wQuerySuccess    float64
	wFactConfidence  float64
	wSourceDiversity float64
}

// NewScorer returns the production weighting (weights sum to 1.0)
func NewScorer() *Scorer {
	return &Scorer{
		wCompleteness:    0.30,
		wCorroboration:   0.25,
		wQuerySuccess:    0.20,
		wFactConfidence:  0.15,
		wSourceDiversity: 0.10,
	}
}

// Factors derives the five confidence inputs from an iteration's facts
// and query counts
func (s *Scorer) Factors(t infotype.Type, facts []FactView, queriesTotal, queriesSucceeded int) Factors {
	var f Factors

	expected := ExpectedFacts(t)
	f.Completeness = clamp01(float64(len(facts)) / float64(expected))

	// corroboration: fraction of fact types reported by >= 2 distinct sources
	sourcesByType := make(map[string]map[string]bool)
	allSources := make(map[string]bool)
	var confSum float64
	for _, fv := range facts {
		byType, ok := sourcesByType[fv.Type]
		if !ok {
			byType = make(map[string]bool)
			sourcesByType[fv.Type] = byType
		}
		byType[fv.Source] = true
		allSources[fv.Source] = true
		confSum += fv.Confidence
	}
	if len(sourcesByType) > 0 {
		corroborated := 0
		for _, srcs := range sourcesByType {
			if len(srcs) >= 2 {
				corroborated++
			}
		}
		f.Corroboration = float64(corroborated) / float64(len(sourcesByType))
	}

	if queriesTotal > 0 {
		f.QuerySuccess = clamp01(float64(queriesSucceeded) / float64(queriesTotal))
	}
	if len(facts) > 0 {
		f.FactConfidence = clamp01(confSum / float64(len(facts)))
	}
	f.SourceDiversity = clamp01(float64(len(allSources)) / 3.0)

	return f
}

// Score collapses factors into one confidence in [0,1]
func (s *Scorer) Score(f Factors) float64 {
	sum := s.wCompleteness*clamp01(f.Completeness) +
		s.wCorroboration*clamp01(f.Corroboration) +
		s.wQuerySuccess*clamp01(f.QuerySuccess) +
		s.wFactConfidence*clamp01(f.FactConfidence) +
		s.wSourceDiversity*clamp01(f.SourceDiversity)
	return clamp01(sum)
}

// ScoreFacts is Factors followed by Score
func (s *Scorer) ScoreFacts(t infotype.Type, facts []FactView, queriesTotal, queriesSucceeded int) (Factors, float64) {
	f := s.Factors(t, facts, queriesTotal, queriesSucceeded)
	return f, s.Score(f)
}

// Aggregate averages per-type confidences into one screening-level value,
// weighting foundation types 1.5x
func Aggregate(confidences map[infotype.Type]float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	var sum, weight float64
	for t, c := range confidences {
		w := 1.0
		if infotype.IsFoundation(t) {
			w = 1.5
		}
		sum += clamp01(c) * w
		weight += w
	}
	return clamp01(sum / weight)
}
