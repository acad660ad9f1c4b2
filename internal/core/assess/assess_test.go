package assess

import (
	"testing"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
)

func fixedAssessor() *Assessor {
	return New(WithNow(func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func identityResult(provider string, data map[string]any) QueryResult {
	return QueryResult{
		QueryID:   "q-" + provider,
		Provider:  provider,
		CheckType: compliance.CheckIdentity,
		Success:   true,
		Data:      data,
	}
}

func TestAssess_IdentityExtractionAndEnrichment(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})
	seen := NewFactSet()

	results := []QueryResult{
		identityResult("prov-a", map[string]any{
			"full_name":     "Jane Doe",
			"name_variants": []any{"Jane M Doe"},
			"date_of_birth": "1990-05-01",
			"ssn_last4":     "1234",
			"addresses": []any{
				map[string]any{"line1": "1 Main St", "city": "Austin", "state": "TX", "county": "Travis"},
			},
			"phone": "+1-512-555-0100",
		}),
	}

	got := a.Assess(infotype.Identity, results, 1, kb, seen)

	if got.QueriesExecuted != 1 || got.QueriesSucceeded != 1 {
		t.Fatalf("query counts = %d/%d", got.QueriesSucceeded, got.QueriesExecuted)
	}
	if len(got.Facts) != 6 {
		t.Fatalf("facts = %d (%v), want 6", len(got.Facts), got.Facts)
	}
	if got.NewFacts != 6 {
		t.Fatalf("new facts = %d, want 6", got.NewFacts)
	}

	v := kb.View()
	if v.DOB != "1990-05-01" {
		t.Fatalf("kb dob = %q", v.DOB)
	}
	if v.NationalIDLast4 != "1234" {
		t.Fatalf("kb id tail = %q", v.NationalIDLast4)
	}
	if len(v.States) != 1 || v.States[0] != "tx" {
		t.Fatalf("kb states = %v", v.States)
	}
	if len(v.Counties) != 1 || v.Counties[0] != "travis" {
		t.Fatalf("kb counties = %v", v.Counties)
	}
	if got.Confidence < 0 || got.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", got.Confidence)
	}
}

func TestAssess_NoveltyAcrossIterations(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})
	seen := NewFactSet()

	payload := map[string]any{"full_name": "Jane Doe", "date_of_birth": "1990-05-01"}

	first := a.Assess(infotype.Identity, []QueryResult{identityResult("prov-a", payload)}, 1, kb, seen)
	if first.NewFacts != 2 {
		t.Fatalf("iteration 1 new facts = %d, want 2", first.NewFacts)
	}

	// Same payload, same provider: nothing new
	second := a.Assess(infotype.Identity, []QueryResult{identityResult("prov-a", payload)}, 2, kb, seen)
	if second.NewFacts != 0 {
		t.Fatalf("iteration 2 new facts = %d, want 0", second.NewFacts)
	}

	// Same payload from a second provider: new tuples (and corroboration)
	third := a.Assess(infotype.Identity, []QueryResult{identityResult("prov-b", payload)}, 3, kb, seen)
	if third.NewFacts != 2 {
		t.Fatalf("iteration 3 new facts = %d, want 2", third.NewFacts)
	}
	if third.Factors.Corroboration != 1.0 {
		t.Fatalf("corroboration = %v, want 1.0 (both fact types dual-sourced)", third.Factors.Corroboration)
	}
	if third.Confidence <= first.Confidence {
		t.Fatalf("corroborated confidence %v should exceed single-source %v", third.Confidence, first.Confidence)
	}
}

func TestAssess_FailedQueriesCountAgainstSuccessRate(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})
	seen := NewFactSet()

	results := []QueryResult{
		identityResult("prov-a", map[string]any{"full_name": "Jane Doe"}),
		{QueryID: "q2", Provider: "prov-b", CheckType: compliance.CheckIdentity, Success: false},
	}

	got := a.Assess(infotype.Identity, results, 1, kb, seen)
	if got.QueriesExecuted != 2 || got.QueriesSucceeded != 1 {
		t.Fatalf("query counts = %d/%d, want 1/2", got.QueriesSucceeded, got.QueriesExecuted)
	}
	if got.Factors.QuerySuccess != 0.5 {
		t.Fatalf("query success = %v, want 0.5", got.Factors.QuerySuccess)
	}
}

func TestAssess_GapsIdentity(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})
	seen := NewFactSet()

	// Name only: dob, address, id tail all missing
	got := a.Assess(infotype.Identity, []QueryResult{
		identityResult("prov-a", map[string]any{"full_name": "Jane Doe"}),
	}, 1, kb, seen)

	want := map[string]int{"missing_dob": 2, "missing_address": 2, "missing_national_id": 3}
	if len(got.Gaps) != len(want) {
		t.Fatalf("gaps = %v, want %v", got.Gaps, want)
	}
	for _, g := range got.Gaps {
		if p, ok := want[g.Type]; !ok || g.Priority != p {
			t.Fatalf("unexpected gap %+v", g)
		}
	}

	// Zero results: the no_* gap wins alone
	empty := a.Assess(infotype.Identity, nil, 2, NewKnowledgeBase(subject.Subject{FullName: "X Y"}), NewFactSet())
	if len(empty.Gaps) != 1 || empty.Gaps[0].Type != "no_identity_found" || empty.Gaps[0].Priority != 1 {
		t.Fatalf("gaps = %v, want [no_identity_found p1]", empty.Gaps)
	}
}

func TestAssess_EmploymentGapsAndEntities(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})
	seen := NewFactSet()

	got := a.Assess(infotype.Employment, []QueryResult{{
		QueryID: "q1", Provider: "prov-a", CheckType: compliance.CheckEmployment, Success: true,
		Data: map[string]any{
			"employers": []any{
				map[string]any{"name": "Acme Corp", "title": "Engineer", "start_date": "2019-01-01", "end_date": "2022-01-01"},
				map[string]any{"name": "Globex", "start_date": "2022-02-01"},
			},
		},
	}}, 1, kb, seen)

	if len(got.Facts) != 2 {
		t.Fatalf("facts = %v, want 2 employers", got.Facts)
	}

	gapTypes := map[string]bool{}
	for _, g := range got.Gaps {
		gapTypes[g.Type] = true
	}
	if !gapTypes["missing_end_date"] || !gapTypes["missing_title"] {
		t.Fatalf("gaps = %v, want missing_end_date and missing_title for Globex", got.Gaps)
	}

	if len(got.Entities) != 2 {
		t.Fatalf("entities = %v, want 2 organizations", got.Entities)
	}
	for _, e := range got.Entities {
		if e.Kind != EntityOrganization || e.Relation != "employer" {
			t.Fatalf("entity = %+v", e)
		}
	}

	v := kb.View()
	if len(v.Employers) != 2 || len(v.Orgs) != 2 {
		t.Fatalf("kb employers = %v, orgs = %v", v.Employers, v.Orgs)
	}
}

func TestAssess_CriminalClearAndRecords(t *testing.T) {
	a := fixedAssessor()

	clear := a.Assess(infotype.Criminal, []QueryResult{{
		QueryID: "q1", Provider: "prov-a", CheckType: compliance.CheckCriminalNational, Success: true,
		Data: map[string]any{"clear": true},
	}}, 1, NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"}), NewFactSet())

	if len(clear.Facts) != 1 || clear.Facts[0].Type != "criminal_clear" {
		t.Fatalf("facts = %v, want [criminal_clear]", clear.Facts)
	}
	for _, g := range clear.Gaps {
		if g.Type == "no_criminal_result" {
			t.Fatalf("clear result should not leave a no_criminal_result gap")
		}
	}

	records := a.Assess(infotype.Criminal, []QueryResult{{
		QueryID: "q2", Provider: "prov-b", CheckType: compliance.CheckCriminalCounty, Success: true,
		Data: map[string]any{
			"records": []any{
				map[string]any{"offense": "petty theft", "date": "2016-03-01", "jurisdiction": "Travis County"},
			},
		},
	}}, 1, NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"}), NewFactSet())

	if len(records.Facts) != 1 || records.Facts[0].Type != "criminal_record" {
		t.Fatalf("facts = %v, want [criminal_record]", records.Facts)
	}
	if records.Facts[0].Attrs["jurisdiction"] != "Travis County" {
		t.Fatalf("attrs = %v", records.Facts[0].Attrs)
	}
	// record without disposition leaves a missing_disposition gap
	found := false
	for _, g := range records.Gaps {
		if g.Type == "missing_disposition" {
			found = true
		}
	}
	if !found {
		t.Fatalf("gaps = %v, want missing_disposition", records.Gaps)
	}
}

func TestAssess_InconsistencyDetection(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})
	seen := NewFactSet()

	results := []QueryResult{
		identityResult("prov-a", map[string]any{"date_of_birth": "1990-05-01"}),
		identityResult("prov-b", map[string]any{"date_of_birth": "1985-01-01"}),
	}
	got := a.Assess(infotype.Identity, results, 1, kb, seen)

	if len(got.Inconsistencies) != 1 {
		t.Fatalf("inconsistencies = %v, want 1", got.Inconsistencies)
	}
	ic := got.Inconsistencies[0]
	if ic.Severity != SeverityMajor || ic.Kind != KindDateConflict {
		t.Fatalf("dob conflict classified %s/%s, want major/date_conflict", ic.Severity, ic.Kind)
	}
	if ic.DeceptionScore != 0.8 {
		t.Fatalf("deception score = %v, want 0.8", ic.DeceptionScore)
	}

	// Re-assessing must not duplicate the pair
	again := a.Assess(infotype.Identity, nil, 2, kb, seen)
	if len(again.Inconsistencies) != 0 {
		t.Fatalf("duplicate inconsistency reported: %v", again.Inconsistencies)
	}
	if got := len(kb.Inconsistencies()); got != 1 {
		t.Fatalf("kb inconsistencies = %d, want 1", got)
	}

	// KB keeps the first dob; the conflict never overwrites
	if v := kb.View(); v.DOB != "1990-05-01" {
		t.Fatalf("kb dob = %q, conflicting write must not win", v.DOB)
	}
}

func TestAssess_SpellingVariantIsMinor(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane O'Brien"})
	seen := NewFactSet()

	results := []QueryResult{
		identityResult("prov-a", map[string]any{"full_name": "Jane O'Brien"}),
		identityResult("prov-b", map[string]any{"full_name": "Jane OBrien"}),
	}
	got := a.Assess(infotype.Identity, results, 1, kb, seen)

	if len(got.Inconsistencies) != 1 {
		t.Fatalf("inconsistencies = %v, want 1", got.Inconsistencies)
	}
	ic := got.Inconsistencies[0]
	if ic.Severity != SeverityMinor || ic.Kind != KindSpelling {
		t.Fatalf("classified %s/%s, want minor/spelling", ic.Severity, ic.Kind)
	}
	// spelling drift deception: 0.2 * 0.3
	if ic.DeceptionScore < 0.059 || ic.DeceptionScore > 0.061 {
		t.Fatalf("deception score = %v, want ~0.06", ic.DeceptionScore)
	}
}

func TestAssess_CustomDeceptionScorer(t *testing.T) {
	a := New(WithDeceptionScorer(func(Inconsistency) float64 { return 0.99 }))
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})

	results := []QueryResult{
		identityResult("prov-a", map[string]any{"date_of_birth": "1990-05-01"}),
		identityResult("prov-b", map[string]any{"date_of_birth": "1991-07-01"}),
	}
	got := a.Assess(infotype.Identity, results, 1, kb, NewFactSet())
	if len(got.Inconsistencies) != 1 || got.Inconsistencies[0].DeceptionScore != 0.99 {
		t.Fatalf("custom scorer not applied: %v", got.Inconsistencies)
	}
}

func TestAssess_StaleDataMarksAssessmentAndFacts(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})

	r := identityResult("prov-a", map[string]any{"full_name": "Jane Doe"})
	r.Stale = true

	got := a.Assess(infotype.Identity, []QueryResult{r}, 1, kb, NewFactSet())
	if !got.StaleDataUsed {
		t.Fatalf("stale_data_used must be set")
	}
	if len(got.Facts) != 1 || !got.Facts[0].Stale {
		t.Fatalf("fact stale flag not carried: %v", got.Facts)
	}
}

func TestAssess_NetworkConnections(t *testing.T) {
	a := fixedAssessor()
	kb := NewKnowledgeBase(subject.Subject{FullName: "Jane Doe"})

	got := a.Assess(infotype.NetworkD2, []QueryResult{{
		QueryID: "q1", Provider: "prov-g", CheckType: compliance.CheckNetworkAnalysis, Success: true,
		Data: map[string]any{
			"connections": []any{
				map[string]any{"name": "John Smith", "kind": "person", "relation": "colleague", "strength": "moderate"},
				map[string]any{"name": "Acme Corp", "kind": "organization", "relation": "director"},
			},
		},
	}}, 1, kb, NewFactSet())

	if len(got.Facts) != 2 {
		t.Fatalf("facts = %v, want 2", got.Facts)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("entities = %v, want 2", got.Entities)
	}
	v := kb.View()
	if len(v.People) != 1 || len(v.Orgs) != 1 {
		t.Fatalf("kb people = %v, orgs = %v", v.People, v.Orgs)
	}
	if v.People[0].Relation != "colleague" || v.People[0].Strength != "moderate" {
		t.Fatalf("person relation not carried: %+v", v.People[0])
	}
	if v.Orgs[0].Relation != "director" {
		t.Fatalf("org relation not carried: %+v", v.Orgs[0])
	}
}

func TestAssessment_MetricsBridge(t *testing.T) {
	a := Assessment{
		Confidence:       0.42,
		Facts:            []Fact{{}, {}},
		NewFacts:         1,
		QueriesExecuted:  4,
		QueriesSucceeded: 3,
	}
	m := a.Metrics()
	if m.Confidence != 0.42 || m.FactsExtracted != 2 || m.NewFacts != 1 ||
		m.QueriesExecuted != 4 || m.QueriesSucceeded != 3 {
		t.Fatalf("metrics = %+v", m)
	}
}
