package assess

import (
	"time"

	"backcheck/internal/core/infotype"
	"backcheck/internal/core/sar"
)

// Assessment is the outcome of assessing one iteration's query results
type Assessment struct {
	InfoType         infotype.Type   `json:"info_type"`
	Iteration        int             `json:"iteration"`
	Facts            []Fact          `json:"facts,omitempty"`
	NewFacts         int             `json:"new_facts"`
	Gaps             []Gap           `json:"gaps,omitempty"`
	Inconsistencies  []Inconsistency `json:"inconsistencies,omitempty"`
	Entities         []Entity        `json:"entities,omitempty"`
	Factors          sar.Factors     `json:"factors"`
	Confidence       float64         `json:"confidence"`
	QueriesExecuted  int             `json:"queries_executed"`
	QueriesSucceeded int             `json:"queries_succeeded"`
	StaleDataUsed    bool            `json:"stale_data_used"`
}

// Metrics converts the assessment into state-machine metrics
func (a Assessment) Metrics() sar.Metrics {
	return sar.Metrics{
		Confidence:       a.Confidence,
		FactsExtracted:   len(a.Facts),
		NewFacts:         a.NewFacts,
		QueriesExecuted:  a.QueriesExecuted,
		QueriesSucceeded: a.QueriesSucceeded,
	}
}

// Assessor extracts facts from normalized provider payloads and folds
// them into the knowledge base. Stateless across calls; all accumulation
// lives in the KB and the caller's FactSet
type Assessor struct {
	scorer    *sar.Scorer
	deception DeceptionScorer
	now       func() time.Time
}

// Option tweaks assessor construction
type Option func(*Assessor)

// WithDeceptionScorer plugs a custom deception heuristic
func WithDeceptionScorer(ds DeceptionScorer) Option {
	return func(a *Assessor) { a.deception = ds }
}

// WithNow injects a clock (tests)
func WithNow(now func() time.Time) Option {
	return func(a *Assessor) { a.now = now }
}

// New builds an Assessor with the production scorer and deception default
func New(opts ...Option) *Assessor {
	a := &Assessor{
		scorer:    sar.NewScorer(),
		deception: DefaultDeceptionScorer,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assess processes one iteration's results for one info type:
// extract facts, count novelty, enrich the KB, detect gaps and
// inconsistencies, discover entities, and score confidence.
//
// Confidence factors are computed over the cumulative fact set for the
// type (knowledge, not increments), except query success which is scoped
// to this iteration's queries
func (a *Assessor) Assess(t infotype.Type, results []QueryResult, iteration int, kb *KnowledgeBase, seen *FactSet) Assessment {
	out := Assessment{InfoType: t, Iteration: iteration, QueriesExecuted: len(results)}

	for _, r := range results {
		if !r.Success {
			continue
		}
		out.QueriesSucceeded++
		if r.Stale {
			out.StaleDataUsed = true
		}

		facts := a.extract(t, r, iteration)
		for _, f := range facts {
			if seen.Add(f) {
				out.NewFacts++
			}
			kb.AddFact(f)
			enrichKB(kb, f)
			out.Facts = append(out.Facts, f)
		}
	}

	cumulative := kb.FactsOf(t)

	out.Inconsistencies = a.detectInconsistencies(cumulative, kb)
	out.Entities = discoverEntities(out.Facts, kb)
	out.Gaps = detectGaps(t, cumulative, kb.View())

	views := make([]sar.FactView, len(cumulative))
	for i, f := range cumulative {
		views[i] = sar.FactView{Type: f.Type, Value: f.Value, Source: f.Source, Confidence: f.Confidence}
	}
	out.Factors, out.Confidence = a.scorer.ScoreFacts(t, views, out.QueriesExecuted, out.QueriesSucceeded)

	return out
}

// enrichKB folds one fact into the structured KB fields
func enrichKB(kb *KnowledgeBase, f Fact) {
	switch f.Type {
	case "name_variant":
		kb.AddName(f.Value)
	case "dob":
		kb.SetDOB(f.Value)
	case "national_id_last4":
		kb.SetNationalIDLast4(f.Value)
	case "address":
		kb.AddAddress(f.Value)
		if s := f.Attrs["state"]; s != "" {
			kb.AddState(s)
		}
		if c := f.Attrs["county"]; c != "" {
			kb.AddCounty(c)
		}
	case "employer":
		kb.AddEmployer(Employer{
			Name:      f.Value,
			Title:     f.Attrs["title"],
			StartDate: f.Attrs["start_date"],
			EndDate:   f.Attrs["end_date"],
		})
	case "education":
		kb.AddSchool(School{
			Name:   f.Value,
			Degree: f.Attrs["degree"],
			Field:  f.Attrs["field"],
			Year:   f.Attrs["year"],
		})
	case "license":
		kb.AddLicense(License{
			Name:      f.Value,
			Authority: f.Attrs["authority"],
			Status:    f.Attrs["status"],
		})
	case "connection_person":
		kb.AddPerson(Person{Name: f.Value, Relation: f.Attrs["relation"], Strength: f.Attrs["strength"]})
	case "connection_org":
		kb.AddOrg(Org{Name: f.Value, Relation: f.Attrs["relation"]})
	}
}

// discoverEntities maps this iteration's facts to secondary entities,
// deduplicated within the batch
func discoverEntities(facts []Fact, kb *KnowledgeBase) []Entity {
	var out []Entity
	local := make(map[string]bool)

	add := func(e Entity) {
		k := e.Kind + "\x1f" + e.Name
		if e.Name == "" || local[k] {
			return
		}
		local[k] = true
		out = append(out, e)
	}

	for _, f := range facts {
		switch f.Type {
		case "employer":
			add(Entity{Kind: EntityOrganization, Name: f.Value, Relation: "employer", Source: f.Source})
			kb.AddOrg(Org{Name: f.Value, Relation: "employer"})
		case "education":
			add(Entity{Kind: EntityOrganization, Name: f.Value, Relation: "school", Source: f.Source})
			kb.AddOrg(Org{Name: f.Value, Relation: "school"})
		case "connection_person":
			rel := f.Attrs["relation"]
			if rel == "" {
				rel = "associate"
			}
			add(Entity{Kind: EntityPerson, Name: f.Value, Relation: rel, Source: f.Source})
		case "connection_org":
			rel := f.Attrs["relation"]
			if rel == "" {
				rel = "associate"
			}
			add(Entity{Kind: EntityOrganization, Name: f.Value, Relation: rel, Source: f.Source})
		}
	}
	return out
}
