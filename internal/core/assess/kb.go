package assess

import (
	"sync"

	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
)

// Employer is one accumulated employment record
type Employer struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// School is one accumulated education record
type School struct {
	Name   string `json:"name"`
	Degree string `json:"degree,omitempty"`
	Field  string `json:"field,omitempty"`
	Year   string `json:"year,omitempty"`
}

// License is one accumulated professional license
type License struct {
	Name      string `json:"name"`
	Authority string `json:"authority,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Person is one accumulated network link to an individual
type Person struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
	Strength string `json:"strength,omitempty"`
}

// Org is one accumulated organization link
type Org struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
}

// KnowledgeBase accumulates everything a screening learns about its
// subject. Writes are monotonic: values are appended or first-write-wins,
// never removed or overwritten. Distinctness is by canonical value.
// Conflicting claims are recorded as inconsistencies, never merged.
// One KB belongs to exactly one screening; a single lock serializes the
// concurrent per-type writers within a phase
type KnowledgeBase struct {
	mu sync.Mutex

	names           []string
	dob             string
	nationalIDLast4 string
	addresses       []string
	states          []string
	counties        []string
	employers       []Employer
	schools         []School
	licenses        []License
	people          []Person
	orgs            []Org

	facts           []Fact
	inconsistencies []Inconsistency

	seen map[string]bool // canonical membership keys for list fields
}

// NewKnowledgeBase seeds a KB from the subject's own identifiers
func NewKnowledgeBase(sub subject.Subject) *KnowledgeBase {
	kb := &KnowledgeBase{seen: make(map[string]bool)}
	for _, n := range sub.NameVariants() {
		kb.AddName(n)
	}
	if sub.DOB != "" {
		kb.SetDOB(sub.DOB)
	}
	if sub.NationalIDLast4 != "" {
		kb.SetNationalIDLast4(sub.NationalIDLast4)
	}
	for _, a := range sub.Addresses {
		kb.AddAddress(subject.CanonAddress(a))
		kb.AddState(a.Region)
	}
	for _, e := range sub.EmployerHints {
		kb.AddEmployer(Employer{Name: e})
	}
	return kb
}

func (kb *KnowledgeBase) add(kind, canon string) bool {
	if canon == "" {
		return false
	}
	k := kind + "\x1f" + canon
	if kb.seen[k] {
		return false
	}
	kb.seen[k] = true
	return true
}

// AddName appends a distinct name variant
func (kb *KnowledgeBase) AddName(name string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(name)
	if !kb.add("name", c) {
		return false
	}
	kb.names = append(kb.names, c)
	return true
}

// SetDOB records the date of birth once; later writes never overwrite
func (kb *KnowledgeBase) SetDOB(dob string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.dob != "" || dob == "" {
		return false
	}
	kb.dob = subject.Canon(dob)
	return true
}

// SetNationalIDLast4 records the ID tail once
func (kb *KnowledgeBase) SetNationalIDLast4(last4 string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.nationalIDLast4 != "" || last4 == "" {
		return false
	}
	kb.nationalIDLast4 = subject.Canon(last4)
	return true
}

// AddAddress appends a distinct canonical address tuple
func (kb *KnowledgeBase) AddAddress(addr string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(addr)
	if !kb.add("addr", c) {
		return false
	}
	kb.addresses = append(kb.addresses, c)
	return true
}

// AddState unions a state/region code into the known set
func (kb *KnowledgeBase) AddState(state string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(state)
	if !kb.add("state", c) {
		return false
	}
	kb.states = append(kb.states, c)
	return true
}

// AddCounty unions a county into the known set
func (kb *KnowledgeBase) AddCounty(county string) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(county)
	if !kb.add("county", c) {
		return false
	}
	kb.counties = append(kb.counties, c)
	return true
}

// AddEmployer appends a distinct employer (keyed by canonical name)
func (kb *KnowledgeBase) AddEmployer(e Employer) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(e.Name)
	if !kb.add("employer", c) {
		return false
	}
	e.Name = c
	kb.employers = append(kb.employers, e)
	return true
}

// AddSchool appends a distinct school (keyed by canonical name)
func (kb *KnowledgeBase) AddSchool(s School) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(s.Name)
	if !kb.add("school", c) {
		return false
	}
	s.Name = c
	kb.schools = append(kb.schools, s)
	return true
}

// AddLicense appends a distinct license (keyed by canonical name)
func (kb *KnowledgeBase) AddLicense(l License) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(l.Name)
	if !kb.add("license", c) {
		return false
	}
	l.Name = c
	kb.licenses = append(kb.licenses, l)
	return true
}

// AddPerson appends a discovered person. Distinctness is by canonical
// name and relation: the same individual in two relations is two links
func (kb *KnowledgeBase) AddPerson(p Person) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(p.Name)
	if !kb.add("person", p.Relation+"\x1f"+c) {
		return false
	}
	p.Name = c
	kb.people = append(kb.people, p)
	return true
}

// AddOrg appends a discovered organization link, keyed like AddPerson
func (kb *KnowledgeBase) AddOrg(o Org) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	c := subject.Canon(o.Name)
	if !kb.add("org", o.Relation+"\x1f"+c) {
		return false
	}
	o.Name = c
	kb.orgs = append(kb.orgs, o)
	return true
}

// AddFact appends a fact to the permanent record. Novelty accounting is
// the caller's job via FactSet; the KB stores every reported fact
func (kb *KnowledgeBase) AddFact(f Fact) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.facts = append(kb.facts, f)
}

// AddInconsistency records a conflict once; duplicate pairs are dropped.
// Reports whether the inconsistency was new
func (kb *KnowledgeBase) AddInconsistency(ic Inconsistency) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if !kb.add("inc", ic.pairKey()) {
		return false
	}
	kb.inconsistencies = append(kb.inconsistencies, ic)
	return true
}

// FactsOf returns copies of the accumulated facts for one info type
func (kb *KnowledgeBase) FactsOf(t infotype.Type) []Fact {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	var out []Fact
	for _, f := range kb.facts {
		if f.InfoType == t {
			out = append(out, f)
		}
	}
	return out
}

// Facts returns a copy of every accumulated fact
func (kb *KnowledgeBase) Facts() []Fact {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make([]Fact, len(kb.facts))
	copy(out, kb.facts)
	return out
}

// Inconsistencies returns a copy of every recorded conflict
func (kb *KnowledgeBase) Inconsistencies() []Inconsistency {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make([]Inconsistency, len(kb.inconsistencies))
	copy(out, kb.inconsistencies)
	return out
}

// View is a point-in-time copy of the KB's accumulated identity picture,
// safe to read while other types keep writing
type View struct {
	Names           []string   `json:"names,omitempty"`
	DOB             string     `json:"dob,omitempty"`
	NationalIDLast4 string     `json:"national_id_last4,omitempty"`
	Addresses       []string   `json:"addresses,omitempty"`
	States          []string   `json:"states,omitempty"`
	Counties        []string   `json:"counties,omitempty"`
	Employers       []Employer `json:"employers,omitempty"`
	Schools         []School   `json:"schools,omitempty"`
	Licenses        []License  `json:"licenses,omitempty"`
	People          []Person   `json:"people,omitempty"`
	Orgs            []Org      `json:"orgs,omitempty"`
	FactCount       int        `json:"fact_count"`
}

// View snapshots the KB
func (kb *KnowledgeBase) View() View {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	v := View{
		DOB:             kb.dob,
		NationalIDLast4: kb.nationalIDLast4,
		FactCount:       len(kb.facts),
	}
	v.Names = append(v.Names, kb.names...)
	v.Addresses = append(v.Addresses, kb.addresses...)
	v.States = append(v.States, kb.states...)
	v.Counties = append(v.Counties, kb.counties...)
	v.Employers = append(v.Employers, kb.employers...)
	v.Schools = append(v.Schools, kb.schools...)
	v.Licenses = append(v.Licenses, kb.licenses...)
	v.People = append(v.People, kb.people...)
	v.Orgs = append(v.Orgs, kb.orgs...)
	return v
}
