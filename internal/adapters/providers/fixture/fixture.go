// Package fixture is a deterministic in-process provider adapter.
// Payloads are derived from a stable hash of the subject identity and
// check type, so repeated runs (and sibling fixture providers) produce
// identical facts for corroboration while per-variant noise can surface
// spelling conflicts for the inconsistency path
package fixture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
	"backcheck/internal/services/providers/domain"
)

// Options configures a fixture provider
type Options struct {
	ID        string
	Checks    []compliance.CheckType
	Latency   time.Duration
	CostCents int
	FreshFor  time.Duration
	StaleFor  time.Duration

	// Variant differentiates sibling fixtures; variant > 0 introduces
	// occasional value noise so inconsistency detection has material
	Variant int
}

// Provider implements domain.Adapter
type Provider struct {
	opts Options
	now  func() time.Time
}

// New constructs a fixture provider
func New(opts Options) *Provider {
	if opts.ID == "" {
		opts.ID = "fixture"
	}
	if len(opts.Checks) == 0 {
		opts.Checks = allChecks()
	}
	if opts.FreshFor <= 0 {
		opts.FreshFor = 24 * time.Hour
	}
	if opts.StaleFor <= 0 {
		opts.StaleFor = 72 * time.Hour
	}
	if opts.CostCents <= 0 {
		opts.CostCents = 25
	}
	return &Provider{opts: opts, now: time.Now}
}

// ID implements domain.Adapter
func (p *Provider) ID() string { return p.opts.ID }

// SupportedChecks implements domain.Adapter
func (p *Provider) SupportedChecks() []compliance.CheckType {
	out := make([]compliance.CheckType, len(p.opts.Checks))
	copy(out, p.opts.Checks)
	return out
}

// HealthCheck implements domain.Adapter
func (p *Provider) HealthCheck(_ context.Context) domain.Health {
	return domain.Health{Status: domain.HealthHealthy, Latency: p.opts.Latency}
}

// Execute implements domain.Adapter
func (p *Provider) Execute(ctx context.Context, check compliance.CheckType, sub subject.Subject, locale string, params map[string]string) (domain.Result, error) {
	if p.opts.Latency > 0 {
		select {
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		case <-time.After(p.opts.Latency):
		}
	} else if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	if sub.FullName == "" {
		return domain.Result{
			ProviderID: p.opts.ID,
			AcquiredAt: p.now().UTC(),
			ErrorCode:  domain.ErrInvalidSubject,
			ErrorMsg:   "subject has no name",
		}, nil
	}

	seed := seedOf(sub, check, params)
	data := p.payload(seed, check, sub, locale)

	raw, _ := json.Marshal(data)
	sum := sha256.Sum256(raw)

	return domain.Result{
		ProviderID: p.opts.ID,
		Success:    true,
		Data:       data,
		RawHash:    hex.EncodeToString(sum[:]),
		Latency:    p.opts.Latency,
		CostCents:  p.opts.CostCents,
		AcquiredAt: p.now().UTC(),
		FreshFor:   p.opts.FreshFor,
		StaleFor:   p.opts.StaleFor,
	}, nil
}

// seedOf hashes the canonical identity with the check type and any
// narrowing params; provider id deliberately excluded so sibling
// fixtures corroborate, while a narrowed query surfaces new material
func seedOf(sub subject.Subject, check compliance.CheckType, params map[string]string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sub.CanonicalIdentity()))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(check))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.Write([]byte("|"))
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte("="))
		_, _ = h.Write([]byte(params[k]))
	}
	return h.Sum64()
}

func pick(seed uint64, salt string, options []string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(salt))
	_, _ = fmt.Fprintf(h, "%d", seed)
	return options[h.Sum64()%uint64(len(options))]
}

func chance(seed uint64, salt string, pct uint64) bool {
	h := fnv.New64a()
	_, _ = h.Write([]byte(salt))
	_, _ = fmt.Fprintf(h, "%d", seed)
	return h.Sum64()%100 < pct
}

var (
	employerNames = []string{"Acme Corp", "Globex", "Initech", "Umbrella Logistics", "Stark Industrial"}
	schoolNames   = []string{"State University", "City College", "Polytechnic Institute", "Riverside University"}
	titles        = []string{"Engineer", "Senior Engineer", "Analyst", "Manager", "Director"}
	degrees       = []string{"BSc", "BA", "MSc", "MBA"}
	fields        = []string{"Computer Science", "Economics", "Biology", "Mathematics"}
	outlets       = []string{"Daily Ledger", "Metro Times", "Business Watch"}
	states        = []string{"TX", "WA", "CA", "NY", "IL"}
)

func (p *Provider) payload(seed uint64, check compliance.CheckType, sub subject.Subject, locale string) map[string]any {
	switch check {
	case compliance.CheckIdentity:
		return p.identityPayload(seed, sub)
	case compliance.CheckEmployment:
		return p.employmentPayload(seed)
	case compliance.CheckEducation:
		return p.educationPayload(seed)
	case compliance.CheckCriminalNational, compliance.CheckCriminalCounty,
		compliance.CheckCriminalFederal, compliance.CheckSexOffender:
		return p.criminalPayload(seed, check)
	case compliance.CheckCivilCourt:
		return p.civilPayload(seed)
	case compliance.CheckCreditReport, compliance.CheckBankruptcy:
		return p.financialPayload(seed)
	case compliance.CheckLicense, compliance.CheckRegulatoryFINRA:
		if check == compliance.CheckRegulatoryFINRA {
			return p.regulatoryPayload(seed)
		}
		return p.licensePayload(seed)
	case compliance.CheckSanctionsOFAC, compliance.CheckSanctionsGlobal:
		return p.sanctionsPayload(seed, sub)
	case compliance.CheckAdverseMedia, compliance.CheckAdverseMediaDeep:
		return p.mediaPayload(seed, sub)
	case compliance.CheckDigitalFootprint, compliance.CheckSocialMedia:
		return p.footprintPayload(seed, sub)
	case compliance.CheckNetworkAnalysis:
		return p.networkPayload(seed)
	default:
		return map[string]any{"clear": true, "locale": locale}
	}
}

func (p *Provider) identityPayload(seed uint64, sub subject.Subject) map[string]any {
	name := sub.FullName
	// variant fixtures occasionally report a squashed spelling, which the
	// assessor should flag as a minor inconsistency
	if p.opts.Variant > 0 && chance(seed, "misspell", 20) {
		name = squash(name)
	}
	dob := sub.DOB
	if dob == "" {
		dob = fmt.Sprintf("19%02d-%02d-%02d", 60+seed%30, 1+seed%12, 1+seed%28)
	}
	state := pick(seed, "state", states)
	payload := map[string]any{
		"full_name":     name,
		"name_variants": []any{initialedVariant(sub.FullName, seed)},
		"date_of_birth": dob,
		"addresses": []any{
			map[string]any{
				"street": fmt.Sprintf("%d Oak St", 100+seed%900),
				"city":   "Springfield",
				"state":  state,
				"county": pick(seed, "county", []string{"Travis", "King", "Cook", "Kings"}),
			},
		},
		"phones":     []any{fmt.Sprintf("+1555%07d", seed%10000000)},
		"confidence": confidenceOf(seed),
	}
	if sub.NationalIDLast4 != "" {
		payload["ssn_last4"] = sub.NationalIDLast4
	}
	return payload
}

func (p *Provider) employmentPayload(seed uint64) map[string]any {
	n := 1 + int(seed%3)
	emps := make([]any, 0, n)
	year := 2012 + int(seed%6)
	for i := 0; i < n; i++ {
		emp := map[string]any{
			"name":       pick(seed+uint64(i), "emp", employerNames),
			"title":      pick(seed+uint64(i), "title", titles),
			"start_date": fmt.Sprintf("%d-0%d-01", year+i*2, 1+int(seed)%9),
		}
		if i < n-1 || chance(seed, "ended", 50) {
			emp["end_date"] = fmt.Sprintf("%d-0%d-01", year+i*2+2, 1+int(seed)%9)
		}
		emps = append(emps, emp)
	}
	return map[string]any{"employers": emps, "confidence": confidenceOf(seed)}
}

func (p *Provider) educationPayload(seed uint64) map[string]any {
	return map[string]any{
		"schools": []any{
			map[string]any{
				"name":   pick(seed, "school", schoolNames),
				"degree": pick(seed, "degree", degrees),
				"field":  pick(seed, "field", fields),
				"year":   fmt.Sprintf("%d", 2004+seed%16),
			},
		},
		"confidence": confidenceOf(seed),
	}
}

func (p *Provider) criminalPayload(seed uint64, check compliance.CheckType) map[string]any {
	if !chance(seed, "crim", 12) {
		return map[string]any{"clear": true}
	}
	jur := pick(seed, "state", states)
	if check == compliance.CheckCriminalFederal {
		jur = "Federal"
	}
	return map[string]any{
		"records": []any{
			map[string]any{
				"offense":      pick(seed, "offense", []string{"Theft", "DUI", "Fraud", "Trespass"}),
				"date":         fmt.Sprintf("%d-0%d-15", 2014+seed%9, 1+seed%9),
				"jurisdiction": jur,
				"disposition":  pick(seed, "disp", []string{"convicted", "dismissed", "pending"}),
				"severity":     pick(seed, "sev", []string{"low", "medium", "high"}),
			},
		},
		"confidence": confidenceOf(seed),
	}
}

func (p *Provider) civilPayload(seed uint64) map[string]any {
	if !chance(seed, "civil", 10) {
		return map[string]any{"clear": true}
	}
	return map[string]any{
		"cases": []any{
			map[string]any{
				"case_type": pick(seed, "casetype", []string{"Contract dispute", "Small claims", "Eviction"}),
				"date":      fmt.Sprintf("%d-1%d-01", 2016+seed%7, seed%2),
				"court":     "Civil Court of Springfield",
			},
		},
	}
}

func (p *Provider) financialPayload(seed uint64) map[string]any {
	if !chance(seed, "fin", 15) {
		return map[string]any{"clear": true}
	}
	return map[string]any{
		"bankruptcies": []any{
			map[string]any{
				"case_number": fmt.Sprintf("%d-%05d", 2015+seed%8, seed%100000),
				"date":        fmt.Sprintf("%d-06-01", 2015+seed%8),
				"status":      "discharged",
			},
		},
	}
}

func (p *Provider) licensePayload(seed uint64) map[string]any {
	status := "active"
	if chance(seed, "lic", 18) {
		status = pick(seed, "licstatus", []string{"expired", "suspended"})
	}
	return map[string]any{
		"licenses": []any{
			map[string]any{
				"name":      pick(seed, "licname", []string{"Professional Engineer", "Series 7", "RN License", "CDL"}),
				"authority": pick(seed, "licauth", []string{"State Board", "FINRA", "DMV"}),
				"status":    status,
			},
		},
	}
}

func (p *Provider) sanctionsPayload(seed uint64, sub subject.Subject) map[string]any {
	if !chance(seed, "sanc", 3) {
		return map[string]any{"clear": true}
	}
	return map[string]any{
		"matches": []any{
			map[string]any{
				"list_name":  pick(seed, "list", []string{"OFAC SDN", "EU Consolidated"}),
				"entry_name": sub.FullName,
				"score":      "0.92",
			},
		},
	}
}

func (p *Provider) regulatoryPayload(seed uint64) map[string]any {
	if !chance(seed, "reg", 8) {
		return map[string]any{"clear": true}
	}
	return map[string]any{
		"actions": []any{
			map[string]any{
				"action":    "Censure and fine",
				"regulator": "FINRA",
				"date":      fmt.Sprintf("%d-03-10", 2017+seed%6),
			},
		},
	}
}

func (p *Provider) mediaPayload(seed uint64, sub subject.Subject) map[string]any {
	if !chance(seed, "media", 25) {
		return map[string]any{"articles": []any{}}
	}
	sentiment := "neutral"
	if chance(seed, "neg", 40) {
		sentiment = "negative"
	}
	return map[string]any{
		"articles": []any{
			map[string]any{
				"title":     fmt.Sprintf("%s named in local dispute", sub.FullName),
				"date":      fmt.Sprintf("%d-0%d-20", 2019+seed%5, 1+seed%9),
				"outlet":    pick(seed, "outlet", outlets),
				"sentiment": sentiment,
			},
		},
	}
}

func (p *Provider) footprintPayload(seed uint64, sub subject.Subject) map[string]any {
	handle := squash(sub.FullName)
	payload := map[string]any{
		"profiles": []any{
			map[string]any{"platform": "github", "handle": handle},
			map[string]any{"platform": "linkedin", "handle": handle},
		},
	}
	if chance(seed, "breach", 30) {
		payload["breaches"] = []any{map[string]any{"name": "MegaCorp 2021 breach"}}
	}
	return payload
}

func (p *Provider) networkPayload(seed uint64) map[string]any {
	conns := []any{
		map[string]any{
			"name":     pick(seed, "person", []string{"John Roe", "Ana Silva", "Wei Chen"}),
			"kind":     "person",
			"relation": "colleague",
			"strength": "moderate",
		},
		map[string]any{
			"name":     pick(seed, "org", employerNames),
			"kind":     "organization",
			"relation": "employer",
			"strength": "strong",
		},
	}
	if chance(seed, "flagged", 5) {
		conns = append(conns, map[string]any{
			"name":     "Shell Trading Ltd",
			"kind":     "organization",
			"relation": "director",
			"strength": "weak",
			"flag":     "sanctioned_entity",
		})
	}
	return map[string]any{"connections": conns}
}

func confidenceOf(seed uint64) float64 {
	return 0.7 + float64(seed%25)/100
}

// squash drops spaces and punctuation from a name
func squash(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\'', '-', '.':
			return -1
		}
		return r
	}, name)
}

func initialedVariant(name string, seed uint64) string {
	mid := string(rune('A' + seed%26))
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i] + " " + mid + name[i:]
	}
	return name
}

func allChecks() []compliance.CheckType {
	return []compliance.CheckType{
		compliance.CheckIdentity,
		compliance.CheckEmployment,
		compliance.CheckEducation,
		compliance.CheckCriminalNational,
		compliance.CheckCriminalCounty,
		compliance.CheckCriminalFederal,
		compliance.CheckSexOffender,
		compliance.CheckCivilCourt,
		compliance.CheckCreditReport,
		compliance.CheckBankruptcy,
		compliance.CheckLicense,
		compliance.CheckRegulatoryFINRA,
		compliance.CheckSanctionsOFAC,
		compliance.CheckSanctionsGlobal,
		compliance.CheckAdverseMedia,
		compliance.CheckAdverseMediaDeep,
		compliance.CheckSocialMedia,
		compliance.CheckDigitalFootprint,
		compliance.CheckNetworkAnalysis,
	}
}
