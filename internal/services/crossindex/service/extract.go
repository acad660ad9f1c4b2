package service

import (
	"time"

	"backcheck/internal/core/risk"
	"backcheck/internal/core/subject"
	"backcheck/internal/services/crossindex/domain"
	screeningdom "backcheck/internal/services/screening/domain"
)

// obsKinds fixes the derivation order so indexing a screening issues
// the same repo calls every run
var obsKinds = []domain.ObsKind{
	domain.ObsEmployer,
	domain.ObsDirectorOrg,
	domain.ObsOrg,
	domain.ObsAddress,
	domain.ObsFinding,
	domain.ObsSource,
}

// sharedEdgeSpecs maps each observation kind to the edge a shared value
// implies. Two people at the same employer are colleagues; two
// directors of the same org are board peers; a shared address ties
// households; the rest are weak correlation signals
var sharedEdgeSpecs = map[domain.ObsKind]struct {
	conn     domain.ConnectionType
	strength domain.Strength
}{
	domain.ObsEmployer:    {domain.ConnColleague, domain.StrengthModerate},
	domain.ObsDirectorOrg: {domain.ConnDirector, domain.StrengthStrong},
	domain.ObsOrg:         {domain.ConnNetworkNeighbor, domain.StrengthWeak},
	domain.ObsAddress:     {domain.ConnAddress, domain.StrengthStrong},
	domain.ObsFinding:     {domain.ConnSharedFinding, domain.StrengthWeak},
	domain.ObsSource:      {domain.ConnSharedSource, domain.StrengthModerate},
}

// extractObservations flattens what the screening learned into joinable
// values. Only knowledge-base facts are indexed, never the raw request:
// the index reflects what screenings established, not what callers claim
func extractObservations(key string, scr screeningdom.Screening, at time.Time) []domain.Observation {
	var out []domain.Observation
	seen := map[string]bool{}
	put := func(kind domain.ObsKind, value string) {
		c := subject.Canon(value)
		if c == "" {
			return
		}
		k := string(kind) + "\x1f" + c
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, domain.Observation{
			SubjectID:   key,
			Kind:        kind,
			Value:       c,
			TenantID:    scr.TenantID,
			ScreeningID: scr.ID,
			ObservedAt:  at,
		})
	}

	if v := scr.Knowledge; v != nil {
		for _, e := range v.Employers {
			put(domain.ObsEmployer, e.Name)
		}
		for _, sc := range v.Schools {
			put(domain.ObsOrg, sc.Name)
		}
		for _, a := range v.Addresses {
			put(domain.ObsAddress, a)
		}
		for _, o := range v.Orgs {
			switch subject.Canon(o.Relation) {
			case "employer":
				put(domain.ObsEmployer, o.Name)
			case "director", "board member", "board_member", "officer":
				put(domain.ObsDirectorOrg, o.Name)
			default:
				put(domain.ObsOrg, o.Name)
			}
		}
	}
	if scr.Score != nil {
		for _, f := range scr.Score.Findings {
			// verification findings describe coverage, not the subject;
			// sharing them would tie strangers together
			if f.Category == risk.CategoryVerification {
				continue
			}
			put(domain.ObsFinding, f.Title)
		}
	}
	for _, h := range scr.RawHashes {
		put(domain.ObsSource, h)
	}
	return out
}

// directEdges emits one edge per person the screening surfaced around
// the subject. The peer becomes a graph node whether or not it has ever
// been screened itself
func directEdges(key string, scr screeningdom.Screening, at time.Time) []domain.Edge {
	if scr.Knowledge == nil {
		return nil
	}
	var out []domain.Edge
	for _, p := range scr.Knowledge.People {
		peer := subject.Canon(p.Name)
		if peer == "" || peer == key {
			continue
		}
		strength, ok := domain.ParseStrength(p.Strength)
		if !ok {
			strength = domain.StrengthModerate
		}
		out = append(out, domain.Edge{
			SubjectA:   key,
			SubjectB:   peer,
			Type:       relationConnType(p.Relation),
			Strength:   strength,
			Evidence:   subject.Canon(p.Relation),
			TenantID:   scr.TenantID,
			ObservedAt: at,
		}.Normalize())
	}
	return out
}

// relationConnType maps a reported person relation onto the closed
// connection-type vocabulary; anything unrecognized is an associate
func relationConnType(relation string) domain.ConnectionType {
	switch subject.Canon(relation) {
	case "employer", "manager", "boss", "supervisor":
		return domain.ConnEmployer
	case "colleague", "coworker", "co-worker", "co worker":
		return domain.ConnColleague
	case "business partner", "business_partner", "business-partner", "partner", "co-founder", "cofounder":
		return domain.ConnBusinessPartner
	case "family", "spouse", "sibling", "parent", "child", "relative", "cousin", "in-law":
		return domain.ConnFamily
	default:
		return domain.ConnAssociate
	}
}
