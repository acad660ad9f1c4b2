// Pack loading and indexing for the embedded compliance rules.json.
// Rules form a two-level inheritance (country -> region/state); a more
// specific locale's rule overrides its parent's
package compliance

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed rules.json
var embedded []byte

// Rule is one row of the compliance matrix, keyed by (locale, check, roles?)
type Rule struct {
	Check                CheckType `json:"check"`
	Permitted            bool      `json:"permitted"`
	Restriction          string    `json:"restriction,omitempty"`
	LookbackDays         *int      `json:"lookback_days,omitempty"`
	Roles                []string  `json:"roles,omitempty"`           // row applies only to these roles
	PermittedRoles       []string  `json:"permitted_roles,omitempty"` // role_restricted allow-list
	RequiresConsent      bool      `json:"requires_consent"`
	RequiresDisclosure   bool      `json:"requires_disclosure,omitempty"`
	RequiresEnhancedTier bool      `json:"requires_enhanced_tier,omitempty"`
	Conditions           []string  `json:"conditions,omitempty"`
	Notes                string    `json:"notes,omitempty"`
}

type rawLocale struct {
	Locale string `json:"locale"`
	Rules  []Rule `json:"rules"`
}

type rawPack struct {
	Version int            `json:"version"`
	Meta    map[string]any `json:"meta"`
	Locales []rawLocale    `json:"locales"`
}

// Pack is the compiled rule matrix, indexed by locale and check
type Pack struct {
	Version int
	Meta    map[string]any

	// locale -> check -> rows (file order preserved within a key)
	index map[string]map[CheckType][]Rule
}

// LoadPack parses and indexes the embedded rules.json
func LoadPack() (*Pack, error) {
	return ParsePack(embedded)
}

// ParsePack parses a rules document from raw bytes
func ParsePack(b []byte) (*Pack, error) {
	var raw rawPack
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("compliance: parse rules: %w", err)
	}
	if raw.Version != 1 {
		return nil, fmt.Errorf("compliance: unsupported rules version %d", raw.Version)
	}

	p := &Pack{
		Version: raw.Version,
		Meta:    raw.Meta,
		index:   make(map[string]map[CheckType][]Rule, len(raw.Locales)),
	}
	for _, loc := range raw.Locales {
		key := NormalizeLocale(loc.Locale)
		if key == "" {
			return nil, fmt.Errorf("compliance: rules entry with empty locale")
		}
		if _, dup := p.index[key]; dup {
			return nil, fmt.Errorf("compliance: duplicate locale %q", key)
		}
		byCheck := make(map[CheckType][]Rule, len(loc.Rules))
		for _, r := range loc.Rules {
			if r.Check == "" {
				return nil, fmt.Errorf("compliance: locale %q has a rule with no check", key)
			}
			byCheck[r.Check] = append(byCheck[r.Check], r)
		}
		p.index[key] = byCheck
	}
	return p, nil
}

// Locales returns the locale keys present in the pack, sorted
func (p *Pack) Locales() []string {
	out := make([]string, 0, len(p.index))
	for k := range p.index {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// rulesFor returns the rule rows for (locale, check), or nil
func (p *Pack) rulesFor(locale string, check CheckType) []Rule {
	byCheck, ok := p.index[locale]
	if !ok {
		return nil
	}
	return byCheck[check]
}
