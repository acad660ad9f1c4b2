// Package compliance evaluates whether a check-type may run for a given
// locale, role, and service tier, and with what lookback and consent
// obligations. Rules come from the embedded rules.json pack
package compliance

import (
	"strings"
	"time"
)

// Tier is the service tier a tenant bought for a screening
type Tier string

const (
	// TierStandard is the default tier
	TierStandard Tier = "STANDARD"
	// TierEnhanced unlocks the deep-investigation check set
	TierEnhanced Tier = "ENHANCED"
)

// ParseTier normalizes a tier token; unknown or empty input maps to STANDARD
func ParseTier(s string) Tier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierEnhanced)) {
		return TierEnhanced
	}
	return TierStandard
}

// CheckType is a provider-executable query kind
type CheckType string

// Check types known to the rule pack and the provider registry
const (
	CheckIdentity         CheckType = "IDENTITY_VERIFICATION"
	CheckCriminalNational CheckType = "CRIMINAL_NATIONAL"
	CheckCriminalCounty   CheckType = "CRIMINAL_COUNTY"
	CheckCriminalFederal  CheckType = "CRIMINAL_FEDERAL"
	CheckSexOffender      CheckType = "SEX_OFFENDER_REGISTRY"
	CheckCivilCourt       CheckType = "CIVIL_COURT"
	CheckBankruptcy       CheckType = "BANKRUPTCY"
	CheckCreditReport     CheckType = "CREDIT_REPORT"
	CheckEmployment       CheckType = "EMPLOYMENT_VERIFICATION"
	CheckEducation        CheckType = "EDUCATION_VERIFICATION"
	CheckLicense          CheckType = "LICENSE_VERIFICATION"
	CheckSanctionsOFAC    CheckType = "SANCTIONS_OFAC"
	CheckSanctionsGlobal  CheckType = "SANCTIONS_GLOBAL"
	CheckRegulatoryFINRA  CheckType = "REGULATORY_FINRA"
	CheckMotorVehicle     CheckType = "MOTOR_VEHICLE_RECORDS"
	CheckAdverseMedia     CheckType = "ADVERSE_MEDIA"
	CheckAdverseMediaDeep CheckType = "ADVERSE_MEDIA_DEEP"
	CheckSocialMedia      CheckType = "SOCIAL_MEDIA"
	CheckDigitalFootprint CheckType = "DIGITAL_FOOTPRINT"
	CheckNetworkAnalysis  CheckType = "NETWORK_ANALYSIS"
	CheckContinuousMon    CheckType = "CONTINUOUS_MONITORING"
)

var knownChecks = map[CheckType]bool{
	CheckIdentity: true, CheckCriminalNational: true, CheckCriminalCounty: true,
	CheckCriminalFederal: true, CheckSexOffender: true, CheckCivilCourt: true,
	CheckBankruptcy: true, CheckCreditReport: true, CheckEmployment: true,
	CheckEducation: true, CheckLicense: true, CheckSanctionsOFAC: true,
	CheckSanctionsGlobal: true, CheckRegulatoryFINRA: true, CheckMotorVehicle: true,
	CheckAdverseMedia: true, CheckAdverseMediaDeep: true, CheckSocialMedia: true,
	CheckDigitalFootprint: true, CheckNetworkAnalysis: true, CheckContinuousMon: true,
}

// KnownCheck reports whether check is one the rule pack and provider
// registry understand
func KnownCheck(check CheckType) bool { return knownChecks[check] }

// enhancedOnly is the fixed set of checks gated behind TierEnhanced,
// independent of locale rules
var enhancedOnly = map[CheckType]bool{
	CheckSocialMedia:      true,
	CheckDigitalFootprint: true,
	CheckAdverseMediaDeep: true,
	CheckNetworkAnalysis:  true,
	CheckContinuousMon:    true,
}

// EnhancedOnly reports whether check is tier-gated regardless of locale
func EnhancedOnly(check CheckType) bool { return enhancedOnly[check] }

// Restriction kinds a rule may carry
const (
	RestrictNone        = "none"
	RestrictBlocked     = "blocked"
	RestrictLookback    = "lookback_limited"
	RestrictRole        = "role_restricted"
	RestrictConditional = "conditional"
	RestrictTier        = "tier_restricted"
)

// Evaluation is the outcome of one (locale, check, role, tier) decision
type Evaluation struct {
	Check                CheckType `json:"check"`
	Permitted            bool      `json:"permitted"`
	LookbackDays         *int      `json:"lookback_days,omitempty"`
	RequiresConsent      bool      `json:"requires_consent"`
	RequiresDisclosure   bool      `json:"requires_disclosure"`
	RequiresEnhancedTier bool      `json:"requires_enhanced_tier"`
	BlockReason          string    `json:"block_reason,omitempty"`
	Restrictions         []string  `json:"restrictions,omitempty"`
	RuleLocale           string    `json:"rule_locale,omitempty"`
}

// WithinLookback reports whether a datum dated at falls inside the
// evaluation's lookback window ending at now. No lookback admits any
// date; a zero-day window admits none
func (ev Evaluation) WithinLookback(at, now time.Time) bool {
	if ev.LookbackDays == nil {
		return true
	}
	d := *ev.LookbackDays
	if d <= 0 {
		return false
	}
	return !at.Before(now.AddDate(0, 0, -d))
}

// BlockedCheck pairs a rejected check with the reason it was rejected
type BlockedCheck struct {
	Check  CheckType `json:"check"`
	Reason string    `json:"reason"`
}

// Evaluator answers compliance questions against a loaded rule pack.
// It is immutable after construction and safe for concurrent use
type Evaluator struct {
	pack *Pack
}

// New loads the embedded rule pack and returns an Evaluator over it
func New() (*Evaluator, error) {
	p, err := LoadPack()
	if err != nil {
		return nil, err
	}
	return &Evaluator{pack: p}, nil
}

// NewWithPack wraps an already-loaded pack (tests, alternate packs)
func NewWithPack(p *Pack) *Evaluator { return &Evaluator{pack: p} }

// NormalizeLocale upper-cases a locale token and folds "-" to "_"
// so "us-ca" and "US_CA" resolve identically
func NormalizeLocale(locale string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(locale), "-", "_"))
}

// localeChain walks a locale to its parents: US_CA -> [US_CA, US]
func localeChain(locale string) []string {
	locale = NormalizeLocale(locale)
	chain := []string{locale}
	for {
		i := strings.LastIndex(locale, "_")
		if i <= 0 {
			break
		}
		locale = locale[:i]
		chain = append(chain, locale)
	}
	return chain
}

// Evaluate resolves the most specific applicable rule and applies the
// decision order: tier gate, blocked, role restriction, then permit
func (e *Evaluator) Evaluate(locale string, check CheckType, role string, tier Tier) Evaluation {
	ev := Evaluation{Check: check}

	// Tier gate wins over everything else, including locale rules that
	// would otherwise permit the check
	if enhancedOnly[check] && tier != TierEnhanced {
		ev.Permitted = false
		ev.RequiresEnhancedTier = true
		ev.BlockReason = "tier"
		return ev
	}

	rule, ruleLocale := e.resolve(locale, check, role)
	ev.RuleLocale = ruleLocale

	if rule == nil {
		// Built-in default: permit with consent required
		ev.Permitted = true
		ev.RequiresConsent = true
		return ev
	}

	if rule.RequiresEnhancedTier && tier != TierEnhanced {
		ev.Permitted = false
		ev.RequiresEnhancedTier = true
		ev.BlockReason = "tier"
		return ev
	}

	if !rule.Permitted || rule.Restriction == RestrictBlocked {
		ev.Permitted = false
		ev.BlockReason = rule.Notes
		return ev
	}

	if rule.Restriction == RestrictRole && !roleAllowed(role, rule.PermittedRoles) {
		ev.Permitted = false
		ev.BlockReason = "role"
		return ev
	}

	ev.Permitted = true
	ev.RequiresConsent = rule.RequiresConsent
	ev.RequiresDisclosure = rule.RequiresDisclosure
	ev.RequiresEnhancedTier = rule.RequiresEnhancedTier
	if rule.LookbackDays != nil {
		d := *rule.LookbackDays
		ev.LookbackDays = &d
	}
	if rule.Restriction != "" && rule.Restriction != RestrictNone {
		ev.Restrictions = append(ev.Restrictions, rule.Restriction)
	}
	ev.Restrictions = append(ev.Restrictions, rule.Conditions...)
	return ev
}

// ValidateChecks partitions the requested checks into permitted and
// blocked sets. Used to prune a screening request before any work begins
func (e *Evaluator) ValidateChecks(locale string, checks []CheckType, role string, tier Tier) ([]CheckType, []BlockedCheck) {
	permitted := make([]CheckType, 0, len(checks))
	var blocked []BlockedCheck
	for _, c := range checks {
		ev := e.Evaluate(locale, c, role, tier)
		if ev.Permitted {
			permitted = append(permitted, c)
			continue
		}
		blocked = append(blocked, BlockedCheck{Check: c, Reason: ev.BlockReason})
	}
	return permitted, blocked
}

// resolve walks the locale chain looking for the most specific rule,
// preferring a role-scoped row over the locale's generic row
func (e *Evaluator) resolve(locale string, check CheckType, role string) (*Rule, string) {
	for _, loc := range localeChain(locale) {
		rules := e.pack.rulesFor(loc, check)
		if len(rules) == 0 {
			continue
		}
		var generic *Rule
		for i := range rules {
			r := &rules[i]
			if len(r.Roles) == 0 {
				if generic == nil {
					generic = r
				}
				continue
			}
			if roleAllowed(role, r.Roles) {
				return r, loc
			}
		}
		if generic != nil {
			return generic, loc
		}
	}
	return nil, ""
}

func roleAllowed(role string, allowed []string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, a := range allowed {
		if role == strings.ToLower(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
