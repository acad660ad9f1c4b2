// Package consent models subject consent records and the scope-coverage
// rules that gate provider dispatch. The umbrella BACKGROUND_CHECK scope
// covers the basic verification set; sensitive scopes are always explicit
package consent

import (
	"strings"
	"time"

	"backcheck/internal/core/compliance"
)

// Scope is a named consent grant
type Scope string

const (
	// ScopeBackgroundCheck is the umbrella scope covering the basic set
	ScopeBackgroundCheck Scope = "BACKGROUND_CHECK"

	ScopeCriminalRecords  Scope = "CRIMINAL_RECORDS"
	ScopeEmploymentVerify Scope = "EMPLOYMENT_VERIFICATION"
	ScopeEducationVerify  Scope = "EDUCATION_VERIFICATION"
	ScopeLicenseVerify    Scope = "LICENSE_VERIFICATION"
	ScopeSanctionsCheck   Scope = "SANCTIONS_CHECK"

	// Always explicit, never implied by BACKGROUND_CHECK
	ScopeCreditCheck      Scope = "CREDIT_CHECK"
	ScopeDrugTesting      Scope = "DRUG_TESTING"
	ScopeSocialMedia      Scope = "SOCIAL_MEDIA"
	ScopeDigitalFootprint Scope = "DIGITAL_FOOTPRINT"
	ScopeLocationData     Scope = "LOCATION_DATA"
	ScopeBehavioralData   Scope = "BEHAVIORAL_DATA"
	ScopeContinuousMon    Scope = "CONTINUOUS_MONITORING"
)

// basicCovered is the set the umbrella scope implies
var basicCovered = map[Scope]bool{
	ScopeCriminalRecords:  true,
	ScopeEmploymentVerify: true,
	ScopeEducationVerify:  true,
	ScopeLicenseVerify:    true,
	ScopeSanctionsCheck:   true,
}

// alwaysExplicit lists scopes that must be granted by name
var alwaysExplicit = map[Scope]bool{
	ScopeCreditCheck:      true,
	ScopeDrugTesting:      true,
	ScopeSocialMedia:      true,
	ScopeDigitalFootprint: true,
	ScopeLocationData:     true,
	ScopeBehavioralData:   true,
	ScopeContinuousMon:    true,
}

// AlwaysExplicit reports whether scope can never be implied by the umbrella
func AlwaysExplicit(s Scope) bool { return alwaysExplicit[s] }

// ParseScope normalizes a scope token ("criminal-records" == "CRIMINAL_RECORDS")
func ParseScope(s string) Scope {
	return Scope(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
}

// Method records how the consent was captured
type Method string

const (
	MethodESignature   Method = "ESIGNATURE"
	MethodWetSignature Method = "WET_SIGNATURE"
	MethodHRISAPI      Method = "HRIS_API"
	MethodVerbal       Method = "RECORDED_VERBAL"
	MethodAttestation  Method = "MANUAL_ATTESTATION"
)

// FCRADisclosure is the sub-record attached to US consents
type FCRADisclosure struct {
	StandaloneDisclosure bool     `json:"standalone_disclosure"`
	SummaryOfRights      bool     `json:"summary_of_rights"`
	InvestigativeReport  bool     `json:"investigative_report,omitempty"` // passed through from upstream input
	StateDisclosures     []string `json:"state_disclosures,omitempty"`
}

// Consent is one grant of scopes by a subject
type Consent struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subject_id"`
	TenantID  string          `json:"tenant_id"`
	Scopes    []Scope         `json:"scopes"`
	Method    Method          `json:"method"`
	Locale    string          `json:"locale"`
	GrantedAt time.Time       `json:"granted_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	RevokedAt *time.Time      `json:"revoked_at,omitempty"`
	FCRA      *FCRADisclosure `json:"fcra,omitempty"`
}

// ValidAt reports whether the consent is usable at now:
// not revoked, and now strictly before any expiry
func (c Consent) ValidAt(now time.Time) bool {
	if c.RevokedAt != nil && !c.RevokedAt.After(now) {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// Covers reports whether this consent grants scope at now.
// A consent with an empty scope list covers nothing
func (c Consent) Covers(scope Scope, now time.Time) bool {
	if !c.ValidAt(now) || len(c.Scopes) == 0 {
		return false
	}
	hasUmbrella := false
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
		if s == ScopeBackgroundCheck {
			hasUmbrella = true
		}
	}
	if hasUmbrella && basicCovered[scope] && !alwaysExplicit[scope] {
		return true
	}
	return false
}

// MissingScopes returns the required scopes no consent in the set covers,
// preserving the order of required
func MissingScopes(consents []Consent, required []Scope, now time.Time) []Scope {
	var missing []Scope
	for _, scope := range required {
		covered := false
		for _, c := range consents {
			if c.Covers(scope, now) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, scope)
		}
	}
	return missing
}

// VerifyFCRADisclosure checks the FCRA sub-record against locale rules.
// Locales outside the US always pass
func VerifyFCRADisclosure(c Consent, locale string) (bool, []string) {
	loc := compliance.NormalizeLocale(locale)
	if loc != "US" && !strings.HasPrefix(loc, "US_") {
		return true, nil
	}

	var errs []string
	if c.FCRA == nil {
		errs = append(errs, "fcra disclosure record missing")
		return false, errs
	}
	if !c.FCRA.StandaloneDisclosure {
		errs = append(errs, "standalone disclosure not recorded")
	}
	if !c.FCRA.SummaryOfRights {
		errs = append(errs, "summary of rights not recorded")
	}
	if loc == "US_CA" && !hasDisclosure(c.FCRA.StateDisclosures, "CA_ICRAA") {
		errs = append(errs, "CA_ICRAA state disclosure missing")
	}
	if loc == "US_NY" && !hasDisclosure(c.FCRA.StateDisclosures, "NY_FAIR_CHANCE") {
		errs = append(errs, "NY_FAIR_CHANCE state disclosure missing")
	}
	return len(errs) == 0, errs
}

func hasDisclosure(list []string, want string) bool {
	for _, d := range list {
		if strings.EqualFold(strings.TrimSpace(d), want) {
			return true
		}
	}
	return false
}

// ScopeForCheck maps a check-type to the consent scope that authorizes it
func ScopeForCheck(check compliance.CheckType) Scope {
	switch check {
	case compliance.CheckCriminalNational,
		compliance.CheckCriminalCounty,
		compliance.CheckCriminalFederal,
		compliance.CheckSexOffender:
		return ScopeCriminalRecords
	case compliance.CheckEmployment:
		return ScopeEmploymentVerify
	case compliance.CheckEducation:
		return ScopeEducationVerify
	case compliance.CheckLicense, compliance.CheckRegulatoryFINRA:
		return ScopeLicenseVerify
	case compliance.CheckSanctionsOFAC, compliance.CheckSanctionsGlobal:
		return ScopeSanctionsCheck
	case compliance.CheckCreditReport, compliance.CheckBankruptcy:
		return ScopeCreditCheck
	case compliance.CheckSocialMedia:
		return ScopeSocialMedia
	case compliance.CheckDigitalFootprint:
		return ScopeDigitalFootprint
	case compliance.CheckAdverseMediaDeep, compliance.CheckNetworkAnalysis:
		return ScopeBehavioralData
	case compliance.CheckContinuousMon:
		return ScopeContinuousMon
	default:
		return ScopeBackgroundCheck
	}
}

// RequiredScopes maps a check set to its distinct scope set,
// first-seen order preserved
func RequiredScopes(checks []compliance.CheckType) []Scope {
	seen := make(map[Scope]bool, len(checks))
	out := make([]Scope, 0, len(checks))
	for _, c := range checks {
		s := ScopeForCheck(c)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
