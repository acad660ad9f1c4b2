package assess

import "backcheck/internal/core/infotype"

// detectGaps inspects the cumulative facts for one type plus the KB view
// and names what is still missing. no_* gaps mean nothing was found at
// all; missing_* gaps mean the picture is partial
func detectGaps(t infotype.Type, facts []Fact, v View) []Gap {
	var out []Gap
	gap := func(gapType, desc string, priority int) {
		out = append(out, Gap{Type: gapType, InfoType: t, Description: desc, Priority: priority})
	}

	switch t {
	case infotype.Identity:
		if len(facts) == 0 {
			gap("no_identity_found", "no identity data from any source", 1)
			return out
		}
		if v.DOB == "" {
			gap("missing_dob", "date of birth unconfirmed", 2)
		}
		if len(v.Addresses) == 0 {
			gap("missing_address", "no address on file", 2)
		}
		if v.NationalIDLast4 == "" {
			gap("missing_national_id", "national id tail unconfirmed", 3)
		}

	case infotype.Employment:
		if !hasFactType(facts, "employer") {
			gap("no_employment_found", "no employment history from any source", 1)
			return out
		}
		for _, f := range facts {
			if f.Type != "employer" {
				continue
			}
			if f.Attrs["end_date"] == "" {
				gap("missing_end_date", "employer "+f.Value+" has no end date", 3)
			}
			if f.Attrs["title"] == "" {
				gap("missing_title", "employer "+f.Value+" has no title", 3)
			}
		}

	case infotype.Education:
		if !hasFactType(facts, "education") {
			gap("no_education_found", "no education history from any source", 2)
			return out
		}
		for _, f := range facts {
			if f.Type == "education" && f.Attrs["degree"] == "" {
				gap("missing_degree", "school "+f.Value+" has no degree", 3)
			}
		}

	case infotype.Criminal:
		if !hasFactType(facts, "criminal_record", "criminal_clear") {
			gap("no_criminal_result", "no criminal result from any source", 1)
			return out
		}
		for _, f := range facts {
			if f.Type == "criminal_record" && f.Attrs["disposition"] == "" {
				gap("missing_disposition", "record "+f.Value+" has no disposition", 2)
			}
		}

	case infotype.Civil:
		if !hasFactType(facts, "civil_case", "civil_clear") {
			gap("no_civil_result", "no civil court result from any source", 2)
		}

	case infotype.Financial:
		if !hasFactType(facts, "bankruptcy", "lien", "judgment", "financial_clear") {
			gap("no_financial_result", "no financial result from any source", 2)
		}

	case infotype.Licenses:
		if !hasFactType(facts, "license") {
			gap("no_license_found", "no license records from any source", 2)
		}

	case infotype.Sanctions:
		if !hasFactType(facts, "sanctions_hit", "sanctions_clear") {
			gap("no_sanctions_result", "no sanctions result from any source", 1)
		}

	case infotype.Regulatory:
		if !hasFactType(facts, "regulatory_action", "regulatory_clear") {
			gap("no_regulatory_result", "no regulatory result from any source", 2)
		}

	case infotype.AdverseMedia:
		if !hasFactType(facts, "adverse_media") {
			gap("no_media_found", "no adverse media coverage found", 3)
		}

	case infotype.DigitalFootprint:
		if !hasFactType(facts, "online_profile", "data_breach") {
			gap("no_footprint_found", "no digital footprint found", 3)
		}

	case infotype.NetworkD2, infotype.NetworkD3:
		if !hasFactType(facts, "connection_person", "connection_org") {
			gap("no_network_found", "no network connections found", 3)
		}

	case infotype.Reconciliation:
		if hasFactType(facts, "conflict") {
			gap("unresolved_conflicts", "cross-source conflicts remain unresolved", 1)
		}
		if !hasFactType(facts, "confirmation") {
			gap("no_reconciliation_result", "no cross-source confirmations", 2)
		}
	}

	return out
}

func hasFactType(facts []Fact, types ...string) bool {
	for _, f := range facts {
		for _, t := range types {
			if f.Type == t {
				return true
			}
		}
	}
	return false
}
