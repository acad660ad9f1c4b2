package assess

import (
	"fmt"
	"strings"

	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
)

// defaultFactConfidence applies when a payload carries no confidence hint
const defaultFactConfidence = 0.8

// extract applies the per-info-type field map to one successful result
func (a *Assessor) extract(t infotype.Type, r QueryResult, iteration int) []Fact {
	now := a.now()
	conf := confOf(r.Data, defaultFactConfidence)

	mk := func(factType, value string) Fact {
		return newFact(t, factType, value, r, iteration, conf, now)
	}

	var out []Fact
	switch t {
	case infotype.Identity, infotype.Reconciliation:
		out = extractIdentity(mk, r.Data)
	case infotype.Employment:
		out = extractEmployment(mk, r.Data)
	case infotype.Education:
		out = extractEducation(mk, r.Data)
	case infotype.Criminal:
		out = extractRecords(mk, r.Data, "records", "criminal_record", "criminal_clear", "offense")
	case infotype.Civil:
		out = extractRecords(mk, r.Data, "cases", "civil_case", "civil_clear", "case_type")
	case infotype.Financial:
		out = extractFinancial(mk, r.Data)
	case infotype.Licenses:
		out = extractLicenses(mk, r.Data)
	case infotype.Sanctions:
		out = extractRecords(mk, r.Data, "matches", "sanctions_hit", "sanctions_clear", "list_name")
	case infotype.Regulatory:
		out = extractRecords(mk, r.Data, "actions", "regulatory_action", "regulatory_clear", "action")
	case infotype.AdverseMedia:
		out = extractMedia(mk, r.Data)
	case infotype.DigitalFootprint:
		out = extractFootprint(mk, r.Data)
	case infotype.NetworkD2, infotype.NetworkD3:
		out = extractConnections(mk, r.Data)
	}
	return out
}

type factMaker func(factType, value string) Fact

func extractIdentity(mk factMaker, data map[string]any) []Fact {
	var out []Fact

	if v := str(data, "full_name"); v != "" {
		out = append(out, mk("name_variant", v))
	}
	for _, v := range strlist(data, "name_variants") {
		out = append(out, mk("name_variant", v))
	}
	if v := str(data, "date_of_birth", "dob"); v != "" {
		out = append(out, mk("dob", v))
	}
	if v := str(data, "ssn_last4", "national_id_last4"); v != "" {
		out = append(out, mk("national_id_last4", v))
	}
	for _, item := range anylist(data, "addresses") {
		switch av := item.(type) {
		case string:
			if av != "" {
				out = append(out, mk("address", av))
			}
		case map[string]any:
			addr := subject.Address{
				Line1:      str(av, "line1", "street"),
				City:       str(av, "city"),
				Region:     str(av, "state", "region"),
				PostalCode: str(av, "postal_code", "zip"),
				Country:    str(av, "country"),
			}
			f := mk("address", subject.CanonAddress(addr))
			f.Attrs = map[string]string{}
			if addr.Region != "" {
				f.Attrs["state"] = addr.Region
			}
			if c := str(av, "county"); c != "" {
				f.Attrs["county"] = c
			}
			out = append(out, f)
		}
	}
	if v := str(data, "phone"); v != "" {
		out = append(out, mk("phone", v))
	}
	for _, v := range strlist(data, "phones") {
		out = append(out, mk("phone", v))
	}
	for _, item := range anylist(data, "confirmations") {
		if m, ok := item.(map[string]any); ok {
			field := str(m, "field")
			value := str(m, "value")
			if field != "" && value != "" {
				out = append(out, mk("confirmation", field+"="+value))
			}
		}
	}
	return out
}

func extractEmployment(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	for _, item := range anylist(data, "employers") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := str(m, "name", "employer")
		if name == "" {
			continue
		}
		f := mk("employer", name)
		f.Attrs = map[string]string{
			"title":      str(m, "title", "position"),
			"start_date": str(m, "start_date", "from"),
			"end_date":   str(m, "end_date", "to"),
		}
		out = append(out, f)
	}
	return out
}

func extractEducation(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	for _, key := range []string{"schools", "education"} {
		for _, item := range anylist(data, key) {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := str(m, "name", "institution", "school")
			if name == "" {
				continue
			}
			f := mk("education", name)
			f.Attrs = map[string]string{
				"degree": str(m, "degree"),
				"field":  str(m, "field", "major"),
				"year":   str(m, "year", "graduated"),
			}
			out = append(out, f)
		}
	}
	return out
}

// extractRecords handles the common records-or-clear payload shape shared
// by criminal, civil, sanctions, and regulatory checks
func extractRecords(mk factMaker, data map[string]any, listKey, recordType, clearType, valueKey string) []Fact {
	var out []Fact
	for _, item := range anylist(data, listKey) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		value := str(m, valueKey, "description", "name")
		if value == "" {
			continue
		}
		f := mk(recordType, value)
		f.Attrs = recordAttrs(m)
		out = append(out, f)
	}
	if len(out) == 0 && boolOf(data, "clear") {
		out = append(out, mk(clearType, "clear"))
	}
	return out
}

func recordAttrs(m map[string]any) map[string]string {
	attrs := make(map[string]string, 4)
	for _, k := range []string{"date", "jurisdiction", "disposition", "severity", "court", "regulator", "entry_name", "score", "status"} {
		if v := str(m, k); v != "" {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func extractFinancial(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	kinds := []struct{ key, factType string }{
		{"bankruptcies", "bankruptcy"},
		{"liens", "lien"},
		{"judgments", "judgment"},
	}
	for _, kind := range kinds {
		for _, item := range anylist(data, kind.key) {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			value := str(m, "case_number", "description", "court")
			if value == "" {
				value = fmt.Sprintf("%s %s", kind.factType, str(m, "date"))
			}
			f := mk(kind.factType, strings.TrimSpace(value))
			f.Attrs = recordAttrs(m)
			out = append(out, f)
		}
	}
	if len(out) == 0 && boolOf(data, "clear") {
		out = append(out, mk("financial_clear", "clear"))
	}
	return out
}

func extractLicenses(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	for _, item := range anylist(data, "licenses") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := str(m, "name", "type", "license")
		if name == "" {
			continue
		}
		f := mk("license", name)
		f.Attrs = map[string]string{
			"authority": str(m, "authority", "issuer"),
			"status":    str(m, "status"),
		}
		out = append(out, f)
	}
	return out
}

func extractMedia(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	for _, item := range anylist(data, "articles") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title := str(m, "title", "headline")
		if title == "" {
			continue
		}
		f := mk("adverse_media", title)
		attrs := make(map[string]string, 3)
		for _, k := range []string{"date", "outlet", "sentiment", "url"} {
			if v := str(m, k); v != "" {
				attrs[k] = v
			}
		}
		if len(attrs) > 0 {
			f.Attrs = attrs
		}
		out = append(out, f)
	}
	return out
}

func extractFootprint(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	for _, item := range anylist(data, "profiles") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		platform := str(m, "platform")
		handle := str(m, "handle", "username")
		if platform == "" && handle == "" {
			continue
		}
		out = append(out, mk("online_profile", strings.TrimLeft(platform+":"+handle, ":")))
	}
	for _, item := range anylist(data, "breaches") {
		if m, ok := item.(map[string]any); ok {
			if name := str(m, "name", "breach"); name != "" {
				out = append(out, mk("data_breach", name))
			}
		}
	}
	return out
}

func extractConnections(mk factMaker, data map[string]any) []Fact {
	var out []Fact
	for _, item := range anylist(data, "connections") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := str(m, "name")
		if name == "" {
			continue
		}
		factType := "connection_person"
		if strings.EqualFold(str(m, "kind"), EntityOrganization) {
			factType = "connection_org"
		}
		f := mk(factType, name)
		attrs := make(map[string]string, 3)
		if rel := str(m, "relation"); rel != "" {
			attrs["relation"] = rel
		}
		if s := str(m, "strength"); s != "" {
			attrs["strength"] = s
		}
		if fl := str(m, "flag"); fl != "" {
			attrs["flag"] = fl
		}
		if len(attrs) > 0 {
			f.Attrs = attrs
		}
		out = append(out, f)
	}
	return out
}

// payload helpers

// str returns the first non-empty string under any of the keys
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func strlist(m map[string]any, key string) []string {
	var out []string
	for _, item := range anylist(m, key) {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func anylist(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

func boolOf(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func confOf(m map[string]any, def float64) float64 {
	if v, ok := m["confidence"].(float64); ok && v >= 0 && v <= 1 {
		return v
	}
	return def
}
