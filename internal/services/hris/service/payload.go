package service

import (
	"encoding/json"
	"strings"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/hris/domain"
)

// parsePayload decodes the raw body. HRIS platforms disagree on almost
// everything, so everything past this point reads the map tolerantly
// and treats absent or mistyped fields as absent
func parsePayload(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, perr.JSONErrf("webhook body is not valid json")
	}
	if m == nil {
		return nil, perr.JSONErrf("webhook body is not a json object")
	}
	return m, nil
}

// resolveEvent picks the event type: header hints win, then the
// payload's type fields in order
func resolveEvent(hints []string, payload map[string]any) (domain.EventType, bool) {
	for _, h := range hints {
		if e := domain.EventType(strings.ToLower(strings.TrimSpace(h))); e.Known() {
			return e, true
		}
	}
	for _, k := range []string{"type", "event_type", "eventType"} {
		v, ok := payload[k].(string)
		if !ok {
			continue
		}
		if e := domain.EventType(strings.ToLower(strings.TrimSpace(v))); e.Known() {
			return e, true
		}
	}
	return "", false
}

func section(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

func list(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	arr, _ := m[key].([]any)
	return arr
}

// str returns the first non-empty string among keys
func str(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func boolAt(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

// timeAt reads an RFC 3339 timestamp or a bare date
func timeAt(m map[string]any, key string) *time.Time {
	raw := str(m, key)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// subjectFrom maps an employee block onto a screening subject. Name
// can arrive whole or split; identifiers and contact points are all
// optional past the name
func subjectFrom(emp map[string]any) subject.Subject {
	s := subject.Subject{
		FullName:        str(emp, "full_name", "name"),
		DOB:             str(emp, "dob", "date_of_birth"),
		NationalIDLast4: str(emp, "national_id_last4", "ssn_last4"),
	}
	if s.FullName == "" {
		first := str(emp, "first_name", "given_name")
		last := str(emp, "last_name", "family_name")
		s.FullName = strings.TrimSpace(first + " " + last)
	}
	if v := str(emp, "email", "work_email"); v != "" {
		s.Emails = []string{v}
	}
	if v := str(emp, "phone", "mobile"); v != "" {
		s.Phones = []string{v}
	}
	if a := section(emp, "address"); a != nil {
		s.Addresses = []subject.Address{{
			Line1:      str(a, "line1", "street"),
			Line2:      str(a, "line2"),
			City:       str(a, "city"),
			Region:     str(a, "region", "state"),
			PostalCode: str(a, "postal_code", "zip"),
			Country:    str(a, "country"),
		}}
	}
	return s
}

// checksFrom reads the screening block's check list, normalized to the
// registry's naming. An empty or absent list falls back to defs; an
// unknown name passes through so submission validation can name it
func checksFrom(block map[string]any, defs []compliance.CheckType) []compliance.CheckType {
	var out []compliance.CheckType
	for _, raw := range list(block, "checks") {
		v, ok := raw.(string)
		if !ok {
			continue
		}
		v = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), "-", "_"))
		if v == "" {
			continue
		}
		out = append(out, compliance.CheckType(v))
	}
	if len(out) == 0 {
		out = append(out, defs...)
	}
	return out
}
