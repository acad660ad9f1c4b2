// Package subject defines the person under screening and the canonical
// forms used for cache fingerprints and fact distinctness.
// Canonical pipeline
// 1 UTF-8 repair drop invalid bytes
// 2 Unicode NFKC normalization
// 3 Case folding
// 4 Remove zero-width and combining marks
// 5 Width fold fullwidth to ASCII
// 6 Collapse whitespace to single spaces and trim
package subject

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Address is one postal address tied to a subject
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"` // state / province / county code
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Subject carries the identifiers a screening starts from.
// Immutable for the lifetime of one screening
type Subject struct {
	FullName        string    `json:"full_name" validate:"required,min=2"`
	Aliases         []string  `json:"aliases,omitempty"`
	DOB             string    `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02"`
	NationalIDLast4 string    `json:"national_id_last4,omitempty" validate:"omitempty,len=4,numeric"`
	Emails          []string  `json:"emails,omitempty" validate:"omitempty,dive,email"`
	Phones          []string  `json:"phones,omitempty"`
	Addresses       []Address `json:"addresses,omitempty"`
	DriversLicense  string    `json:"drivers_license,omitempty"`
	LicenseRegion   string    `json:"license_region,omitempty"`
	Passport        string    `json:"passport,omitempty"`
	PassportCountry string    `json:"passport_country,omitempty"`
	EmployerHints   []string  `json:"employer_hints,omitempty"`
}

// pool of fresh transformer chains (order mirrors the documented pipeline)
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)), // strip combining marks
			runes.Remove(runes.In(unicode.Cf)), // strip format chars ZWJ ZWNJ FEFF etc
			width.Fold,
		)
	},
}

// Canon returns the canonical token form of s.
// Two values are "the same" for distinctness and fingerprinting iff
// their Canon forms are byte-equal
func Canon(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)

	return strings.Join(strings.Fields(ns), " ")
}

// CanonAddress flattens an address into one canonical tuple string
func CanonAddress(a Address) string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country} {
		if c := Canon(p); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "|")
}

// CanonicalIdentity renders the subject's identifier fields as one stable
// string. Field order is fixed and list-valued fields are sorted, so two
// subjects that differ only in casing, width, or list order produce the
// same identity string
func (s Subject) CanonicalIdentity() string {
	var b strings.Builder

	put := func(key, val string) {
		if val == "" {
			return
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(val)
		b.WriteByte(';')
	}
	putList := func(key string, vals []string) {
		canon := make([]string, 0, len(vals))
		for _, v := range vals {
			if c := Canon(v); c != "" {
				canon = append(canon, c)
			}
		}
		if len(canon) == 0 {
			return
		}
		sort.Strings(canon)
		put(key, strings.Join(canon, ","))
	}

	put("name", Canon(s.FullName))
	putList("alias", s.Aliases)
	put("dob", Canon(s.DOB))
	put("nid4", Canon(s.NationalIDLast4))
	putList("email", s.Emails)
	putList("phone", s.Phones)

	addrs := make([]string, 0, len(s.Addresses))
	for _, a := range s.Addresses {
		if c := CanonAddress(a); c != "" {
			addrs = append(addrs, c)
		}
	}
	sort.Strings(addrs)
	putList("addr", addrs)

	put("dl", Canon(s.DriversLicense))
	put("dlr", Canon(s.LicenseRegion))
	put("passport", Canon(s.Passport))
	put("passportc", Canon(s.PassportCountry))

	return b.String()
}

// NameVariants returns the full name plus aliases, canonical and distinct,
// full name first
func (s Subject) NameVariants() []string {
	out := make([]string, 0, 1+len(s.Aliases))
	seen := make(map[string]bool, 1+len(s.Aliases))
	for _, n := range append([]string{s.FullName}, s.Aliases...) {
		c := Canon(n)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Regions returns the distinct canonical region codes found across the
// subject's addresses and license
func (s Subject) Regions() []string {
	seen := make(map[string]bool, len(s.Addresses)+1)
	out := make([]string, 0, len(s.Addresses)+1)
	add := func(r string) {
		c := Canon(r)
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, a := range s.Addresses {
		add(a.Region)
	}
	add(s.LicenseRegion)
	sort.Strings(out)
	return out
}
