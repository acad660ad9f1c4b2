package subject

import "testing"

func TestCanon_Table(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{name: "identity ascii", in: "jane doe", out: "jane doe"},
		{name: "case fold", in: "JaNe DoE", out: "jane doe"},
		{name: "fullwidth fold", in: "ＪＡＮＥ", out: "jane"},
		{name: "combining marks stripped", in: "Réne", out: "rene"},
		{name: "zero width removed", in: "ja​ne", out: "jane"},
		{name: "whitespace collapsed", in: "  jane \t doe \n", out: "jane doe"},
		{name: "empty", in: "", out: ""},
		{name: "invalid utf8 dropped", in: string([]byte{0xff, 'j', 'o'}), out: "jo"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Canon(tc.in); got != tc.out {
				t.Fatalf("Canon(%q) = %q, want %q", tc.in, got, tc.out)
			}
		})
	}
}

func TestCanonicalIdentity_StableAcrossOrderAndCase(t *testing.T) {
	a := Subject{
		FullName: "Jane DOE",
		Aliases:  []string{"J. Doe", "Janie Doe"},
		DOB:      "1990-05-01",
		Emails:   []string{"B@example.com", "a@example.com"},
	}
	b := Subject{
		FullName: "jane doe",
		Aliases:  []string{"janie doe", "j. doe"},
		DOB:      "1990-05-01",
		Emails:   []string{"a@example.com", "b@example.com"},
	}

	if a.CanonicalIdentity() != b.CanonicalIdentity() {
		t.Fatalf("identities differ:\n a=%q\n b=%q", a.CanonicalIdentity(), b.CanonicalIdentity())
	}

	c := b
	c.DOB = "1991-05-01"
	if a.CanonicalIdentity() == c.CanonicalIdentity() {
		t.Fatalf("identity should change when DOB changes")
	}
}

func TestNameVariants_DedupesAndKeepsFullNameFirst(t *testing.T) {
	s := Subject{FullName: "Jane Doe", Aliases: []string{"JANE DOE", "Janie", ""}}
	got := s.NameVariants()
	want := []string{"jane doe", "janie"}

	if len(got) != len(want) {
		t.Fatalf("variants = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("variants[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegions_CollectsAddressAndLicense(t *testing.T) {
	s := Subject{
		Addresses: []Address{
			{City: "Austin", Region: "TX"},
			{City: "Portland", Region: "OR"},
			{City: "Dallas", Region: "tx"},
		},
		LicenseRegion: "CA",
	}
	got := s.Regions()
	want := []string{"ca", "or", "tx"}

	if len(got) != len(want) {
		t.Fatalf("regions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("regions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
