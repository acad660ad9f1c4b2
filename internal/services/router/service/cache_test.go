package service

import (
	"context"
	"testing"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
	"backcheck/internal/platform/logger"
	"backcheck/internal/platform/store"
	"backcheck/internal/services/router/domain"
)

func testCache(now time.Time) *Cache {
	c := NewCache(store.NewMemKV(), *logger.Named("cache-test"))
	c.now = func() time.Time { return now }
	return c
}

func TestFingerprintCanonicalizes(t *testing.T) {
	a := subject.Subject{FullName: "Jane Doe", DOB: "1990-05-01"}
	b := subject.Subject{FullName: "  JANE   DOE ", DOB: "1990-05-01"}

	fa := Fingerprint(compliance.CheckIdentity, "prov-a", a, "US", nil)
	fb := Fingerprint(compliance.CheckIdentity, "prov-a", b, "us", nil)
	if fa != fb {
		t.Fatalf("canonical subjects should share a fingerprint: %s vs %s", fa, fb)
	}

	if Fingerprint(compliance.CheckIdentity, "prov-b", a, "US", nil) == fa {
		t.Fatalf("provider id must enter the fingerprint")
	}
	if Fingerprint(compliance.CheckEmployment, "prov-a", a, "US", nil) == fa {
		t.Fatalf("check type must enter the fingerprint")
	}

	narrowed := Fingerprint(compliance.CheckIdentity, "prov-a", a, "US", map[string]string{"counties": "Travis"})
	if narrowed == fa {
		t.Fatalf("params must enter the fingerprint")
	}
	again := Fingerprint(compliance.CheckIdentity, "prov-a", a, "US", map[string]string{"counties": " TRAVIS "})
	if narrowed != again {
		t.Fatalf("param values should canonicalize: %s vs %s", narrowed, again)
	}
}

func TestCacheFreshnessWindows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := testCache(now)
	ctx := context.Background()

	entry := domain.CacheEntry{
		Fingerprint: "fp-1",
		ProviderID:  "prov-a",
		CheckType:   compliance.CheckIdentity,
		Data:        map[string]any{"full_name": "Jane Doe"},
		Origin:      domain.OriginPaidExternal,
		AcquiredAt:  now,
		FreshUntil:  now.Add(time.Hour),
		StaleUntil:  now.Add(3 * time.Hour),
	}
	if err := c.Put(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, fresh, ok := c.Lookup(ctx, "fp-1", "tenant-a")
	if !ok || fresh != domain.FreshnessFresh {
		t.Fatalf("fresh lookup: ok=%v fresh=%v", ok, fresh)
	}
	if got.Data["full_name"] != "Jane Doe" {
		t.Fatalf("payload lost: %+v", got.Data)
	}

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, fresh, ok = c.Lookup(ctx, "fp-1", "tenant-a"); !ok || fresh != domain.FreshnessStale {
		t.Fatalf("stale lookup: ok=%v fresh=%v", ok, fresh)
	}

	c.now = func() time.Time { return now.Add(4 * time.Hour) }
	if _, _, ok = c.Lookup(ctx, "fp-1", "tenant-a"); ok {
		t.Fatalf("expired entry must read as a miss")
	}
}

func TestCacheTenantIsolation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := testCache(now)
	ctx := context.Background()

	err := c.Put(ctx, domain.CacheEntry{
		Fingerprint: "fp-cust",
		ProviderID:  "customer",
		CheckType:   compliance.CheckEmployment,
		Data:        map[string]any{"employers": []any{}},
		Origin:      domain.OriginCustomerProvided,
		TenantID:    "tenant-a",
		AcquiredAt:  now,
		FreshUntil:  now.Add(time.Hour),
		StaleUntil:  now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, _, ok := c.Lookup(ctx, "fp-cust", "tenant-a"); !ok {
		t.Fatalf("owner tenant should see its entry")
	}
	if _, _, ok := c.Lookup(ctx, "fp-cust", "tenant-b"); ok {
		t.Fatalf("customer-provided entry leaked across tenants")
	}
}

func TestCachePaidEntriesShared(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := testCache(now)
	ctx := context.Background()

	err := c.Put(ctx, domain.CacheEntry{
		Fingerprint: "fp-paid",
		ProviderID:  "prov-a",
		CheckType:   compliance.CheckIdentity,
		Data:        map[string]any{"confidence": 0.8},
		Origin:      domain.OriginPaidExternal,
		TenantID:    "tenant-a", // must be scrubbed on write
		AcquiredAt:  now,
		FreshUntil:  now.Add(time.Hour),
		StaleUntil:  now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, _, ok := c.Lookup(ctx, "fp-paid", "tenant-b")
	if !ok {
		t.Fatalf("paid entries are shared across tenants")
	}
	if got.TenantID != "" {
		t.Fatalf("paid entry kept a tenant id: %q", got.TenantID)
	}
}

func TestCachePutValidation(t *testing.T) {
	c := testCache(time.Now())
	ctx := context.Background()

	if err := c.Put(ctx, domain.CacheEntry{StaleUntil: time.Now().Add(time.Hour)}); err == nil {
		t.Fatalf("missing fingerprint accepted")
	}
	if err := c.Put(ctx, domain.CacheEntry{Fingerprint: "x"}); err == nil {
		t.Fatalf("missing stale-until accepted")
	}
	err := c.Put(ctx, domain.CacheEntry{
		Fingerprint: "x",
		Origin:      domain.OriginCustomerProvided,
		StaleUntil:  time.Now().Add(time.Hour),
	})
	if err == nil {
		t.Fatalf("customer entry without tenant accepted")
	}
}

func TestSeedRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := testCache(now)
	ctx := context.Background()
	sub := subject.Subject{FullName: "Jane Doe", DOB: "1990-05-01"}

	err := c.Seed(ctx, domain.SeedRequest{
		CheckType: compliance.CheckEmployment,
		Subject:   sub,
		Locale:    "US",
		TenantID:  "tenant-a",
		Source:    "workday",
		Data:      map[string]any{"employers": []any{map[string]any{"name": "Acme Corp"}}},
		FreshFor:  time.Hour,
		StaleFor:  time.Hour,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fp := Fingerprint(compliance.CheckEmployment, CustomerProviderID, sub, "US", nil)
	entry, fresh, ok := c.Lookup(ctx, fp, "tenant-a")
	if !ok || fresh != domain.FreshnessFresh {
		t.Fatalf("seeded entry not found: ok=%v fresh=%v", ok, fresh)
	}
	if entry.ProviderID != "workday" || entry.Origin != domain.OriginCustomerProvided {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.RawHash == "" {
		t.Fatalf("seed should hash the payload")
	}
}

func TestSeedValidation(t *testing.T) {
	c := testCache(time.Now())
	ctx := context.Background()

	err := c.Seed(ctx, domain.SeedRequest{CheckType: compliance.CheckIdentity, Data: map[string]any{"a": 1}})
	if err == nil {
		t.Fatalf("seed without tenant accepted")
	}
	err = c.Seed(ctx, domain.SeedRequest{TenantID: "tenant-a"})
	if err == nil {
		t.Fatalf("seed without check/data accepted")
	}
}
