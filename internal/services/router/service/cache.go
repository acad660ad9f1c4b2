package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	"backcheck/internal/platform/store"
	"backcheck/internal/services/router/domain"
)

// CustomerProviderID is the pseudo provider id under which tenant-seeded
// data is fingerprinted. The cache pass probes it before any paid source
const CustomerProviderID = "customer"

const cachePrefix = "cache:"

// Fingerprint is the stable cache key for one (check, provider, subject,
// locale, params) shape. Subject identifiers and param values enter in
// canonical form, so spelling and ordering differences collapse to the
// same key. Params keep narrowed gap-fill queries from colliding with
// broad ones; pass nil for identity-scoped entries like tenant seeds
func Fingerprint(check compliance.CheckType, providerID string, sub subject.Subject, locale string, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(check))
	h.Write([]byte{'|'})
	h.Write([]byte(providerID))
	h.Write([]byte{'|'})
	h.Write([]byte(sub.CanonicalIdentity()))
	h.Write([]byte{'|'})
	h.Write([]byte(subject.Canon(locale)))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{'|'})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(subject.Canon(params[k])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache stores provider results behind the KV seam. PAID_EXTERNAL
// entries live under a global key; CUSTOMER_PROVIDED entries live under
// a tenant-prefixed key, so one tenant's seeded data is unreachable from
// another tenant's lookups
type Cache struct {
	kv  store.KV
	log logger.Logger
	now func() time.Time
}

// NewCache builds a cache over the given KV seam
func NewCache(kv store.KV, log logger.Logger) *Cache {
	return &Cache{
		kv:  kv,
		log: log.With().Str("component", "router-cache").Logger(),
		now: time.Now,
	}
}

func globalKey(fp string) string { return cachePrefix + fp }

func tenantKey(tenantID, fp string) string { return cachePrefix + tenantID + ":" + fp }

// Lookup fetches the entry for fp in the given tenant's view. Expired
// entries count as misses and are dropped
func (c *Cache) Lookup(ctx context.Context, fp, tenantID string) (domain.CacheEntry, domain.Freshness, bool) {
	for _, key := range []string{tenantKey(tenantID, fp), globalKey(fp)} {
		raw, found, err := c.kv.Get(ctx, key)
		if err != nil {
			c.log.Warn().Err(err).Msg("cache read failed")
			continue
		}
		if !found {
			continue
		}
		var entry domain.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			c.log.Warn().Err(err).Msg("cache entry corrupt, dropping")
			_ = c.kv.Del(ctx, key)
			continue
		}
		if entry.Origin == domain.OriginCustomerProvided && entry.TenantID != tenantID {
			continue
		}
		fresh := entry.FreshnessAt(c.now())
		if fresh == domain.FreshnessExpired {
			_ = c.kv.Del(ctx, key)
			continue
		}
		return entry, fresh, true
	}
	return domain.CacheEntry{}, domain.FreshnessExpired, false
}

// Put stores one entry under its origin's key space with a TTL that
// lapses at stale-until
func (c *Cache) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.Fingerprint == "" {
		return perr.InvalidArgf("cache entry needs a fingerprint")
	}
	if entry.StaleUntil.IsZero() {
		return perr.InvalidArgf("cache entry needs a stale-until bound")
	}

	key := globalKey(entry.Fingerprint)
	if entry.Origin == domain.OriginCustomerProvided {
		if entry.TenantID == "" {
			return perr.InvalidArgf("customer-provided cache entry needs a tenant")
		}
		key = tenantKey(entry.TenantID, entry.Fingerprint)
	} else {
		// paid data is shared; a tenant id here would leak scoping rules
		entry.TenantID = ""
	}

	ttl := entry.StaleUntil.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, string(raw), ttl)
}

// Seed implements domain.CacheSeedPort for tenant-supplied data. The
// fingerprint is derived here so callers only describe the data shape
func (c *Cache) Seed(ctx context.Context, req domain.SeedRequest) error {
	if req.TenantID == "" {
		return perr.InvalidArgf("seed needs a tenant")
	}
	if req.CheckType == "" || len(req.Data) == 0 {
		return perr.InvalidArgf("seed needs a check type and data")
	}
	if req.FreshFor <= 0 {
		req.FreshFor = 24 * time.Hour
	}
	if req.StaleFor < 0 {
		req.StaleFor = 0
	}
	source := req.Source
	if source == "" {
		source = CustomerProviderID
	}

	raw, err := json.Marshal(req.Data)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)

	now := c.now().UTC()
	return c.Put(ctx, domain.CacheEntry{
		Fingerprint: Fingerprint(req.CheckType, CustomerProviderID, req.Subject, req.Locale, nil),
		ProviderID:  source,
		CheckType:   req.CheckType,
		Data:        req.Data,
		RawHash:     hex.EncodeToString(sum[:]),
		Origin:      domain.OriginCustomerProvided,
		TenantID:    req.TenantID,
		AcquiredAt:  now,
		FreshUntil:  now.Add(req.FreshFor),
		StaleUntil:  now.Add(req.FreshFor + req.StaleFor),
	})
}
