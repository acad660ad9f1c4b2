package store

import (
	"context"
	"sync"
	"time"
)

// MemKV is an in-process KV seam with the same contract as the redis
// client. It backs caches in tests and in deployments that run without
// redis. Expiry is lazy: keys are dropped on read after their deadline
type MemKV struct {
	mu sync.Mutex
	m  map[string]memEntry
}

type memEntry struct {
	val string
	exp time.Time // zero means no expiry
}

// NewMemKV returns an empty in-memory KV
func NewMemKV() *MemKV {
	return &MemKV{m: make(map[string]memEntry)}
}

// Get implements KV
func (s *MemKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return "", false, nil
	}
	if !e.exp.IsZero() && !time.Now().Before(e.exp) {
		delete(s.m, key)
		return "", false, nil
	}
	return e.val, true, nil
}

// Set implements KV; ttl <= 0 means no expiry
func (s *MemKV) Set(_ context.Context, key, val string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = memEntry{val: val, exp: exp}
	s.mu.Unlock()
	return nil
}

// Del implements KV
func (s *MemKV) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return nil
}

// Close implements KV
func (s *MemKV) Close() error { return nil }
