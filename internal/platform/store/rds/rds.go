// Package rds provides a redis client for cache lookups and counters
package rds

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures redis connectivity
type Config struct {
	Addr     string
	DB       int
	Password string
}

// RDS wraps a go-redis client behind the store KV seam
type RDS struct {
	c *redis.Client
}

// Open builds the client; go-redis dials lazily on first command
func Open(cfg Config) (*RDS, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &RDS{c: c}, nil
}

// Get returns (value, found, err); a missing key is not an error
func (r *RDS) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes key with a ttl; ttl <= 0 means no expiry
func (r *RDS) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return r.c.Set(ctx, key, val, ttl).Err()
}

// Del removes keys; missing keys are ignored
func (r *RDS) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

// Incr atomically increments key and returns the new value
func (r *RDS) Incr(ctx context.Context, key string) (int64, error) {
	return r.c.Incr(ctx, key).Result()
}

// Expire sets a ttl on an existing key
func (r *RDS) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.c.Expire(ctx, key, ttl).Err()
}

// Ping verifies connectivity
func (r *RDS) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

// Close closes the client
func (r *RDS) Close() error {
	if r == nil || r.c == nil {
		return nil
	}
	return r.c.Close()
}
