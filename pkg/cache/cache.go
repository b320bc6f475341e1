// Package cache stores parsed descriptors and version listings between runs.
//
// Three backends are provided: [FileCache] for CLI use, [RedisCache] for
// shared deployments and [NullCache] when caching is disabled. Keys are built
// by a [Keyer] so that several tools can share one backend under different
// prefixes.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
//
// Get reports a miss with hit == false and a nil error. A ttl of zero stores
// the entry without expiry.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON reads key and decodes it into a T. An entry that fails to decode
// is deleted and reported as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var v T
	data, hit, err := c.Get(ctx, key)
	if err != nil || !hit {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		_ = c.Delete(ctx, key)
		return v, false, nil
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
