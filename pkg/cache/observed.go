package cache

import (
	"context"
	"time"

	"github.com/matzehuels/depot/pkg/observability"
)

// observed reports hits, misses and writes of one kind of entry to the
// registered cache hooks.
type observed struct {
	Cache
	keyType string
}

// Observe wraps c so that its traffic is reported to
// [observability.Cache] under keyType. A nil c stays nil.
func Observe(c Cache, keyType string) Cache {
	if c == nil {
		return nil
	}
	return &observed{Cache: c, keyType: keyType}
}

func (o *observed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, hit, err := o.Cache.Get(ctx, key)
	if err == nil {
		if hit {
			observability.Cache().OnCacheHit(ctx, o.keyType)
		} else {
			observability.Cache().OnCacheMiss(ctx, o.keyType)
		}
	}
	return data, hit, err
}

func (o *observed) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := o.Cache.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, o.keyType, len(data))
	return nil
}
