package cache

import (
	"context"
	"time"
)

// Scoped prefixes every key of an inner cache. Several tools can then share
// one Redis database without colliding:
//
//	meta := cache.NewScoped(redis, "prefetch:")
//	npm := cache.NewScoped(meta, "npm:")
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped wraps inner so all keys carry prefix. A nil inner is a
// [NullCache].
func NewScoped(inner Cache, prefix string) Cache {
	if inner == nil {
		inner = NewNullCache()
	}
	return &Scoped{inner: inner, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close closes the inner cache.
func (s *Scoped) Close() error { return s.inner.Close() }

var _ Cache = (*Scoped)(nil)
