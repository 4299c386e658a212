package cache

import (
	"context"
	"time"

	"github.com/matzehuels/prefetch/pkg/observability"
)

// NullCache stands in for the metadata cache when caching is turned off,
// as with fetch-deps --no-cache. Every lookup misses and writes are
// dropped, so each registry request goes to the network.
type NullCache struct{}

// NewNullCache returns a [NullCache].
func NewNullCache() Cache { return NullCache{} }

// Get reports a miss.
func (NullCache) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	observability.Cache().OnCacheMiss(ctx, "metadata")
	return nil, false, nil
}

func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NullCache) Delete(context.Context, string) error { return nil }

func (NullCache) Close() error { return nil }

var _ Cache = NullCache{}
