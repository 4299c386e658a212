// Package cache provides the storage layers behind a prefetch run.
//
// Two kinds of storage live here. [Cache] is a small key/value interface for
// registry metadata with a time-to-live, implemented on the local filesystem
// ([FileCache]), in Redis ([RedisCache]) or not at all ([NullCache]). [Store]
// is the content-addressed artifact store: every fetched artifact lives under
// a path derived from its checksum and is written exactly once.
//
// An optional [S3Mirror] lets several machines share fetched artifacts. The
// mirror is only a source of bytes; everything read from it is verified
// before it enters the store.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values with an optional time-to-live. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}
