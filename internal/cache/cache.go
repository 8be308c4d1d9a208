// Package cache provides a TTL-based key-value store consulted before any
// source fan-out. Entries hold serialized snapshots only; callers never share
// live object graphs with the cache.
package cache

import (
	"context"
	"time"
)

// Store is the cache contract. An expired entry behaves identically to a
// missing one. Set overwrites unconditionally (last-write-wins), and
// Invalidate removes an entry regardless of its remaining TTL.
type Store interface {
	// Get returns the cached value for key, or found=false on a miss or
	// an expired entry. The returned slice is owned by the caller.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with the given TTL, replacing any
	// existing entry. The value is copied; the caller keeps ownership of
	// the slice it passed in.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes the entry for key. Removing a missing key is not
	// an error.
	Invalidate(ctx context.Context, key string) error
}
