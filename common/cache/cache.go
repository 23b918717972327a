// Package cache provides the two-tier read cache: a bounded in-memory tier
// for metadata-shaped values and a bounded on-disk tier for content-shaped
// values. Each tier evicts independently; both are invalidated by the version
// services after any mutation.
package cache

import (
	"context"
	"time"
)

// Cache is the contract shared by both tiers.
type Cache interface {
	// Get retrieves a value. An absent or expired entry is a miss; expired
	// entries are removed as a side effect of the miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes a single entry. Removing an absent key is a no-op.
	Invalidate(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	Close() error
}
