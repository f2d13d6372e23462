// Package cache provides byte caches for oracle interpretations: an in-process
// LRU, a Redis cache for multi-instance deployments, and a tiered front over both.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the cache interface.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns: value, whether it exists
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value in cache.
	// ttl: expiration time, 0 uses the cache default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate invalidates cache entries.
	// pattern: exact key, or a prefix ending in * (oracle:*)
	Invalidate(ctx context.Context, pattern string) error
}

// Stats represents cache statistics.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Key builds a cache key from a namespace and components. The components are
// hashed so raw utterances never appear in keys.
func Key(namespace string, components ...string) string {
	h := sha256.Sum256([]byte(strings.Join(components, "\x00")))
	return namespace + ":" + hex.EncodeToString(h[:])[:32]
}
