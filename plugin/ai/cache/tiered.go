package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TieredCache reads through a fast local cache (L1) to a shared cache (L2).
// L2 hits are promoted to L1; writes go to both.
type TieredCache struct {
	l1    Cache
	l2    Cache
	l1TTL time.Duration
}

// NewTieredCache creates a tiered cache. l2 may be nil, in which case the
// tiered cache behaves like l1.
func NewTieredCache(l1, l2 Cache, l1TTL time.Duration) *TieredCache {
	return &TieredCache{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.l1.Get(ctx, key); ok {
		return value, true
	}
	if t.l2 == nil {
		return nil, false
	}
	value, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	if err := t.l1.Set(ctx, key, value, t.l1TTL); err != nil {
		slog.Debug("failed to promote cache entry", "key", key, "error", err)
	}
	return value, true
}

func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := t.l1TTL
	if ttl > 0 && (l1TTL <= 0 || ttl < l1TTL) {
		l1TTL = ttl
	}
	err := t.l1.Set(ctx, key, value, l1TTL)
	if t.l2 != nil {
		err = errors.Join(err, t.l2.Set(ctx, key, value, ttl))
	}
	return err
}

func (t *TieredCache) Invalidate(ctx context.Context, pattern string) error {
	err := t.l1.Invalidate(ctx, pattern)
	if t.l2 != nil {
		err = errors.Join(err, t.l2.Invalidate(ctx, pattern))
	}
	return err
}

var _ Cache = (*TieredCache)(nil)
