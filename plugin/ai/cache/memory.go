package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig configures the in-process cache.
type MemoryConfig struct {
	Capacity        int           // Maximum number of entries (default: 1000)
	DefaultTTL      time.Duration // Default TTL for entries (default: 5 minutes)
	CleanupInterval time.Duration // Interval for expired entry cleanup (default: 1 minute)
}

// DefaultMemoryConfig returns default memory cache configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:        1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// MemoryCache implements Cache with LRU eviction and a background sweeper.
type MemoryCache struct {
	lru *LRUCache

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewMemoryCache creates a memory cache and starts its sweeper. Call Close
// to stop it.
func NewMemoryCache(cfg MemoryConfig) *MemoryCache {
	def := DefaultMemoryConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryCache{
		lru:    NewLRUCache(cfg.Capacity, cfg.DefaultTTL),
		cancel: cancel,
	}

	m.wg.Add(1)
	go m.cleanupLoop(ctx, cfg.CleanupInterval)
	return m
}

// Close stops the sweeper. It is safe to call more than once.
func (m *MemoryCache) Close() error {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.lru.Set(key, value, ttl)
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, pattern string) error {
	m.lru.Invalidate(pattern)
	return nil
}

// Stats returns cache statistics.
func (m *MemoryCache) Stats() Stats {
	return m.lru.Stats()
}

func (m *MemoryCache) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.lru.CleanupExpired()
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
