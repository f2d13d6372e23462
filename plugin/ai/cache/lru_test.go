package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// manualClock drives LRU expiry in tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLRU(capacity int, ttl time.Duration) (*LRUCache, *manualClock) {
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	c := NewLRUCache(capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_BasicOperations(t *testing.T) {
	cache, _ := newTestLRU(100, time.Minute)

	t.Run("SetAndGet", func(t *testing.T) {
		cache.Set("key1", []byte("value1"), 0)

		val, ok := cache.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, []byte("value1"), val)
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		val, ok := cache.Get("nonexistent")
		assert.False(t, ok)
		assert.Nil(t, val)
	})

	t.Run("UpdateExisting", func(t *testing.T) {
		cache.Set("key2", []byte("original"), 0)
		cache.Set("key2", []byte("updated"), 0)

		val, ok := cache.Get("key2")
		assert.True(t, ok)
		assert.Equal(t, []byte("updated"), val)
	})

	t.Run("Stats", func(t *testing.T) {
		stats := cache.Stats()
		assert.Equal(t, 2, stats.Size)
		assert.Equal(t, int64(2), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.InDelta(t, 2.0/3.0, stats.HitRate(), 0.001)
	})
}

func TestLRUCache_Expiration(t *testing.T) {
	cache, clock := newTestLRU(100, time.Minute)

	cache.Set("short", []byte("value"), 10*time.Second)
	cache.Set("default", []byte("value"), 0)

	_, ok := cache.Get("short")
	assert.True(t, ok)

	clock.Advance(11 * time.Second)
	_, ok = cache.Get("short")
	assert.False(t, ok)
	_, ok = cache.Get("default")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestLRUCache_Eviction(t *testing.T) {
	cache, _ := newTestLRU(3, time.Minute)

	cache.Set("a", []byte("1"), 0)
	cache.Set("b", []byte("2"), 0)
	cache.Set("c", []byte("3"), 0)

	// Touch "a" so "b" becomes the least recently used.
	_, _ = cache.Get("a")
	cache.Set("d", []byte("4"), 0)

	_, ok := cache.Get("b")
	assert.False(t, ok, "b should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := cache.Get(key)
		assert.True(t, ok, "%s should be present", key)
	}
}

func TestLRUCache_Invalidate(t *testing.T) {
	cache, _ := newTestLRU(100, time.Minute)

	cache.Set("oracle:1", []byte("x"), 0)
	cache.Set("oracle:2", []byte("x"), 0)
	cache.Set("other:1", []byte("x"), 0)

	assert.Equal(t, 1, cache.Invalidate("other:1"))
	assert.Equal(t, 0, cache.Invalidate("missing"))
	assert.Equal(t, 2, cache.Invalidate("oracle:*"))
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestLRUCache_Concurrent(t *testing.T) {
	cache := NewLRUCache(50, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n*100+j)%80)
				cache.Set(key, []byte("v"), 0)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Stats().Size, 50)
}

func TestMemoryCache_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	m := NewMemoryCache(MemoryConfig{Capacity: 10, CleanupInterval: 10 * time.Millisecond})

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	val, ok := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, m.Invalidate(ctx, "k"))
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestKey(t *testing.T) {
	a := Key("oracle", "book lunch", "ctx")
	b := Key("oracle", "book lunch", "ctx")
	c := Key("oracle", "book lunchctx")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "oracle:")
	assert.NotContains(t, a, "lunch")
}
