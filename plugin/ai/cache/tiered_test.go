package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieredCache_PromotesFromL2(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l1 := NewMemoryCache(MemoryConfig{Capacity: 10})
	t.Cleanup(func() { _ = l1.Close() })
	l2 := newRedisCache(client, RedisConfig{KeyPrefix: "t:"})
	tiered := NewTieredCache(l1, l2, time.Minute)

	// Written by another instance: only in L2.
	require.NoError(t, l2.Set(ctx, "shared", []byte("v"), 0))

	val, ok := tiered.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	val, ok = l1.Get(ctx, "shared")
	require.True(t, ok, "L2 hit should be promoted to L1")
	assert.Equal(t, []byte("v"), val)
}

func TestTieredCache_WritesAndInvalidatesBoth(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l1 := NewMemoryCache(MemoryConfig{Capacity: 10})
	t.Cleanup(func() { _ = l1.Close() })
	l2 := newRedisCache(client, RedisConfig{KeyPrefix: "t:"})
	tiered := NewTieredCache(l1, l2, time.Minute)

	require.NoError(t, tiered.Set(ctx, "oracle:1", []byte("v"), 10*time.Minute))
	_, ok := l1.Get(ctx, "oracle:1")
	assert.True(t, ok)
	assert.True(t, mr.Exists("t:oracle:1"))

	require.NoError(t, tiered.Invalidate(ctx, "oracle:*"))
	_, ok = tiered.Get(ctx, "oracle:1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("t:oracle:1"))
}

func TestTieredCache_WithoutL2(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(MemoryConfig{Capacity: 10})
	t.Cleanup(func() { _ = l1.Close() })
	tiered := NewTieredCache(l1, nil, time.Minute)

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), 0))
	val, ok := tiered.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
	_, ok = tiered.Get(ctx, "missing")
	assert.False(t, ok)
}
