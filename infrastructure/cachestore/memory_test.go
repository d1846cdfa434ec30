package cachestore

import (
	"context"
	"testing"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(maxSize int) domainCache.PoolConfig {
	return domainCache.PoolConfig{MaxSize: maxSize, DefaultTTL: 60000, CleanupInterval: 0, Enabled: true}
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(domainCache.UserPool, testPool(2))
	defer s.Close()

	require.NoError(t, s.Set(ctx, "a", 1, 0))
	require.NoError(t, s.Set(ctx, "b", 2, 0))
	_, ok, _ := s.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, s.Set(ctx, "c", 3, 0))

	has, _ := s.Has(ctx, "b")
	assert.False(t, has)
	keys, _ := s.Keys(ctx)
	assert.Equal(t, []string{"c", "a"}, keys)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2*1024), stats.PeakMemory)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(domainCache.UserPool, testPool(10))
	defer s.Close()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "short", "x", time.Second))
	require.NoError(t, s.Set(ctx, "long", "y", 0))

	now = now.Add(2 * time.Second)
	_, ok, _ := s.Get(ctx, "short")
	assert.False(t, ok)

	keys, _ := s.Keys(ctx)
	assert.Equal(t, []string{"long"}, keys)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, s.Sweep())
	stats, _ := s.Stats(ctx)
	assert.Equal(t, 0, stats.Size)
}

func TestMemoryStore_MDelAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(domainCache.ContentPool, testPool(10))
	defer s.Close()

	for _, k := range []string{"content:1", "content:2", "content:3"} {
		require.NoError(t, s.Set(ctx, k, k, 0))
	}
	n, err := s.MDel(ctx, []string{"content:1", "content:2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	keys, _ := s.Keys(ctx)
	assert.Empty(t, keys)
}

func TestMemoryStore_Reconfigure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(domainCache.APIPool, testPool(5))
	defer s.Close()
	for _, k := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, s.Set(ctx, k, k, 0))
	}

	s.Reconfigure(testPool(2))
	keys, _ := s.Keys(ctx)
	assert.Equal(t, []string{"5", "4"}, keys)

	disabled := testPool(2)
	disabled.Enabled = false
	s.Reconfigure(disabled)
	require.NoError(t, s.Set(ctx, "6", 6, 0))
	keys, _ = s.Keys(ctx)
	assert.Empty(t, keys)
}

func TestRegistry_ApplyConfig(t *testing.T) {
	set := domainCache.DefaultConfigSet()
	r := NewMemoryRegistry(set)
	defer r.Close()

	assert.Equal(t, domainCache.AllPools(), r.Pools())

	next := set.Clone()
	u := next[domainCache.UserPool]
	u.MaxSize = 3
	next[domainCache.UserPool] = u

	require.NoError(t, r.ApplyConfig(context.Background(), domainCache.ChangeEvent{
		Changes: domainCache.DiffConfigs(set, next),
		Config:  next,
	}))

	b, ok := r.Backend(domainCache.UserPool)
	require.True(t, ok)
	stats, _ := b.Stats(context.Background())
	assert.Equal(t, 3, stats.MaxSize)
}
