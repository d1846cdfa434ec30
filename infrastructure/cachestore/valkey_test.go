package cachestore

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"testing"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/valkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValkey(t *testing.T) *valkey.Client {
	t.Helper()
	addr := os.Getenv("VALKEY_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	vk, err := valkey.NewClient(valkey.Config{Address: addr, KeyPrefix: "azcache-test", ConnectTimeout: time.Second})
	if err != nil {
		t.Skip("No valkey")
	}
	t.Cleanup(vk.Close)
	return vk
}

func TestValkeyStore_RoundTrip(t *testing.T) {
	vk := newTestValkey(t)
	ctx := context.Background()
	s := NewValkeyStore(vk, domainCache.UserPool, testPool(100))
	require.NoError(t, s.Clear(ctx))
	t.Cleanup(func() { _ = s.Clear(ctx) })

	require.NoError(t, s.Set(ctx, "user:1:profile", map[string]string{"name": "ana"}, time.Minute))
	require.NoError(t, s.Set(ctx, "user:2:profile", "x", 0))
	require.NoError(t, s.Set(ctx, "content:1", "y", 0))

	v, ok, err := s.Get(ctx, "user:1:profile")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"ana"}`, string(v.(json.RawMessage)))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"content:1", "user:1:profile", "user:2:profile"}, keys)

	n, err := s.MDel(ctx, []string{"user:1:profile", "user:2:profile"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	has, err := s.Has(ctx, "content:1")
	require.NoError(t, err)
	assert.True(t, has)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 100, stats.MaxSize)
}
