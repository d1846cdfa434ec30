package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/valkey"
	valkeylib "github.com/valkey-io/valkey-go"
)

// ValkeyStore is a pool backend keeping entries in Valkey under
// "<prefix>:pool:<name>:". Values are stored as JSON and read back as raw JSON.
type ValkeyStore struct {
	client *valkey.Client
	pool   domainCache.PoolName
	prefix string

	cfgMu sync.RWMutex
	cfg   domainCache.PoolConfig

	gets, sets, deletes, hits, misses atomic.Int64
	opNanos, opCount                  atomic.Int64
}

func NewValkeyStore(client *valkey.Client, pool domainCache.PoolName, cfg domainCache.PoolConfig) *ValkeyStore {
	return &ValkeyStore{
		client: client,
		pool:   pool,
		prefix: client.PoolPrefix(string(pool)),
		cfg:    cfg,
	}
}

func (s *ValkeyStore) fullKey(key string) string {
	return s.prefix + key
}

func (s *ValkeyStore) inner() valkeylib.Client {
	return s.client.Inner()
}

func (s *ValkeyStore) config() domainCache.PoolConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *ValkeyStore) track(start time.Time) {
	s.opNanos.Add(int64(time.Since(start)))
	s.opCount.Add(1)
}

func (s *ValkeyStore) Get(ctx context.Context, key string) (any, bool, error) {
	defer s.track(time.Now())
	s.gets.Add(1)

	cmd := s.inner().B().Get().Key(s.fullKey(key)).Build()
	data, err := s.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			s.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s from %s: %w", key, s.pool, err)
	}
	s.hits.Add(1)
	return json.RawMessage(data), true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	defer s.track(time.Now())

	cfg := s.config()
	if !cfg.Enabled {
		return nil
	}
	s.sets.Add(1)
	if ttl <= 0 {
		ttl = cfg.TTL()
	}
	// EX has second granularity
	if ttl < time.Second {
		ttl = time.Second
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	cmd := s.inner().B().Set().
		Key(s.fullKey(key)).
		Value(string(data)).
		Ex(ttl).
		Build()
	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set %s in %s: %w", key, s.pool, err)
	}
	return nil
}

func (s *ValkeyStore) Delete(ctx context.Context, key string) (bool, error) {
	defer s.track(time.Now())

	cmd := s.inner().B().Del().Key(s.fullKey(key)).Build()
	n, err := s.inner().Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s from %s: %w", key, s.pool, err)
	}
	s.deletes.Add(n)
	return n > 0, nil
}

func (s *ValkeyStore) Has(ctx context.Context, key string) (bool, error) {
	cmd := s.inner().B().Exists().Key(s.fullKey(key)).Build()
	count, err := s.inner().Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check %s in %s: %w", key, s.pool, err)
	}
	return count > 0, nil
}

// Keys lists the pool keys with SCAN, stripped of the pool prefix.
func (s *ValkeyStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.ScanPrefix(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("keys of %s: %w", s.pool, err)
	}
	return keys, nil
}

func (s *ValkeyStore) MDel(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	defer s.track(time.Now())

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.fullKey(k)
	}
	n, err := s.client.DeleteKeys(ctx, full)
	s.deletes.Add(n)
	if err != nil {
		return int(n), fmt.Errorf("mdel in %s: %w", s.pool, err)
	}
	return int(n), nil
}

func (s *ValkeyStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	_, err = s.MDel(ctx, keys)
	return err
}

// Stats counts keys with SCAN. Evictions happen server side and are not reported.
func (s *ValkeyStore) Stats(ctx context.Context) (domainCache.BackendStats, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return domainCache.BackendStats{}, err
	}
	hits, misses := s.hits.Load(), s.misses.Load()
	st := domainCache.BackendStats{
		Size:        len(keys),
		MaxSize:     s.config().MaxSize,
		Gets:        s.gets.Load(),
		Sets:        s.sets.Load(),
		Deletes:     s.deletes.Load(),
		Hits:        hits,
		Misses:      misses,
		MemoryUsage: int64(len(keys)) * domainCache.BytesPerEntry,
	}
	st.PeakMemory = st.MemoryUsage
	if hits+misses > 0 {
		st.HitRate = float64(hits) / float64(hits+misses)
	}
	if n := s.opCount.Load(); n > 0 {
		st.AverageResponseTime = time.Duration(s.opNanos.Load() / n)
	}
	return st, nil
}

// Reconfigure swaps the pool configuration used for default TTLs and sizing.
func (s *ValkeyStore) Reconfigure(cfg domainCache.PoolConfig) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}
