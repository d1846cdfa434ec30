package cachestore

import (
	"container/list"
	"context"
	"sync"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/sirupsen/logrus"
)

type memoryEntry struct {
	key     string
	value   any
	expires time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

type counters struct {
	gets, sets, deletes     int64
	hits, misses, evictions int64
	peakMemory              int64
	opTime                  time.Duration
	opCount                 int64
}

// MemoryStore is an in-process pool backend with per-entry TTL, LRU eviction
// at MaxSize and a background sweeper running every CleanupInterval.
type MemoryStore struct {
	mu    sync.Mutex
	pool  domainCache.PoolName
	cfg   domainCache.PoolConfig
	items map[string]*list.Element
	order *list.List
	stats counters

	stopSweep context.CancelFunc
	now       func() time.Time
}

func NewMemoryStore(pool domainCache.PoolName, cfg domainCache.PoolConfig) *MemoryStore {
	s := &MemoryStore{
		pool:  pool,
		cfg:   cfg,
		items: make(map[string]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
	s.startSweeper(cfg.Cleanup())
	return s
}

func (s *MemoryStore) Pool() domainCache.PoolName {
	return s.pool
}

func (s *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.track(s.now())

	s.stats.gets++
	el, ok := s.items[key]
	if !ok {
		s.stats.misses++
		return nil, false, nil
	}
	entry := el.Value.(*memoryEntry)
	if entry.expired(s.now()) {
		s.removeElement(el)
		s.stats.misses++
		return nil, false, nil
	}
	s.order.MoveToFront(el)
	s.stats.hits++
	return entry.value, true, nil
}

// Set stores the value. A zero ttl uses the pool default TTL. Writes to a
// disabled pool are dropped.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.track(s.now())

	if !s.cfg.Enabled {
		return nil
	}
	s.stats.sets++
	if ttl <= 0 {
		ttl = s.cfg.TTL()
	}
	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}

	if el, ok := s.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expires = expires
		s.order.MoveToFront(el)
		return nil
	}

	s.items[key] = s.order.PushFront(&memoryEntry{key: key, value: value, expires: expires})
	s.evictOverflow()
	s.updatePeak()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.track(s.now())

	el, ok := s.items[key]
	if !ok {
		return false, nil
	}
	s.removeElement(el)
	s.stats.deletes++
	return true, nil
}

func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return false, nil
	}
	return !el.Value.(*memoryEntry).expired(s.now()), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order.Init()
	return nil
}

// Keys lists unexpired keys, most recently used first.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.items))
	for el := s.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*memoryEntry)
		if !entry.expired(now) {
			keys = append(keys, entry.key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) MDel(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.track(s.now())

	n := 0
	for _, k := range keys {
		if el, ok := s.items[k]; ok {
			s.removeElement(el)
			n++
		}
	}
	s.stats.deletes += int64(n)
	return n, nil
}

func (s *MemoryStore) Stats(_ context.Context) (domainCache.BackendStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domainCache.BackendStats{
		Size:        len(s.items),
		MaxSize:     s.cfg.MaxSize,
		Gets:        s.stats.gets,
		Sets:        s.stats.sets,
		Deletes:     s.stats.deletes,
		Hits:        s.stats.hits,
		Misses:      s.stats.misses,
		Evictions:   s.stats.evictions,
		MemoryUsage: int64(len(s.items)) * domainCache.BytesPerEntry,
		PeakMemory:  s.stats.peakMemory,
	}
	if lookups := s.stats.hits + s.stats.misses; lookups > 0 {
		st.HitRate = float64(s.stats.hits) / float64(lookups)
	}
	if s.stats.opCount > 0 {
		st.AverageResponseTime = s.stats.opTime / time.Duration(s.stats.opCount)
	}
	return st, nil
}

// Reconfigure applies a new pool configuration in place. Shrinking MaxSize
// evicts least recently used entries; a new CleanupInterval restarts the sweeper.
func (s *MemoryStore) Reconfigure(cfg domainCache.PoolConfig) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	s.evictOverflow()
	s.mu.Unlock()

	if prev.CleanupInterval != cfg.CleanupInterval {
		s.startSweeper(cfg.Cleanup())
	}
	if !cfg.Enabled && prev.Enabled {
		_ = s.Clear(context.Background())
	}
}

// Sweep removes expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryEntry).expired(now) {
			s.removeElement(el)
			n++
		}
		el = prev
	}
	return n
}

func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopSweep != nil {
		s.stopSweep()
		s.stopSweep = nil
	}
}

func (s *MemoryStore) startSweeper(interval time.Duration) {
	s.mu.Lock()
	if s.stopSweep != nil {
		s.stopSweep()
		s.stopSweep = nil
	}
	if interval <= 0 {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					logrus.Debugf("[CACHE_STORE] %s: swept %d expired entries", s.pool, n)
				}
			}
		}
	}()
}

func (s *MemoryStore) evictOverflow() {
	for s.cfg.MaxSize > 0 && len(s.items) > s.cfg.MaxSize {
		el := s.order.Back()
		if el == nil {
			return
		}
		s.removeElement(el)
		s.stats.evictions++
	}
}

func (s *MemoryStore) removeElement(el *list.Element) {
	s.order.Remove(el)
	delete(s.items, el.Value.(*memoryEntry).key)
}

func (s *MemoryStore) updatePeak() {
	if mem := int64(len(s.items)) * domainCache.BytesPerEntry; mem > s.stats.peakMemory {
		s.stats.peakMemory = mem
	}
}

// track records the duration of an operation started at start. Callers hold mu.
func (s *MemoryStore) track(start time.Time) {
	s.stats.opTime += time.Since(start)
	s.stats.opCount++
}
