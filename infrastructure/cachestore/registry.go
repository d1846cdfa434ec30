package cachestore

import (
	"context"
	"sync"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

// Reconfigurable backends accept pool configuration changes in place.
type Reconfigurable interface {
	Reconfigure(cfg domainCache.PoolConfig)
}

type closer interface {
	Close()
}

// Registry maps pools to their backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[domainCache.PoolName]domainCache.Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[domainCache.PoolName]domainCache.Backend)}
}

// NewMemoryRegistry builds one in-process store per pool of the set.
func NewMemoryRegistry(set domainCache.ConfigSet) *Registry {
	r := NewRegistry()
	for _, pool := range set.Pools() {
		r.Register(pool, NewMemoryStore(pool, set[pool]))
	}
	return r
}

// NewValkeyRegistry builds one Valkey-backed store per pool of the set, all
// sharing the client.
func NewValkeyRegistry(client *valkey.Client, set domainCache.ConfigSet) *Registry {
	r := NewRegistry()
	for _, pool := range set.Pools() {
		r.Register(pool, NewValkeyStore(client, pool, set[pool]))
	}
	return r
}

func (r *Registry) Register(pool domainCache.PoolName, backend domainCache.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.backends[pool]; ok {
		if c, ok := prev.(closer); ok {
			c.Close()
		}
	}
	r.backends[pool] = backend
}

func (r *Registry) Backend(pool domainCache.PoolName) (domainCache.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[pool]
	return b, ok
}

// Pools returns the registered pools in canonical order.
func (r *Registry) Pools() []domainCache.PoolName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainCache.PoolName, 0, len(r.backends))
	for _, p := range domainCache.AllPools() {
		if _, ok := r.backends[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ApplyConfig is a change listener pushing the new configuration into every
// reconfigurable backend.
func (r *Registry) ApplyConfig(_ context.Context, event domainCache.ChangeEvent) error {
	if len(event.Changes) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pool, cfg := range event.Config {
		b, ok := r.backends[pool]
		if !ok {
			continue
		}
		if rc, ok := b.(Reconfigurable); ok {
			rc.Reconfigure(cfg)
		}
	}
	logrus.Debugf("[CACHE_STORE] applied configuration version %s", event.Version)
	return nil
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.backends {
		if c, ok := b.(closer); ok {
			c.Close()
		}
	}
}
