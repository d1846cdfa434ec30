package cache

import (
	"context"
	"time"
)

// BackendStats is what a pool backend reports about itself.
type BackendStats struct {
	Size                int           `json:"size"`
	MaxSize             int           `json:"max_size"`
	Gets                int64         `json:"gets"`
	Sets                int64         `json:"sets"`
	Deletes             int64         `json:"deletes"`
	Hits                int64         `json:"hits"`
	Misses              int64         `json:"misses"`
	Evictions           int64         `json:"evictions"`
	HitRate             float64       `json:"hit_rate"`
	MemoryUsage         int64         `json:"memory_usage"`
	PeakMemory          int64         `json:"peak_memory"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}

// Backend is the storage surface of one pool. The governance layer only ever
// talks to pools through it.
type Backend interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	MDel(ctx context.Context, keys []string) (int, error)
	Stats(ctx context.Context) (BackendStats, error)
}

// BackendRegistry resolves pool names to their backends.
type BackendRegistry interface {
	Backend(pool PoolName) (Backend, bool)
	Pools() []PoolName
}
