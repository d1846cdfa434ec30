package keyworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, workers, queue int) *Pool {
	t.Helper()
	pool := NewPool("TEST_POOL", workers, queue)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})
	return pool
}

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := startPool(t, 2, 10)

	start := time.Now()
	ok := pool.TryDispatch(Job{
		Key: "user:1",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	require.True(t, ok)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestPool_SameKeySequential(t *testing.T) {
	pool := startPool(t, 4, 100)

	var (
		mu      sync.Mutex
		results []int
		wg      sync.WaitGroup
	)
	for i := 1; i <= 5; i++ {
		val := i
		wg.Add(1)
		require.True(t, pool.TryDispatch(Job{
			Key: "content:42",
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, results)
}

func TestPool_RespectsMaxWorkers(t *testing.T) {
	maxWorkers := 3
	pool := startPool(t, maxWorkers, 100)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.TryDispatch(Job{
			Key: fmt.Sprintf("key-%d", i),
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				current := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if current <= m || atomic.CompareAndSwapInt32(&maxActive, m, current) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			},
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(maxWorkers))
}

func TestPool_StopRunsQueuedJobs(t *testing.T) {
	pool := NewPool("TEST_POOL", 1, 10)
	pool.Start(context.Background())

	var completed int32
	for i := 0; i < 3; i++ {
		pool.TryDispatch(Job{
			Key: "k",
			Handler: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&completed, 1)
				return nil
			},
		})
	}
	pool.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&completed))
	assert.False(t, pool.TryDispatch(Job{Key: "late", Handler: func(context.Context) error { return nil }}))
}

func TestPool_RefusesBeforeStart(t *testing.T) {
	pool := NewPool("", 0, 0)
	assert.False(t, pool.TryDispatch(Job{Key: "k", Handler: func(context.Context) error { return nil }}))
	assert.Equal(t, int64(1), pool.Stats().TotalDropped)
	pool.Stop()
}

func TestPool_CountsErrorsAndPanics(t *testing.T) {
	pool := startPool(t, 1, 10)

	var wg sync.WaitGroup
	wg.Add(2)
	pool.TryDispatch(Job{Key: "a", Handler: func(context.Context) error {
		defer wg.Done()
		return errors.New("boom")
	}})
	pool.TryDispatch(Job{Key: "b", Handler: func(context.Context) error {
		defer wg.Done()
		panic("kaboom")
	}})
	wg.Wait()

	require.Eventually(t, func() bool { return pool.Stats().TotalProcessed == 2 }, time.Second, 5*time.Millisecond)
	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, int64(2), stats.TotalDispatched)
	assert.Len(t, stats.WorkerStats, 1)
}

func TestPool_ConsistentHashing(t *testing.T) {
	pool := NewPool("", 4, 100)

	shard := pool.shardFor("user:123")
	assert.Equal(t, shard, pool.shardFor("user:123"))
	assert.GreaterOrEqual(t, shard, 0)
	assert.Less(t, shard, 4)

	counts := make(map[int]int)
	for i := 0; i < 400; i++ {
		counts[pool.shardFor(fmt.Sprintf("key:%d", i))]++
	}
	for s, n := range counts {
		assert.Greater(t, n, 60, "shard %d", s)
		assert.Less(t, n, 140, "shard %d", s)
	}
}
