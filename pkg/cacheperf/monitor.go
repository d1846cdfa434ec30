package cacheperf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Hooks receive what the monitor produces. Both are optional and are called
// from the sampling goroutine of the pool, never while the monitor lock is held.
type Hooks struct {
	OnReport func(report domainCache.PerformanceReport)
	OnAlert  func(alert domainCache.PerformanceAlert)
}

// Monitor samples pool backends on an interval, keeps a bounded history per
// pool and raises alerts when thresholds are breached.
type Monitor struct {
	mu       sync.Mutex
	backends domainCache.BackendRegistry
	opts     domainCache.MonitorOptions
	hooks    Hooks
	timers   map[domainCache.PoolName]context.CancelFunc
	pools    []domainCache.PoolName
	history  map[domainCache.PoolName]*reportRing
}

func NewMonitor(backends domainCache.BackendRegistry, opts domainCache.MonitorOptions, hooks Hooks) *Monitor {
	if opts.HistorySize <= 0 {
		opts.HistorySize = domainCache.DefaultMonitorOptions().HistorySize
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = domainCache.DefaultMonitorOptions().ReportInterval
	}
	return &Monitor{
		backends: backends,
		opts:     opts,
		hooks:    hooks,
		timers:   make(map[domainCache.PoolName]context.CancelFunc),
		history:  make(map[domainCache.PoolName]*reportRing),
	}
}

func (m *Monitor) Options() domainCache.MonitorOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Start arms one sampling timer per pool. A pool that is already monitored
// gets its timer replaced; pools armed earlier and absent from the call keep
// running and stay part of the monitored set.
func (m *Monitor) Start(pools []domainCache.PoolName) error {
	for _, p := range pools {
		if !p.Valid() {
			return fmt.Errorf("%w: %q", domainCache.ErrUnknownPool, p)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	interval := m.opts.ReportInterval
	for _, pool := range pools {
		if cancel, ok := m.timers[pool]; ok {
			cancel()
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.timers[pool] = cancel
		go m.run(ctx, pool, interval)
	}
	m.pools = m.armedPoolsLocked()

	logrus.Infof("[CACHE_MONITOR] monitoring %d pools every %s", len(m.pools), interval)
	return nil
}

// Stop disarms every timer. Calling it when nothing runs is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if len(m.timers) == 0 {
		return
	}
	for pool, cancel := range m.timers {
		cancel()
		delete(m.timers, pool)
	}
	logrus.Info("[CACHE_MONITOR] monitoring stopped")
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers) > 0
}

// MonitoredPools returns the pools with an armed timer in canonical order.
func (m *Monitor) MonitoredPools() []domainCache.PoolName {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armedPoolsLocked()
}

func (m *Monitor) armedPoolsLocked() []domainCache.PoolName {
	pools := make([]domainCache.PoolName, 0, len(m.timers))
	for p := range m.timers {
		pools = append(pools, p)
	}
	order := map[domainCache.PoolName]int{}
	for i, p := range domainCache.AllPools() {
		order[p] = i
	}
	sort.Slice(pools, func(i, j int) bool { return order[pools[i]] < order[pools[j]] })
	return pools
}

// UpdateOptions merges the patch into the current options. A changed interval
// while running restarts sampling on the previously monitored pools; disabling
// stops it.
func (m *Monitor) UpdateOptions(patch domainCache.MonitorOptionsPatch) error {
	m.mu.Lock()
	next := m.opts
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.ReportInterval != nil {
		next.ReportInterval = *patch.ReportInterval
	}
	if patch.AlertThresholds != nil {
		next.AlertThresholds = *patch.AlertThresholds
	}
	if next.ReportInterval <= 0 {
		m.mu.Unlock()
		return fmt.Errorf("report interval must be positive, got %s", next.ReportInterval)
	}

	running := len(m.timers) > 0
	restart := running && next.ReportInterval != m.opts.ReportInterval
	pools := append([]domainCache.PoolName(nil), m.pools...)
	m.opts = next

	if running && !next.Enabled {
		m.stopLocked()
		m.mu.Unlock()
		return nil
	}
	if restart {
		m.stopLocked()
	}
	m.mu.Unlock()

	if restart {
		logrus.Infof("[CACHE_MONITOR] report interval changed to %s, restarting", next.ReportInterval)
		return m.Start(pools)
	}
	return nil
}

// History returns a copy of the retained reports of a pool, oldest first.
func (m *Monitor) History(pool domainCache.PoolName) []domainCache.PerformanceReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.history[pool]
	if !ok {
		return []domainCache.PerformanceReport{}
	}
	return ring.snapshot()
}

func (m *Monitor) LatestReport(pool domainCache.PoolName) (domainCache.PerformanceReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.history[pool]
	if !ok {
		return domainCache.PerformanceReport{}, false
	}
	return ring.latest()
}

// SampleNow runs one sampling tick for the pool outside the timer schedule.
func (m *Monitor) SampleNow(ctx context.Context, pool domainCache.PoolName) (domainCache.PerformanceReport, error) {
	if !pool.Valid() {
		return domainCache.PerformanceReport{}, fmt.Errorf("%w: %q", domainCache.ErrUnknownPool, pool)
	}
	return m.tick(ctx, pool)
}

func (m *Monitor) run(ctx context.Context, pool domainCache.PoolName, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			if _, err := m.tick(tickCtx, pool); err != nil {
				logrus.WithError(err).Warnf("[CACHE_MONITOR] sampling %s failed", pool)
			}
			cancel()
		}
	}
}

func (m *Monitor) tick(ctx context.Context, pool domainCache.PoolName) (domainCache.PerformanceReport, error) {
	if m.backends == nil {
		return domainCache.PerformanceReport{}, domainCache.ErrNoBackend
	}
	backend, ok := m.backends.Backend(pool)
	if !ok {
		return domainCache.PerformanceReport{}, fmt.Errorf("%w: %s", domainCache.ErrNoBackend, pool)
	}
	stats, err := backend.Stats(ctx)
	if err != nil {
		return domainCache.PerformanceReport{}, fmt.Errorf("stats for %s: %w", pool, err)
	}

	report := BuildReport(pool, stats)

	m.mu.Lock()
	ring, ok := m.history[pool]
	if !ok {
		ring = newReportRing(m.opts.HistorySize)
		m.history[pool] = ring
	}
	ring.push(report)
	thresholds := m.opts.AlertThresholds
	hooks := m.hooks
	m.mu.Unlock()

	if hooks.OnReport != nil {
		hooks.OnReport(report)
	}
	for _, alert := range CheckThresholds(report, thresholds) {
		logrus.Warnf("[CACHE_MONITOR] %s", alert.Message)
		if hooks.OnAlert != nil {
			hooks.OnAlert(alert)
		}
	}
	return report, nil
}

// BuildReport turns backend counters into a report.
func BuildReport(pool domainCache.PoolName, stats domainCache.BackendStats) domainCache.PerformanceReport {
	hitRate := stats.HitRate
	lookups := stats.Hits + stats.Misses
	if hitRate == 0 && lookups > 0 {
		hitRate = float64(stats.Hits) / float64(lookups)
	}
	var missRate float64
	if lookups > 0 {
		missRate = 1 - hitRate
	}
	var evictionRate float64
	if stats.Sets > 0 {
		evictionRate = float64(stats.Evictions) / float64(stats.Sets)
	}
	var usage float64
	if stats.MaxSize > 0 {
		usage = float64(stats.Size) / float64(stats.MaxSize)
	}

	report := domainCache.PerformanceReport{
		ID:           uuid.NewString(),
		Pool:         pool,
		HitRate:      hitRate,
		MissRate:     missRate,
		EvictionRate: evictionRate,
		Memory: domainCache.MemorySnapshot{
			Current:    stats.MemoryUsage,
			Peak:       stats.PeakMemory,
			Percentage: usage * 100,
		},
		Operations: domainCache.OperationCounters{
			Gets:      stats.Gets,
			Sets:      stats.Sets,
			Deletes:   stats.Deletes,
			Hits:      stats.Hits,
			Misses:    stats.Misses,
			Evictions: stats.Evictions,
		},
		Size:                stats.Size,
		MaxSize:             stats.MaxSize,
		AverageResponseTime: stats.AverageResponseTime,
		Recommendations:     []string{},
		Timestamp:           time.Now().UTC(),
	}

	if lookups > 0 && hitRate < 0.5 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("hit rate %.0f%% is low, consider a longer TTL or a larger pool", hitRate*100))
	}
	if evictionRate > 0.1 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%.0f%% of writes evict an entry, consider raising maxSize", evictionRate*100))
	}
	if usage > 0.9 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("pool is %.0f%% full", usage*100))
	}
	return report
}

// CheckThresholds returns one alert per breached threshold. Zero thresholds are ignored.
func CheckThresholds(report domainCache.PerformanceReport, t domainCache.AlertThresholds) []domainCache.PerformanceAlert {
	var alerts []domainCache.PerformanceAlert
	lookups := report.Operations.Hits + report.Operations.Misses

	if t.HitRate > 0 && lookups > 0 && report.HitRate < t.HitRate {
		alerts = append(alerts, domainCache.PerformanceAlert{
			Pool:      report.Pool,
			Metric:    domainCache.MetricHitRate,
			Value:     report.HitRate,
			Threshold: t.HitRate,
			Message:   fmt.Sprintf("pool %s hit rate %.2f%% is below %.2f%%", report.Pool, report.HitRate*100, t.HitRate*100),
			Timestamp: report.Timestamp,
		})
	}

	usage := report.Memory.Percentage / 100
	if t.MemoryUsage > 0 && usage > t.MemoryUsage {
		alerts = append(alerts, domainCache.PerformanceAlert{
			Pool:      report.Pool,
			Metric:    domainCache.MetricMemoryUsage,
			Value:     usage,
			Threshold: t.MemoryUsage,
			Message:   fmt.Sprintf("pool %s memory usage %.2f%% is above %.2f%%", report.Pool, usage*100, t.MemoryUsage*100),
			Timestamp: report.Timestamp,
		})
	}

	if t.AverageResponseTime > 0 && report.AverageResponseTime > t.AverageResponseTime {
		alerts = append(alerts, domainCache.PerformanceAlert{
			Pool:      report.Pool,
			Metric:    domainCache.MetricAverageResponseTime,
			Value:     float64(report.AverageResponseTime.Milliseconds()),
			Threshold: float64(t.AverageResponseTime.Milliseconds()),
			Message:   fmt.Sprintf("pool %s average response time %s is above %s", report.Pool, report.AverageResponseTime, t.AverageResponseTime),
			Timestamp: report.Timestamp,
		})
	}
	return alerts
}
