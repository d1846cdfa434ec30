package metrics

import (
	"testing"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Reports(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.HandleEvent(domainCache.Event{
		Type: domainCache.EventPerformanceReport,
		Payload: domainCache.PerformanceReport{
			Pool:                domainCache.UserPool,
			HitRate:             0.75,
			Size:                10,
			Memory:              domainCache.MemorySnapshot{Current: 10240, Percentage: 50},
			AverageResponseTime: 2 * time.Millisecond,
		},
	})

	require.InDelta(t, 0.75, testutil.ToFloat64(p.poolHitRate.WithLabelValues("user")), 1e-9)
	require.InDelta(t, 0.5, testutil.ToFloat64(p.poolMemoryRatio.WithLabelValues("user")), 1e-9)
	require.Equal(t, 10240.0, testutil.ToFloat64(p.poolMemory.WithLabelValues("user")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.configEvents.WithLabelValues("performanceReport")))
}

func TestPrometheusCollector_AlertsAndChanges(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry(), "")

	p.HandleEvent(domainCache.Event{
		Type:    domainCache.EventPerformanceAlert,
		Payload: domainCache.PerformanceAlert{Pool: domainCache.APIPool, Metric: domainCache.MetricHitRate},
	})
	p.HandleEvent(domainCache.Event{
		Type: domainCache.EventConfigUpdated,
		Payload: domainCache.ChangeEvent{
			Type:    domainCache.ChangeUpdate,
			Source:  domainCache.SourceManual,
			Changes: []domainCache.Change{{Path: "user.maxSize"}, {Path: "user.enabled"}},
		},
	})

	require.Equal(t, 1.0, testutil.ToFloat64(p.alerts.WithLabelValues("api", "hitRate")))
	require.Equal(t, 2.0, testutil.ToFloat64(p.configChanges.WithLabelValues("update", "manual")))
}

func TestPrometheusCollector_Invalidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.ObserveInvalidation("pattern", []domainCache.InvalidationResult{
		{Pool: domainCache.UserPool, Success: true, Deleted: 3},
		{Pool: domainCache.ContentPool, Success: false, Error: "down"},
	})

	require.Equal(t, 1.0, testutil.ToFloat64(p.invalidations.WithLabelValues("pattern", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.invalidations.WithLabelValues("pattern", "failure")))
	require.Equal(t, 3.0, testutil.ToFloat64(p.invalidated.WithLabelValues("pattern", "user")))

	count, err := testutil.GatherAndCount(reg, "test_invalidation_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPrometheusCollector_RegistersOnce(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry(), "test")
	require.NotPanics(t, func() {
		p.RecordReport(domainCache.PerformanceReport{Pool: domainCache.StatsPool})
		p.RecordReport(domainCache.PerformanceReport{Pool: domainCache.StatsPool})
	})
}
