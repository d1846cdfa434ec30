package metrics

import (
	"sync"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports performance reports, alerts, configuration
// changes and invalidation outcomes. Subscribe HandleEvent to the
// configuration manager and pass ObserveInvalidation to the invalidation
// service.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	poolHitRate      *prometheus.GaugeVec
	poolMemory       *prometheus.GaugeVec
	poolMemoryRatio  *prometheus.GaugeVec
	poolSize         *prometheus.GaugeVec
	poolResponseTime *prometheus.GaugeVec
	alerts           *prometheus.CounterVec
	configChanges    *prometheus.CounterVec
	configEvents     *prometheus.CounterVec
	invalidations    *prometheus.CounterVec
	invalidated      *prometheus.CounterVec
	invalidationTime *prometheus.HistogramVec
}

// NewPrometheus uses prometheus.DefaultRegisterer when reg is nil and the
// "azcache" namespace when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "azcache"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.poolHitRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "hit_rate",
			Help:      "Hit rate of the last performance report (0..1).",
		}, []string{"pool"})
		p.poolMemory = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "memory_bytes",
			Help:      "Estimated memory held by the pool.",
		}, []string{"pool"})
		p.poolMemoryRatio = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "fill_ratio",
			Help:      "Entries over max size (0..1).",
		}, []string{"pool"})
		p.poolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "entries",
			Help:      "Entries currently held by the pool.",
		}, []string{"pool"})
		p.poolResponseTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "average_response_seconds",
			Help:      "Average backend response time of the last report.",
		}, []string{"pool"})
		p.alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "alerts_total",
			Help:      "Threshold breaches by pool and metric.",
		}, []string{"pool", "metric"})

		p.configChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "config",
			Name:      "field_changes_total",
			Help:      "Changed configuration fields by change type and source.",
		}, []string{"type", "source"})
		p.configEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "config",
			Name:      "events_total",
			Help:      "Configuration manager events by type.",
		}, []string{"event"})

		p.invalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "invalidation",
			Name:      "results_total",
			Help:      "Per-pool invalidation outcomes (success|failure) by operation.",
		}, []string{"op", "result"})
		p.invalidated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "invalidation",
			Name:      "entries_total",
			Help:      "Entries removed by invalidation, by operation and pool.",
		}, []string{"op", "pool"})
		p.invalidationTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "invalidation",
			Name:      "duration_seconds",
			Help:      "Per-pool invalidation duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"op"})

		p.reg.MustRegister(p.poolHitRate)
		p.reg.MustRegister(p.poolMemory)
		p.reg.MustRegister(p.poolMemoryRatio)
		p.reg.MustRegister(p.poolSize)
		p.reg.MustRegister(p.poolResponseTime)
		p.reg.MustRegister(p.alerts)
		p.reg.MustRegister(p.configChanges)
		p.reg.MustRegister(p.configEvents)
		p.reg.MustRegister(p.invalidations)
		p.reg.MustRegister(p.invalidated)
		p.reg.MustRegister(p.invalidationTime)
	})
}

// HandleEvent is a configuration manager subscriber.
func (p *PrometheusCollector) HandleEvent(event domainCache.Event) {
	p.ensureRegistered()
	p.configEvents.WithLabelValues(string(event.Type)).Inc()

	switch payload := event.Payload.(type) {
	case domainCache.PerformanceReport:
		p.RecordReport(payload)
	case domainCache.PerformanceAlert:
		p.alerts.WithLabelValues(string(payload.Pool), payload.Metric).Inc()
	case domainCache.ChangeEvent:
		p.configChanges.WithLabelValues(string(payload.Type), string(payload.Source)).Add(float64(len(payload.Changes)))
	}
}

// RecordReport sets the pool gauges from one report.
func (p *PrometheusCollector) RecordReport(report domainCache.PerformanceReport) {
	p.ensureRegistered()
	pool := string(report.Pool)
	p.poolHitRate.WithLabelValues(pool).Set(report.HitRate)
	p.poolMemory.WithLabelValues(pool).Set(float64(report.Memory.Current))
	p.poolMemoryRatio.WithLabelValues(pool).Set(report.Memory.Percentage / 100)
	p.poolSize.WithLabelValues(pool).Set(float64(report.Size))
	p.poolResponseTime.WithLabelValues(pool).Set(report.AverageResponseTime.Seconds())
}

// ObserveInvalidation matches the invalidation service observer signature.
func (p *PrometheusCollector) ObserveInvalidation(op string, results []domainCache.InvalidationResult) {
	p.ensureRegistered()
	for _, r := range results {
		result := "success"
		if !r.Success {
			result = "failure"
		}
		p.invalidations.WithLabelValues(op, result).Inc()
		if r.Deleted > 0 {
			p.invalidated.WithLabelValues(op, string(r.Pool)).Add(float64(r.Deleted))
		}
		p.invalidationTime.WithLabelValues(op).Observe(r.Duration.Seconds())
	}
}
