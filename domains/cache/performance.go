package cache

import (
	"math"
	"time"
)

// MemorySnapshot describes a pool's memory at sampling time.
type MemorySnapshot struct {
	Current    int64   `json:"current"`
	Peak       int64   `json:"peak"`
	Percentage float64 `json:"percentage"`
}

// OperationCounters mirrors the backend counters at sampling time.
type OperationCounters struct {
	Gets      int64 `json:"gets"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// PerformanceReport is produced once per pool per sampling tick and never mutated afterwards.
type PerformanceReport struct {
	ID                  string            `json:"id"`
	Pool                PoolName          `json:"pool"`
	HitRate             float64           `json:"hit_rate"`
	MissRate            float64           `json:"miss_rate"`
	EvictionRate        float64           `json:"eviction_rate"`
	Memory              MemorySnapshot    `json:"memory"`
	Operations          OperationCounters `json:"operations"`
	Size                int               `json:"size"`
	MaxSize             int               `json:"max_size"`
	AverageResponseTime time.Duration     `json:"average_response_time"`
	Recommendations     []string          `json:"recommendations"`
	Timestamp           time.Time         `json:"timestamp"`
}

// Alert metrics.
const (
	MetricHitRate             = "hitRate"
	MetricMemoryUsage         = "memoryUsage"
	MetricAverageResponseTime = "averageResponseTime"
)

// PerformanceAlert is published for every threshold breached on a tick.
type PerformanceAlert struct {
	Pool      PoolName  `json:"pool"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SuggestionType string

const (
	SuggestionMemory      SuggestionType = "memory"
	SuggestionPerformance SuggestionType = "performance"
	SuggestionTTL         SuggestionType = "ttl"
	SuggestionCleanup     SuggestionType = "cleanup"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities so that high sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// OptimizationSuggestion is derived from a configuration snapshot and never persisted.
type OptimizationSuggestion struct {
	Type           SuggestionType `json:"type"`
	Priority       Priority       `json:"priority"`
	Description    string         `json:"description"`
	CurrentValue   any            `json:"current_value"`
	SuggestedValue any            `json:"suggested_value"`
	ExpectedImpact string         `json:"expected_impact"`
	ConfigPath     string         `json:"config_path"`
}

// MemoryEstimate is the static footprint estimate of a configuration.
type MemoryEstimate struct {
	PerPool   map[PoolName]int64 `json:"per_pool"`
	Total     int64              `json:"total"`
	Formatted string             `json:"formatted"`
}

// PerformanceAnalysis is the result of analysing a configuration snapshot.
type PerformanceAnalysis struct {
	MemoryEstimate   MemoryEstimate           `json:"memory_estimate"`
	PerformanceScore float64                  `json:"performance_score"`
	Bottlenecks      []string                 `json:"bottlenecks"`
	Recommendations  []OptimizationSuggestion `json:"recommendations"`
}

type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// RiskAssessment rolls an analysis up to a single severity.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Score   float64   `json:"score"`
	Reasons []string  `json:"reasons"`
}

// AlertThresholds configure when the monitor raises alerts. Zero disables a threshold.
type AlertThresholds struct {
	HitRate             float64       `json:"hit_rate"`
	MemoryUsage         float64       `json:"memory_usage"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}

// MonitorOptions configure the performance monitor.
type MonitorOptions struct {
	Enabled         bool            `json:"enabled"`
	ReportInterval  time.Duration   `json:"report_interval"`
	HistorySize     int             `json:"history_size"`
	AlertThresholds AlertThresholds `json:"alert_thresholds"`
}

// MonitorOptionsPatch is a partial MonitorOptions for UpdateOptions.
type MonitorOptionsPatch struct {
	Enabled         *bool            `json:"enabled,omitempty"`
	ReportInterval  *time.Duration   `json:"report_interval,omitempty"`
	AlertThresholds *AlertThresholds `json:"alert_thresholds,omitempty"`
}

func DefaultMonitorOptions() MonitorOptions {
	return MonitorOptions{
		Enabled:        true,
		ReportInterval: time.Minute,
		HistorySize:    100,
		AlertThresholds: AlertThresholds{
			HitRate:             0.5,
			MemoryUsage:         0.9,
			AverageResponseTime: 100 * time.Millisecond,
		},
	}
}

// BytesPerEntry is the assumed footprint of one cached entry used by every
// static memory estimate.
const BytesPerEntry int64 = 1024

// EstimatePoolMemory returns the static footprint estimate of one pool,
// saturating at math.MaxInt64.
func EstimatePoolMemory(cfg PoolConfig) int64 {
	return EstimateEntriesMemory(int64(cfg.MaxSize))
}

// EstimateEntriesMemory returns entries*BytesPerEntry, saturating at
// math.MaxInt64. Non-positive counts estimate to 0.
func EstimateEntriesMemory(entries int64) int64 {
	if entries <= 0 {
		return 0
	}
	if entries > math.MaxInt64/BytesPerEntry {
		return math.MaxInt64
	}
	return entries * BytesPerEntry
}
