package cache

import (
	"context"
	"time"
)

type EventType string

const (
	EventInitialized       EventType = "initialized"
	EventConfigUpdated     EventType = "configUpdated"
	EventConfigReloaded    EventType = "configReloaded"
	EventConfigReset       EventType = "configReset"
	EventPerformanceReport EventType = "performanceReport"
	EventPerformanceAlert  EventType = "performanceAlert"
)

// Event is published to subscribers of the configuration manager. Payload is
// a ChangeEvent, ConfigSet, PerformanceReport or PerformanceAlert depending on Type.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ChangeListener observes successful updates, reloads and resets. A returned
// error is logged and never affects other listeners or the update itself.
type ChangeListener func(ctx context.Context, event ChangeEvent) error

// EventHandler receives published events.
type EventHandler func(event Event)

// ICacheConfigUsecase is the configuration manager facade.
type ICacheConfigUsecase interface {
	Initialize(ctx context.Context) error
	GetConfig() ConfigSet
	GetPoolConfig(pool PoolName) (PoolConfig, error)
	UpdateConfig(ctx context.Context, patch ConfigPatch, opts UpdateOptions) (UpdateResult, error)
	UpdateInstanceConfig(ctx context.Context, pool PoolName, patch PoolConfigPatch, opts UpdateOptions) (UpdateResult, error)
	ReloadConfig(ctx context.Context, source ChangeSource) (UpdateResult, error)
	ResetToDefault(ctx context.Context) (UpdateResult, error)
	ValidateConfig(set ConfigSet) ValidationResult

	AddChangeListener(listener ChangeListener) string
	RemoveChangeListener(id string) bool
	Subscribe(handler EventHandler) string
	Unsubscribe(id string) bool

	StartPerformanceMonitoring(ctx context.Context) error
	StopPerformanceMonitoring()
	UpdateMonitorOptions(ctx context.Context, patch MonitorOptionsPatch) error
	SamplePerformance(ctx context.Context, pool PoolName) (PerformanceReport, error)
	PerformanceHistory(pool PoolName) []PerformanceReport
	AnalyzePerformance() PerformanceAnalysis
	OptimizationSuggestions() []OptimizationSuggestion
	PerformanceRisks() RiskAssessment

	GetState() State
	Close()
}
