package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/configstore"
	"github.com/AzielCF/az-cache/pkg/cacheperf"
	pkgError "github.com/AzielCF/az-cache/pkg/error"
	"github.com/AzielCF/az-cache/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CacheConfigOptions wires the configuration manager. Every field is optional:
// without a Store the configuration lives in memory only, without Backends
// performance monitoring cannot start.
type CacheConfigOptions struct {
	Store         domainCache.IConfigStore
	Overrides     domainCache.IOverrideSource
	Backends      domainCache.BackendRegistry
	Validator     *validations.Validator
	Monitor       domainCache.MonitorOptions
	BackupEnabled bool
}

type listenerEntry struct {
	id string
	fn domainCache.ChangeListener
}

type subscriberEntry struct {
	id string
	fn domainCache.EventHandler
}

type cacheConfigService struct {
	store         domainCache.IConfigStore
	overrides     domainCache.IOverrideSource
	backends      domainCache.BackendRegistry
	validator     *validations.Validator
	monitor       *cacheperf.Monitor
	backupEnabled bool

	// updateMu serialises the whole mutation pipeline, listeners included.
	updateMu sync.Mutex

	mu          sync.RWMutex
	config      domainCache.ConfigSet
	version     string
	lastUpdate  time.Time
	initialized bool

	hooksMu     sync.RWMutex
	listeners   []listenerEntry
	subscribers []subscriberEntry
}

func NewCacheConfigService(opts CacheConfigOptions) domainCache.ICacheConfigUsecase {
	if opts.Validator == nil {
		opts.Validator = validations.NewDefaultValidator()
	}
	if opts.Monitor.ReportInterval == 0 && opts.Monitor.HistorySize == 0 {
		opts.Monitor = domainCache.DefaultMonitorOptions()
	}

	s := &cacheConfigService{
		store:         opts.Store,
		overrides:     opts.Overrides,
		backends:      opts.Backends,
		validator:     opts.Validator,
		backupEnabled: opts.BackupEnabled,
		config:        domainCache.DefaultConfigSet(),
	}
	if opts.Backends != nil {
		s.monitor = cacheperf.NewMonitor(opts.Backends, opts.Monitor, cacheperf.Hooks{
			OnReport: func(report domainCache.PerformanceReport) {
				s.publish(domainCache.EventPerformanceReport, report)
			},
			OnAlert: func(alert domainCache.PerformanceAlert) {
				s.publish(domainCache.EventPerformanceAlert, alert)
			},
		})
	}
	return s
}

// Initialize loads the configuration once. Later calls are no-ops.
func (s *cacheConfigService) Initialize(ctx context.Context) error {
	s.updateMu.Lock()
	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		s.updateMu.Unlock()
		return nil
	}

	set := s.loadInitial(ctx)

	s.mu.Lock()
	s.config = set
	s.version = uuid.NewString()
	s.lastUpdate = time.Now()
	s.initialized = true
	s.mu.Unlock()
	s.updateMu.Unlock()

	logrus.Infof("[CACHE_CONFIG] initialized with %d pools", len(set))
	s.publish(domainCache.EventInitialized, set.Clone())

	if s.monitor != nil && s.monitor.Options().Enabled {
		if err := s.StartPerformanceMonitoring(ctx); err != nil {
			logrus.WithError(err).Warn("[CACHE_CONFIG] performance monitoring not started")
		}
	}
	return nil
}

// loadInitial never fails: a missing or broken snapshot falls back to defaults.
func (s *cacheConfigService) loadInitial(ctx context.Context) domainCache.ConfigSet {
	var set domainCache.ConfigSet
	if s.store != nil {
		loaded, err := s.store.Load(ctx)
		if err != nil {
			logrus.WithError(pkgError.NewStageError(pkgError.StageLoad, "initialize", err)).
				Warn("[CACHE_CONFIG] using default configuration")
		} else {
			set = loaded
		}
	}
	if set == nil {
		set = domainCache.DefaultConfigSet()
	}
	fillMissingPools(set)
	s.applyOverrides(set)

	result := s.validator.Validate(set)
	if !result.Valid {
		logrus.WithField("errors", len(result.Errors)).
			Warn("[CACHE_CONFIG] loaded configuration is invalid, using defaults")
		return domainCache.DefaultConfigSet()
	}
	for _, w := range result.Warnings {
		logrus.Debugf("[CACHE_CONFIG] %s: %s", w.Path, w.Message)
	}
	return set
}

func (s *cacheConfigService) applyOverrides(set domainCache.ConfigSet) {
	if s.overrides == nil {
		return
	}
	overrides, err := s.overrides.Overrides()
	if err != nil {
		logrus.WithError(err).Warn("[CACHE_CONFIG] failed to read environment overrides")
		return
	}
	for _, err := range configstore.ApplyOverrides(set, overrides) {
		logrus.WithError(err).Warn("[CACHE_CONFIG] ignoring environment override")
	}
	if len(overrides) > 0 {
		logrus.Infof("[CACHE_CONFIG] applied %d environment overrides", len(overrides))
	}
}

func fillMissingPools(set domainCache.ConfigSet) {
	defaults := domainCache.DefaultConfigSet()
	for _, pool := range domainCache.AllPools() {
		if _, ok := set[pool]; !ok {
			logrus.Warnf("[CACHE_CONFIG] pool %s missing from snapshot, using defaults", pool)
			set[pool] = defaults[pool]
		}
	}
}

func (s *cacheConfigService) GetConfig() domainCache.ConfigSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

func (s *cacheConfigService) GetPoolConfig(pool domainCache.PoolName) (domainCache.PoolConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.config[pool]
	if !ok {
		return domainCache.PoolConfig{}, pkgError.NotFoundError(fmt.Sprintf("pool %q not found", pool))
	}
	return cfg, nil
}

func (s *cacheConfigService) UpdateConfig(ctx context.Context, patch domainCache.ConfigPatch, opts domainCache.UpdateOptions) (domainCache.UpdateResult, error) {
	for pool := range patch {
		if !pool.Valid() {
			err := fmt.Errorf("%w: %q", domainCache.ErrUnknownPool, pool)
			return domainCache.UpdateResult{}, pkgError.NewStageError(pkgError.StageValidation, "update", err)
		}
	}
	return s.commit(ctx, "update", domainCache.ChangeUpdate, opts, nil, func(current domainCache.ConfigSet) (domainCache.ConfigSet, error) {
		return domainCache.MergeConfigs(current, patch), nil
	})
}

func (s *cacheConfigService) UpdateInstanceConfig(ctx context.Context, pool domainCache.PoolName, patch domainCache.PoolConfigPatch, opts domainCache.UpdateOptions) (domainCache.UpdateResult, error) {
	if !pool.Valid() {
		err := fmt.Errorf("%w: %q", domainCache.ErrUnknownPool, pool)
		return domainCache.UpdateResult{}, pkgError.NewStageError(pkgError.StageValidation, "update instance", err)
	}
	return s.commit(ctx, "update instance", domainCache.ChangeUpdate, opts, &pool, func(current domainCache.ConfigSet) (domainCache.ConfigSet, error) {
		return domainCache.MergeConfigs(current, domainCache.ConfigPatch{pool: patch}), nil
	})
}

// ReloadConfig re-reads the snapshot bypassing the read cache. An invalid
// snapshot is rejected and the current configuration kept.
func (s *cacheConfigService) ReloadConfig(ctx context.Context, source domainCache.ChangeSource) (domainCache.UpdateResult, error) {
	if source == "" {
		source = domainCache.SourceManual
	}
	opts := domainCache.UpdateOptions{Validate: true, NotifyListeners: true, Source: source}
	return s.commit(ctx, "reload", domainCache.ChangeReload, opts, nil, func(domainCache.ConfigSet) (domainCache.ConfigSet, error) {
		set := domainCache.DefaultConfigSet()
		if s.store != nil {
			s.store.ClearCache()
			loaded, err := s.store.Load(ctx)
			if err != nil {
				return nil, pkgError.NewStageError(pkgError.StageLoad, "reload", err)
			}
			set = loaded
		}
		fillMissingPools(set)
		s.applyOverrides(set)
		return set, nil
	})
}

func (s *cacheConfigService) ResetToDefault(ctx context.Context) (domainCache.UpdateResult, error) {
	return s.commit(ctx, "reset", domainCache.ChangeReset, domainCache.DefaultUpdateOptions(), nil, func(domainCache.ConfigSet) (domainCache.ConfigSet, error) {
		return domainCache.DefaultConfigSet(), nil
	})
}

func (s *cacheConfigService) ValidateConfig(set domainCache.ConfigSet) domainCache.ValidationResult {
	return s.validator.Validate(set)
}

// commit runs merge, validate, backup, diff, swap, persist and notify for
// every mutation path.
func (s *cacheConfigService) commit(
	ctx context.Context,
	op string,
	changeType domainCache.ChangeType,
	opts domainCache.UpdateOptions,
	scope *domainCache.PoolName,
	build func(current domainCache.ConfigSet) (domainCache.ConfigSet, error),
) (domainCache.UpdateResult, error) {
	if err := validations.ValidateUpdateOptions(ctx, opts); err != nil {
		return domainCache.UpdateResult{}, err
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	current := s.GetConfig()
	next, err := build(current)
	if err != nil {
		return domainCache.UpdateResult{}, err
	}

	result := domainCache.UpdateResult{Warnings: []domainCache.ValidationIssue{}}
	if opts.Validate {
		var vr domainCache.ValidationResult
		if scope != nil {
			vr = s.validator.ValidateChange(current, next, scope)
		} else {
			vr = s.validator.Validate(next)
		}
		if !vr.Valid {
			stageErr := pkgError.NewStageError(pkgError.StageValidation, op,
				fmt.Errorf("%d validation errors, first: %s", len(vr.Errors), vr.Errors[0].Message))
			stageErr.Details = vr.Errors
			logrus.WithField("source", opts.Source).Warnf("[CACHE_CONFIG] %s rejected: %s", op, stageErr.Message)
			return domainCache.UpdateResult{}, stageErr
		}
		result.Warnings = vr.Warnings
	}

	changes := domainCache.DiffConfigs(current, next)
	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()

	event := domainCache.ChangeEvent{
		ID:        uuid.NewString(),
		Type:      changeType,
		Source:    opts.Source,
		Version:   version,
		Timestamp: time.Now(),
		Changes:   changes,
		Config:    next.Clone(),
	}
	if len(changes) == 0 {
		result.Event = event
		logrus.Debugf("[CACHE_CONFIG] %s produced no changes", op)
		return result, nil
	}

	if opts.Backup && s.backupEnabled && s.store != nil {
		path, err := s.store.Backup(ctx, current)
		if err != nil {
			logrus.WithError(pkgError.NewStageError(pkgError.StageBackup, op, err)).
				Warn("[CACHE_CONFIG] backup failed, continuing")
		} else {
			result.BackupPath = path
		}
	}

	s.mu.Lock()
	s.config = next
	s.version = uuid.NewString()
	s.lastUpdate = event.Timestamp
	s.initialized = true
	event.Version = s.version
	s.mu.Unlock()

	if s.store != nil && changeType != domainCache.ChangeReload {
		if err := s.store.Save(ctx, next); err != nil {
			logrus.WithError(pkgError.NewStageError(pkgError.StagePersistence, op, err)).
				Error("[CACHE_CONFIG] configuration applied but not persisted")
		} else {
			result.Persisted = true
		}
	}

	logrus.WithFields(logrus.Fields{
		"source":  opts.Source,
		"changes": len(changes),
		"version": event.Version,
	}).Infof("[CACHE_CONFIG] %s applied", op)

	if opts.NotifyListeners {
		s.notifyListeners(ctx, event)
	}
	s.publish(eventTypeFor(changeType), event)

	result.Event = event
	return result, nil
}

func eventTypeFor(t domainCache.ChangeType) domainCache.EventType {
	switch t {
	case domainCache.ChangeReload:
		return domainCache.EventConfigReloaded
	case domainCache.ChangeReset:
		return domainCache.EventConfigReset
	}
	return domainCache.EventConfigUpdated
}

func (s *cacheConfigService) notifyListeners(ctx context.Context, event domainCache.ChangeEvent) {
	s.hooksMu.RLock()
	listeners := append([]listenerEntry(nil), s.listeners...)
	s.hooksMu.RUnlock()

	for _, l := range listeners {
		if err := callListener(ctx, l.fn, event); err != nil {
			logrus.WithError(pkgError.NewStageError(pkgError.StageListener, l.id, err)).
				Error("[CACHE_CONFIG] change listener failed")
		}
	}
}

func callListener(ctx context.Context, fn domainCache.ChangeListener, event domainCache.ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return fn(ctx, event)
}

func (s *cacheConfigService) publish(eventType domainCache.EventType, payload any) {
	s.hooksMu.RLock()
	subscribers := append([]subscriberEntry(nil), s.subscribers...)
	s.hooksMu.RUnlock()

	event := domainCache.Event{Type: eventType, Timestamp: time.Now(), Payload: payload}
	for _, sub := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("[CACHE_CONFIG] subscriber %s panicked on %s: %v", sub.id, eventType, r)
				}
			}()
			sub.fn(event)
		}()
	}
}

func (s *cacheConfigService) AddChangeListener(listener domainCache.ChangeListener) string {
	id := uuid.NewString()
	s.hooksMu.Lock()
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: listener})
	s.hooksMu.Unlock()
	return id
}

func (s *cacheConfigService) RemoveChangeListener(id string) bool {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (s *cacheConfigService) Subscribe(handler domainCache.EventHandler) string {
	id := uuid.NewString()
	s.hooksMu.Lock()
	s.subscribers = append(s.subscribers, subscriberEntry{id: id, fn: handler})
	s.hooksMu.Unlock()
	return id
}

func (s *cacheConfigService) Unsubscribe(id string) bool {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// StartPerformanceMonitoring samples every pool that has a backend.
func (s *cacheConfigService) StartPerformanceMonitoring(_ context.Context) error {
	if s.monitor == nil {
		return pkgError.InternalServerError("performance monitoring needs a backend registry")
	}
	pools := s.backends.Pools()
	if len(pools) == 0 {
		return pkgError.NewStageError(pkgError.StageBackend, "start monitoring", domainCache.ErrNoBackend)
	}
	return s.monitor.Start(pools)
}

func (s *cacheConfigService) StopPerformanceMonitoring() {
	if s.monitor != nil {
		s.monitor.Stop()
	}
}

func (s *cacheConfigService) UpdateMonitorOptions(ctx context.Context, patch domainCache.MonitorOptionsPatch) error {
	if s.monitor == nil {
		return pkgError.InternalServerError("performance monitoring needs a backend registry")
	}
	next := s.monitor.Options()
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.ReportInterval != nil {
		next.ReportInterval = *patch.ReportInterval
	}
	if patch.AlertThresholds != nil {
		next.AlertThresholds = *patch.AlertThresholds
	}
	if err := validations.ValidateMonitorOptions(ctx, next); err != nil {
		return err
	}
	return s.monitor.UpdateOptions(patch)
}

func (s *cacheConfigService) SamplePerformance(ctx context.Context, pool domainCache.PoolName) (domainCache.PerformanceReport, error) {
	if s.monitor == nil {
		return domainCache.PerformanceReport{}, pkgError.InternalServerError("performance monitoring needs a backend registry")
	}
	report, err := s.monitor.SampleNow(ctx, pool)
	if err != nil {
		return report, pkgError.NewStageError(pkgError.StageBackend, "sample", err)
	}
	return report, nil
}

func (s *cacheConfigService) PerformanceHistory(pool domainCache.PoolName) []domainCache.PerformanceReport {
	if s.monitor == nil {
		return []domainCache.PerformanceReport{}
	}
	return s.monitor.History(pool)
}

func (s *cacheConfigService) AnalyzePerformance() domainCache.PerformanceAnalysis {
	return cacheperf.AnalyzePerformance(s.GetConfig())
}

func (s *cacheConfigService) OptimizationSuggestions() []domainCache.OptimizationSuggestion {
	return cacheperf.GenerateOptimizationSuggestions(s.GetConfig())
}

func (s *cacheConfigService) PerformanceRisks() domainCache.RiskAssessment {
	return cacheperf.HasPerformanceRisks(s.GetConfig())
}

func (s *cacheConfigService) GetState() domainCache.State {
	s.mu.RLock()
	state := domainCache.State{
		Initialized: s.initialized,
		LastUpdate:  s.lastUpdate,
		Version:     s.version,
	}
	s.mu.RUnlock()

	s.hooksMu.RLock()
	state.ListenerCount = len(s.listeners)
	state.SubscriberCount = len(s.subscribers)
	s.hooksMu.RUnlock()

	state.MonitoredPools = []string{}
	if s.monitor != nil {
		state.MonitoringEnabled = s.monitor.Options().Enabled
		state.MonitoringActive = s.monitor.IsRunning()
		for _, p := range s.monitor.MonitoredPools() {
			state.MonitoredPools = append(state.MonitoredPools, p.String())
		}
	}
	return state
}

// Close stops monitoring and drops every listener and subscriber.
func (s *cacheConfigService) Close() {
	s.StopPerformanceMonitoring()
	s.hooksMu.Lock()
	s.listeners = nil
	s.subscribers = nil
	s.hooksMu.Unlock()
	logrus.Info("[CACHE_CONFIG] closed")
}
