package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/cachestore"
	"github.com/AzielCF/az-cache/infrastructure/configstore"
	pkgError "github.com/AzielCF/az-cache/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory IConfigStore with switchable failures.
type memStore struct {
	mu        sync.Mutex
	set       domainCache.ConfigSet
	loadErr   error
	saveErr   error
	backupErr error
	saves     int
	backups   int
}

func (m *memStore) Load(context.Context) (domainCache.ConfigSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.set.Clone(), nil
}

func (m *memStore) Save(_ context.Context, set domainCache.ConfigSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.set = set.Clone()
	return nil
}

func (m *memStore) Backup(context.Context, domainCache.ConfigSet) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupErr != nil {
		return "", m.backupErr
	}
	m.backups++
	return "mem://backup", nil
}

func (m *memStore) ClearCache() {}

func noMonitor() domainCache.MonitorOptions {
	opts := domainCache.DefaultMonitorOptions()
	opts.Enabled = false
	return opts
}

func newTestConfigService(t *testing.T, opts CacheConfigOptions) domainCache.ICacheConfigUsecase {
	t.Helper()
	if opts.Monitor.ReportInterval == 0 {
		opts.Monitor = noMonitor()
	}
	svc := NewCacheConfigService(opts)
	require.NoError(t, svc.Initialize(context.Background()))
	t.Cleanup(svc.Close)
	return svc
}

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }

func TestCacheConfig_InitializeDefaults(t *testing.T) {
	var events []domainCache.EventType
	svc := NewCacheConfigService(CacheConfigOptions{Monitor: noMonitor()})
	svc.Subscribe(func(e domainCache.Event) { events = append(events, e.Type) })
	require.NoError(t, svc.Initialize(context.Background()))
	defer svc.Close()

	assert.True(t, svc.GetConfig().Equal(domainCache.DefaultConfigSet()))
	state := svc.GetState()
	assert.True(t, state.Initialized)
	assert.NotEmpty(t, state.Version)
	assert.Equal(t, []domainCache.EventType{domainCache.EventInitialized}, events)

	// second call is a no-op
	require.NoError(t, svc.Initialize(context.Background()))
	assert.Equal(t, state.Version, svc.GetState().Version)
}

func TestCacheConfig_InitializeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"user":{"maxSize":10,"defaultTTL":60000,"cleanupInterval":30000,"enabled":true}}`), 0o644))
	t.Setenv("CACHE_CONTENT_MAX_SIZE", "77")

	svc := newTestConfigService(t, CacheConfigOptions{
		Store:     configstore.NewFileStore(path, configstore.FileStoreOptions{}),
		Overrides: configstore.NewEnvOverrides(),
	})

	cfg := svc.GetConfig()
	assert.Len(t, cfg, len(domainCache.AllPools()))
	assert.Equal(t, 10, cfg[domainCache.UserPool].MaxSize)
	assert.Equal(t, 77, cfg[domainCache.ContentPool].MaxSize)
	assert.Equal(t, domainCache.DefaultConfigSet()[domainCache.APIPool], cfg[domainCache.APIPool])
}

func TestCacheConfig_InitializeInvalidFallsBack(t *testing.T) {
	store := &memStore{set: domainCache.DefaultConfigSet()}
	stats := store.set[domainCache.StatsPool]
	stats.DefaultTTL = -5
	store.set[domainCache.StatsPool] = stats

	svc := newTestConfigService(t, CacheConfigOptions{Store: store})
	assert.True(t, svc.GetConfig().Equal(domainCache.DefaultConfigSet()))

	store.loadErr = errors.New("disk gone")
	svc2 := newTestConfigService(t, CacheConfigOptions{Store: store})
	assert.True(t, svc2.GetConfig().Equal(domainCache.DefaultConfigSet()))
}

func TestCacheConfig_UpdateMergesAndNotifies(t *testing.T) {
	store := &memStore{set: domainCache.DefaultConfigSet()}
	svc := newTestConfigService(t, CacheConfigOptions{Store: store, BackupEnabled: true})
	before := svc.GetState().Version

	var got []domainCache.ChangeEvent
	svc.AddChangeListener(func(_ context.Context, e domainCache.ChangeEvent) error {
		got = append(got, e)
		return nil
	})

	res, err := svc.UpdateConfig(context.Background(), domainCache.ConfigPatch{
		domainCache.UserPool: {MaxSize: intPtr(2000)},
	}, domainCache.DefaultUpdateOptions())
	require.NoError(t, err)

	assert.True(t, res.Persisted)
	assert.Equal(t, "mem://backup", res.BackupPath)
	assert.Equal(t, []domainCache.Change{{Path: "user.maxSize", OldValue: 1000, NewValue: 2000}}, res.Event.Changes)
	assert.NotEqual(t, before, res.Event.Version)
	assert.Equal(t, domainCache.SourceManual, res.Event.Source)

	user, err := svc.GetPoolConfig(domainCache.UserPool)
	require.NoError(t, err)
	assert.Equal(t, 2000, user.MaxSize)
	assert.Equal(t, domainCache.DefaultConfigSet()[domainCache.UserPool].DefaultTTL, user.DefaultTTL)

	require.Len(t, got, 1)
	assert.Equal(t, res.Event.ID, got[0].ID)
	assert.Equal(t, 2000, store.set[domainCache.UserPool].MaxSize)
}

func TestCacheConfig_NegativeTTLRejected(t *testing.T) {
	store := &memStore{set: domainCache.DefaultConfigSet()}
	svc := newTestConfigService(t, CacheConfigOptions{Store: store, BackupEnabled: true})
	before := svc.GetConfig()
	called := false
	svc.AddChangeListener(func(context.Context, domainCache.ChangeEvent) error {
		called = true
		return nil
	})

	_, err := svc.UpdateConfig(context.Background(), domainCache.ConfigPatch{
		domainCache.StatsPool: {DefaultTTL: int64Ptr(-5)},
	}, domainCache.DefaultUpdateOptions())
	require.Error(t, err)

	var stageErr *pkgError.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pkgError.StageValidation, stageErr.Stage)
	issues, ok := stageErr.Details.([]domainCache.ValidationIssue)
	require.True(t, ok)
	paths := map[string]bool{}
	for _, i := range issues {
		paths[i.Path] = true
	}
	assert.True(t, paths["stats.defaultTTL"])

	assert.True(t, before.Equal(svc.GetConfig()))
	assert.False(t, called)
	assert.Zero(t, store.saves)
	assert.Zero(t, store.backups)
}

func TestCacheConfig_ValidationCanBeSkipped(t *testing.T) {
	svc := newTestConfigService(t, CacheConfigOptions{})
	opts := domainCache.DefaultUpdateOptions()
	opts.Validate = false

	_, err := svc.UpdateInstanceConfig(context.Background(), domainCache.StatsPool, domainCache.PoolConfigPatch{
		DefaultTTL: int64Ptr(-5),
	}, opts)
	require.NoError(t, err)
	stats, _ := svc.GetPoolConfig(domainCache.StatsPool)
	assert.Equal(t, int64(-5), stats.DefaultTTL)
}

func TestCacheConfig_ListenerIsolation(t *testing.T) {
	svc := newTestConfigService(t, CacheConfigOptions{})
	var order []string
	svc.AddChangeListener(func(context.Context, domainCache.ChangeEvent) error {
		order = append(order, "panics")
		panic("boom")
	})
	svc.AddChangeListener(func(context.Context, domainCache.ChangeEvent) error {
		order = append(order, "fails")
		return errors.New("nope")
	})
	svc.AddChangeListener(func(context.Context, domainCache.ChangeEvent) error {
		order = append(order, "ok")
		return nil
	})

	_, err := svc.UpdateInstanceConfig(context.Background(), domainCache.APIPool, domainCache.PoolConfigPatch{
		MaxSize: intPtr(300),
	}, domainCache.DefaultUpdateOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"panics", "fails", "ok"}, order)
}

func TestCacheConfig_EmptyDiff(t *testing.T) {
	store := &memStore{set: domainCache.DefaultConfigSet()}
	svc := newTestConfigService(t, CacheConfigOptions{Store: store, BackupEnabled: true})
	version := svc.GetState().Version
	called := false
	svc.AddChangeListener(func(context.Context, domainCache.ChangeEvent) error {
		called = true
		return nil
	})

	res, err := svc.UpdateConfig(context.Background(), domainCache.ConfigPatch{
		domainCache.UserPool: {MaxSize: intPtr(1000)},
	}, domainCache.DefaultUpdateOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Event.Changes)
	assert.Equal(t, version, svc.GetState().Version)
	assert.False(t, called)
	assert.Zero(t, store.saves)
}

func TestCacheConfig_PersistAndBackupFailures(t *testing.T) {
	store := &memStore{
		set:       domainCache.DefaultConfigSet(),
		saveErr:   errors.New("read-only"),
		backupErr: errors.New("no space"),
	}
	svc := newTestConfigService(t, CacheConfigOptions{Store: store, BackupEnabled: true})

	res, err := svc.UpdateInstanceConfig(context.Background(), domainCache.ContentPool, domainCache.PoolConfigPatch{
		MaxSize: intPtr(600),
	}, domainCache.DefaultUpdateOptions())
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Empty(t, res.BackupPath)

	content, _ := svc.GetPoolConfig(domainCache.ContentPool)
	assert.Equal(t, 600, content.MaxSize)
}

func TestCacheConfig_UnknownPoolAndBadOptions(t *testing.T) {
	svc := newTestConfigService(t, CacheConfigOptions{})
	ctx := context.Background()

	_, err := svc.UpdateInstanceConfig(ctx, "bogus", domainCache.PoolConfigPatch{MaxSize: intPtr(1)}, domainCache.DefaultUpdateOptions())
	assert.ErrorIs(t, err, domainCache.ErrUnknownPool)

	_, err = svc.UpdateConfig(ctx, domainCache.ConfigPatch{"bogus": {}}, domainCache.DefaultUpdateOptions())
	assert.ErrorIs(t, err, domainCache.ErrUnknownPool)

	opts := domainCache.DefaultUpdateOptions()
	opts.Source = "somewhere"
	_, err = svc.UpdateConfig(ctx, domainCache.ConfigPatch{domainCache.UserPool: {MaxSize: intPtr(5)}}, opts)
	var vErr pkgError.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.GetPoolConfig("bogus")
	var nf pkgError.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCacheConfig_ReloadAndReset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache-config.json")
	store := configstore.NewFileStore(path, configstore.FileStoreOptions{})
	require.NoError(t, store.Save(ctx, domainCache.DefaultConfigSet()))

	svc := newTestConfigService(t, CacheConfigOptions{Store: store})
	var types []domainCache.EventType
	svc.Subscribe(func(e domainCache.Event) { types = append(types, e.Type) })

	next := domainCache.DefaultConfigSet()
	sess := next[domainCache.SessionPool]
	sess.MaxSize = 42
	next[domainCache.SessionPool] = sess
	require.NoError(t, configstore.NewFileStore(path, configstore.FileStoreOptions{}).Save(ctx, next))

	res, err := svc.ReloadConfig(ctx, domainCache.SourceHotReload)
	require.NoError(t, err)
	assert.Equal(t, domainCache.ChangeReload, res.Event.Type)
	assert.Equal(t, domainCache.SourceHotReload, res.Event.Source)
	assert.Equal(t, []domainCache.Change{{Path: "session.maxSize", OldValue: 1000, NewValue: 42}}, res.Event.Changes)

	// an invalid snapshot on disk is rejected
	require.NoError(t, os.WriteFile(path, []byte(`{"session":{"maxSize":-1,"defaultTTL":1000,"cleanupInterval":500,"enabled":true}}`), 0o644))
	_, err = svc.ReloadConfig(ctx, domainCache.SourceHotReload)
	assert.True(t, pkgError.IsStage(err, pkgError.StageValidation))
	s, _ := svc.GetPoolConfig(domainCache.SessionPool)
	assert.Equal(t, 42, s.MaxSize)

	res, err = svc.ResetToDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, domainCache.ChangeReset, res.Event.Type)
	assert.True(t, svc.GetConfig().Equal(domainCache.DefaultConfigSet()))
	assert.True(t, res.Persisted)

	assert.Equal(t, []domainCache.EventType{domainCache.EventConfigReloaded, domainCache.EventConfigReset}, types)
}

func TestCacheConfig_RemoveListenerAndUnsubscribe(t *testing.T) {
	svc := newTestConfigService(t, CacheConfigOptions{})
	id := svc.AddChangeListener(func(context.Context, domainCache.ChangeEvent) error { return nil })
	sub := svc.Subscribe(func(domainCache.Event) {})
	assert.Equal(t, 1, svc.GetState().ListenerCount)
	assert.Equal(t, 1, svc.GetState().SubscriberCount)

	assert.True(t, svc.RemoveChangeListener(id))
	assert.False(t, svc.RemoveChangeListener(id))
	assert.True(t, svc.Unsubscribe(sub))
	assert.Zero(t, svc.GetState().ListenerCount)
}

func TestCacheConfig_Performance(t *testing.T) {
	registry := cachestore.NewMemoryRegistry(domainCache.DefaultConfigSet())
	defer registry.Close()
	svc := newTestConfigService(t, CacheConfigOptions{Backends: registry})

	var mu sync.Mutex
	var reports int
	svc.Subscribe(func(e domainCache.Event) {
		if e.Type == domainCache.EventPerformanceReport {
			mu.Lock()
			reports++
			mu.Unlock()
		}
	})

	report, err := svc.SamplePerformance(context.Background(), domainCache.UserPool)
	require.NoError(t, err)
	assert.Equal(t, domainCache.UserPool, report.Pool)
	assert.Len(t, svc.PerformanceHistory(domainCache.UserPool), 1)
	mu.Lock()
	assert.Equal(t, 1, reports)
	mu.Unlock()

	require.NoError(t, svc.StartPerformanceMonitoring(context.Background()))
	state := svc.GetState()
	assert.True(t, state.MonitoringActive)
	assert.Len(t, state.MonitoredPools, len(domainCache.AllPools()))

	svc.StopPerformanceMonitoring()
	assert.False(t, svc.GetState().MonitoringActive)

	analysis := svc.AnalyzePerformance()
	assert.Greater(t, analysis.PerformanceScore, 80.0)
	assert.Equal(t, domainCache.RiskLow, svc.PerformanceRisks().Level)
}

func TestCacheConfig_MonitorOptionsValidated(t *testing.T) {
	registry := cachestore.NewMemoryRegistry(domainCache.DefaultConfigSet())
	defer registry.Close()
	svc := newTestConfigService(t, CacheConfigOptions{Backends: registry})

	bad := domainCache.AlertThresholds{HitRate: 2}
	err := svc.UpdateMonitorOptions(context.Background(), domainCache.MonitorOptionsPatch{AlertThresholds: &bad})
	var vErr pkgError.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = NewCacheConfigService(CacheConfigOptions{Monitor: noMonitor()}).SamplePerformance(context.Background(), domainCache.UserPool)
	assert.Error(t, err)
}
