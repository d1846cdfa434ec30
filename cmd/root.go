package cmd

import (
	"context"
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-cache/core/config"
	coreDB "github.com/AzielCF/az-cache/core/database"
	historyApp "github.com/AzielCF/az-cache/core/history/application"
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/cachestore"
	"github.com/AzielCF/az-cache/infrastructure/configstore"
	"github.com/AzielCF/az-cache/infrastructure/metrics"
	"github.com/AzielCF/az-cache/infrastructure/valkey"
	"github.com/AzielCF/az-cache/pkg/keyworker"
	"github.com/AzielCF/az-cache/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Backends
	cacheRegistry *cachestore.Registry
	valkeyClient  *valkey.Client

	// Usecase
	cacheConfigUsecase  domainCache.ICacheConfigUsecase
	invalidationUsecase domainCache.IInvalidationUsecase

	// Supporting services
	configStore      *configstore.FileStore
	configWatcher    *configstore.Watcher
	delayedWorkers   *keyworker.Pool
	historyService   *historyApp.HistoryService
	metricsRegistry  *prometheus.Registry
	metricsCollector *metrics.PrometheusCollector
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-cache",
	Short: "Cache governance for the user, content, stats, config, session and api pools",
	Long: `az-cache validates, persists and hot-reloads pool configuration,
monitors pool performance and invalidates entries by key, pattern or strategy.`,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Initialize flags first, before any subcommands are added
	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.String("config-file", "", `pool configuration file (json or yaml) --config-file <path> | example: --config-file="storages/cache-config.yaml"`)
	flags.String("backend", "", `pool backend --backend <memory|valkey> | example: --backend=valkey`)
	flags.Bool("watch", false, "hot reload the configuration file on change --watch <true/false>")
	flags.Bool("history", true, "record configuration changes in the database --history <true/false>")
	flags.Bool("monitor", true, "start performance monitoring on startup --monitor <true/false>")

	for _, name := range []string{"port", "debug", "config-file", "backend", "watch", "history", "monitor"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initEnvConfig loads the environment and lets explicitly set flags win over it.
func initEnvConfig() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("port") {
		cfg.App.Port = viper.GetString("port")
	}
	if flags.Changed("debug") {
		cfg.App.Debug = viper.GetBool("debug")
	}
	if flags.Changed("config-file") {
		cfg.Cache.ConfigFile = viper.GetString("config-file")
	}
	if flags.Changed("backend") {
		cfg.Cache.Backend = viper.GetString("backend")
	}
	if flags.Changed("watch") {
		cfg.Cache.WatchEnabled = viper.GetBool("watch")
	}
	if flags.Changed("history") {
		cfg.Cache.HistoryEnabled = viper.GetBool("history")
	}
	if flags.Changed("monitor") {
		cfg.Monitor.Enabled = viper.GetBool("monitor")
	}
}

func initApp() {
	cfg := coreconfig.Global
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := os.MkdirAll(cfg.Paths.Storages, 0o755); err != nil {
		logrus.Errorln(err)
	}

	ctx := context.Background()

	// 1. Pool backends
	defaults := domainCache.DefaultConfigSet()
	switch cfg.Cache.Backend {
	case coreconfig.BackendValkey:
		client, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("[VALKEY] %v", err)
		}
		valkeyClient = client
		cacheRegistry = cachestore.NewValkeyRegistry(client, defaults)
		logrus.Infof("[CACHE] using valkey backend at %s", cfg.Valkey.Address)
	default:
		cacheRegistry = cachestore.NewMemoryRegistry(defaults)
		logrus.Info("[CACHE] using in-memory backend")
	}

	// 2. Configuration manager
	configStore = configstore.NewFileStore(cfg.Cache.ConfigFile, configstore.FileStoreOptions{
		ReadCacheTTL: cfg.Cache.ReadCacheTTL,
	})
	cacheConfigUsecase = usecase.NewCacheConfigService(usecase.CacheConfigOptions{
		Store:         configStore,
		Overrides:     configstore.NewEnvOverrides(),
		Backends:      cacheRegistry,
		Monitor:       monitorOptions(cfg.Monitor),
		BackupEnabled: cfg.Cache.BackupEnabled,
	})

	// 3. Metrics
	if cfg.Cache.MetricsEnabled {
		metricsRegistry = prometheus.NewRegistry()
		metricsRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metricsCollector = metrics.NewPrometheus(metricsRegistry, cfg.Monitor.MetricsNamespace)
		cacheConfigUsecase.Subscribe(metricsCollector.HandleEvent)
	}

	// 4. Listeners: backends follow the configuration, history records it
	cacheConfigUsecase.AddChangeListener(cacheRegistry.ApplyConfig)
	if cfg.Cache.HistoryEnabled {
		db, err := coreDB.NewDatabase(cfg.Database, cfg.App.Debug)
		if err != nil {
			logrus.Errorf("[HISTORY] disabled: %v", err)
		} else {
			historyService = historyApp.NewHistoryService(db)
			cacheConfigUsecase.AddChangeListener(historyService.Record)
		}
	}

	if err := cacheConfigUsecase.Initialize(ctx); err != nil {
		logrus.Fatalf("[CACHE_CONFIG] %v", err)
	}
	loaded := cacheConfigUsecase.GetConfig()
	initial := domainCache.ChangeEvent{Changes: domainCache.DiffConfigs(defaults, loaded), Config: loaded}
	if err := cacheRegistry.ApplyConfig(ctx, initial); err != nil {
		logrus.WithError(err).Warn("[CACHE] applying initial configuration to backends")
	}

	// 5. Invalidation
	delayedWorkers = keyworker.NewPool("CACHE_INVALIDATION_WORKERS", cfg.Cache.InvalidationWorkers, cfg.Cache.InvalidationQueueSize)
	delayedWorkers.Start(ctx)
	invalidationOpts := []usecase.InvalidationOption{usecase.WithDelayedWorkers(delayedWorkers)}
	if metricsCollector != nil {
		invalidationOpts = append(invalidationOpts, usecase.WithInvalidationObserver(metricsCollector.ObserveInvalidation))
	}
	invalidationUsecase = usecase.NewDefaultInvalidationService(cacheRegistry, invalidationOpts...)

	// 6. Hot reload
	if cfg.Cache.WatchEnabled {
		configWatcher = configstore.NewWatcher(configStore.Path(), cfg.Cache.WatchInterval, func(ctx context.Context) error {
			_, err := cacheConfigUsecase.ReloadConfig(ctx, domainCache.SourceHotReload)
			return err
		})
		if err := configWatcher.Start(); err != nil {
			logrus.WithError(err).Error("[CONFIG_WATCH] hot reload disabled")
			configWatcher = nil
		}
	}
}

func monitorOptions(cfg coreconfig.MonitorConfig) domainCache.MonitorOptions {
	return domainCache.MonitorOptions{
		Enabled:        cfg.Enabled,
		ReportInterval: cfg.ReportInterval,
		HistorySize:    cfg.HistorySize,
		AlertThresholds: domainCache.AlertThresholds{
			HitRate:             cfg.AlertHitRate,
			MemoryUsage:         cfg.AlertMemoryUsage,
			AverageResponseTime: cfg.AlertResponseTime,
		},
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp stops watchers, timers and backend connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if configWatcher != nil {
		if err := configWatcher.Stop(); err != nil {
			logrus.WithError(err).Warn("[CONFIG_WATCH] stop")
		}
	}
	if invalidationUsecase != nil {
		invalidationUsecase.Destroy()
	}
	if delayedWorkers != nil {
		delayedWorkers.Stop()
	}
	if cacheConfigUsecase != nil {
		cacheConfigUsecase.Close()
	}
	if cacheRegistry != nil {
		cacheRegistry.Close()
	}
	if valkeyClient != nil {
		valkeyClient.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
