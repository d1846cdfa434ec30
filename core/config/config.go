package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Paths    PathsConfig
	Cache    CacheConfig
	Monitor  MonitorConfig
	Database DatabaseConfig
	Valkey   ValkeyConfig
}

type AppConfig struct {
	Version     string
	Port        string
	Debug       bool
	Environment string
	BasePath    string
	BasicAuth   []string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

// Backend names for CacheConfig.Backend.
const (
	BackendMemory = "memory"
	BackendValkey = "valkey"
)

type CacheConfig struct {
	ConfigFile            string
	BackupEnabled         bool
	ReadCacheTTL          time.Duration
	WatchEnabled          bool
	WatchInterval         time.Duration
	Backend               string
	HistoryEnabled        bool
	MetricsEnabled        bool
	InvalidationWorkers   int
	InvalidationQueueSize int
}

type MonitorConfig struct {
	Enabled           bool
	ReportInterval    time.Duration
	AlertHitRate      float64
	AlertMemoryUsage  float64
	AlertResponseTime time.Duration
	HistorySize       int
	MetricsNamespace  string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig reads .env (when present) and then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("[CONFIG] failed to read .env")
	}

	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false)

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	cfg := &Config{
		App: AppConfig{
			Version:     "v1.0.0",
			Port:        getEnv("APP_PORT", "3000"),
			Debug:       debug,
			Environment: getEnv("APP_ENV", "development"),
			BasePath:    getEnv("APP_BASE_PATH", ""),
			BasicAuth:   basicAuth,
		},
		Paths: PathsConfig{
			BaseDir:  baseDir,
			Storages: baseDir,
		},
		Cache: CacheConfig{
			ConfigFile:            getEnv("CACHE_CONFIG_FILE", filepath.Join(baseDir, "cache-config.json")),
			BackupEnabled:         getEnvBool("CACHE_BACKUP_ENABLED", true),
			ReadCacheTTL:          time.Duration(getEnvInt("CACHE_READ_CACHE_TTL_SECONDS", 30)) * time.Second,
			WatchEnabled:          getEnvBool("CACHE_WATCH_ENABLED", false),
			WatchInterval:         time.Duration(getEnvInt("CACHE_WATCH_INTERVAL_MS", 2000)) * time.Millisecond,
			Backend:               strings.ToLower(getEnv("CACHE_BACKEND", BackendMemory)),
			HistoryEnabled:        getEnvBool("CACHE_HISTORY_ENABLED", true),
			MetricsEnabled:        getEnvBool("CACHE_METRICS_ENABLED", true),
			InvalidationWorkers:   getEnvInt("CACHE_INVALIDATION_WORKERS", 4),
			InvalidationQueueSize: getEnvInt("CACHE_INVALIDATION_QUEUE_SIZE", 100),
		},
		Monitor: MonitorConfig{
			Enabled:           getEnvBool("CACHE_MONITOR_ENABLED", true),
			ReportInterval:    time.Duration(getEnvInt("CACHE_MONITOR_INTERVAL_MS", 60000)) * time.Millisecond,
			AlertHitRate:      getEnvFloat("CACHE_ALERT_HIT_RATE", 0.5),
			AlertMemoryUsage:  getEnvFloat("CACHE_ALERT_MEMORY_USAGE", 0.9),
			AlertResponseTime: time.Duration(getEnvInt("CACHE_ALERT_RESPONSE_TIME_MS", 100)) * time.Millisecond,
			HistorySize:       getEnvInt("CACHE_MONITOR_HISTORY_SIZE", 100),
			MetricsNamespace:  getEnv("CACHE_METRICS_NAMESPACE", "azcache"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", filepath.Join(baseDir, "cache-history.db")),
		},
		Valkey: ValkeyConfig{
			Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azcache:"),
		},
	}

	Global = cfg
	return cfg, nil
}
