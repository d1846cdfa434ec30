package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PoolName identifies one independently sized and expiring cache pool.
// The set is closed and fixed for the process lifetime.
type PoolName string

const (
	UserPool    PoolName = "user"
	ContentPool PoolName = "content"
	StatsPool   PoolName = "stats"
	ConfigPool  PoolName = "config"
	SessionPool PoolName = "session"
	APIPool     PoolName = "api"
)

var allPools = []PoolName{UserPool, ContentPool, StatsPool, ConfigPool, SessionPool, APIPool}

var (
	ErrUnknownPool      = errors.New("unknown cache pool")
	ErrUnknownStrategy  = errors.New("unknown invalidation strategy")
	ErrServiceDestroyed = errors.New("invalidation service destroyed")
	ErrNoBackend        = errors.New("no backend registered for pool")
	ErrUnknownField     = errors.New("unknown pool config field")
)

// AllPools returns every pool in canonical order.
func AllPools() []PoolName {
	out := make([]PoolName, len(allPools))
	copy(out, allPools)
	return out
}

func (p PoolName) Valid() bool {
	for _, known := range allPools {
		if p == known {
			return true
		}
	}
	return false
}

func (p PoolName) String() string {
	return string(p)
}

// ParsePoolName trims and lowercases the input before matching it against the known pools.
func ParsePoolName(s string) (PoolName, error) {
	p := PoolName(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPool, s)
	}
	return p, nil
}

// Field names as they appear in the persisted file and in dotted config paths.
const (
	FieldMaxSize         = "maxSize"
	FieldDefaultTTL      = "defaultTTL"
	FieldCleanupInterval = "cleanupInterval"
	FieldEnabled         = "enabled"
)

// Fields lists the PoolConfig fields in the order they are validated and diffed.
func Fields() []string {
	return []string{FieldMaxSize, FieldDefaultTTL, FieldCleanupInterval, FieldEnabled}
}

// Path builds the dotted config path for a pool field, e.g. "user.maxSize".
func Path(pool PoolName, field string) string {
	return string(pool) + "." + field
}

// SplitPath is the inverse of Path.
func SplitPath(path string) (PoolName, string, error) {
	pool, field, ok := strings.Cut(path, ".")
	if !ok || pool == "" || field == "" {
		return "", "", fmt.Errorf("invalid config path %q", path)
	}
	return PoolName(pool), field, nil
}

// ChangeSource tags an update for audit purposes.
type ChangeSource string

const (
	SourceManual    ChangeSource = "manual"
	SourceAuto      ChangeSource = "auto"
	SourceHotReload ChangeSource = "hotreload"
	SourceEnv       ChangeSource = "env"
)

// ChangeType distinguishes the three mutation paths of the configuration manager.
type ChangeType string

const (
	ChangeUpdate ChangeType = "update"
	ChangeReload ChangeType = "reload"
	ChangeReset  ChangeType = "reset"
)

// Change is one differing field between two configuration sets.
type Change struct {
	Path     string `json:"path"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// ChangeEvent is delivered to change listeners after a successful update, reload or reset.
type ChangeEvent struct {
	ID        string       `json:"id"`
	Type      ChangeType   `json:"type"`
	Source    ChangeSource `json:"source"`
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Changes   []Change     `json:"changes"`
	Config    ConfigSet    `json:"config"`
}

// UpdateOptions controls the update pipeline. Use DefaultUpdateOptions and override.
type UpdateOptions struct {
	Validate        bool         `json:"validate"`
	Backup          bool         `json:"backup"`
	NotifyListeners bool         `json:"notify_listeners"`
	Source          ChangeSource `json:"source"`
}

func DefaultUpdateOptions() UpdateOptions {
	return UpdateOptions{
		Validate:        true,
		Backup:          true,
		NotifyListeners: true,
		Source:          SourceManual,
	}
}

// UpdateOptionsPatch carries caller supplied options. Nil fields keep the defaults.
type UpdateOptionsPatch struct {
	Validate        *bool         `json:"validate,omitempty"`
	Backup          *bool         `json:"backup,omitempty"`
	NotifyListeners *bool         `json:"notify_listeners,omitempty"`
	Source          *ChangeSource `json:"source,omitempty"`
}

// Resolve merges the patch over DefaultUpdateOptions. A nil patch yields the defaults.
func (p *UpdateOptionsPatch) Resolve() UpdateOptions {
	opts := DefaultUpdateOptions()
	if p == nil {
		return opts
	}
	if p.Validate != nil {
		opts.Validate = *p.Validate
	}
	if p.Backup != nil {
		opts.Backup = *p.Backup
	}
	if p.NotifyListeners != nil {
		opts.NotifyListeners = *p.NotifyListeners
	}
	if p.Source != nil {
		opts.Source = *p.Source
	}
	return opts
}

// UpdateResult is returned by every successful mutation of the configuration.
type UpdateResult struct {
	Event      ChangeEvent       `json:"event"`
	Warnings   []ValidationIssue `json:"warnings"`
	BackupPath string            `json:"backup_path,omitempty"`
	Persisted  bool              `json:"persisted"`
}

// State is a snapshot of the configuration manager's bookkeeping.
type State struct {
	Initialized       bool      `json:"initialized"`
	LastUpdate        time.Time `json:"last_update"`
	Version           string    `json:"version"`
	ListenerCount     int       `json:"listener_count"`
	SubscriberCount   int       `json:"subscriber_count"`
	MonitoringEnabled bool      `json:"monitoring_enabled"`
	MonitoringActive  bool      `json:"monitoring_active"`
	MonitoredPools    []string  `json:"monitored_pools"`
}

// Override is one environment-supplied value applied to a loaded configuration.
type Override struct {
	ConfigPath string `json:"config_path"`
	NewValue   any    `json:"new_value"`
}

func sortedPools(pools []PoolName) []PoolName {
	sort.Slice(pools, func(i, j int) bool {
		return poolRank(pools[i]) < poolRank(pools[j])
	})
	return pools
}

// poolRank orders known pools canonically and unknown names after them alphabetically.
func poolRank(p PoolName) string {
	for i, known := range allPools {
		if p == known {
			return fmt.Sprintf("0%02d", i)
		}
	}
	return "1" + string(p)
}
