package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PoolConfig holds the settings of one pool. Durations are milliseconds so the
// persisted file stays a plain JSON object of numbers.
type PoolConfig struct {
	MaxSize         int   `json:"maxSize" yaml:"maxSize"`
	DefaultTTL      int64 `json:"defaultTTL" yaml:"defaultTTL"`
	CleanupInterval int64 `json:"cleanupInterval" yaml:"cleanupInterval"`
	Enabled         bool  `json:"enabled" yaml:"enabled"`
}

func (c PoolConfig) TTL() time.Duration {
	return time.Duration(c.DefaultTTL) * time.Millisecond
}

func (c PoolConfig) Cleanup() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Millisecond
}

// Field returns the value of a named field.
func (c PoolConfig) Field(name string) (any, error) {
	switch name {
	case FieldMaxSize:
		return c.MaxSize, nil
	case FieldDefaultTTL:
		return c.DefaultTTL, nil
	case FieldCleanupInterval:
		return c.CleanupInterval, nil
	case FieldEnabled:
		return c.Enabled, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// SetField assigns a named field, coercing JSON numbers, numeric strings and
// boolean strings as they arrive from environment overrides.
func (c *PoolConfig) SetField(name string, value any) error {
	switch name {
	case FieldMaxSize:
		n, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		c.MaxSize = int(n)
	case FieldDefaultTTL:
		n, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		c.DefaultTTL = n
	case FieldCleanupInterval:
		n, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		c.CleanupInterval = n
	case FieldEnabled:
		b, err := toBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		c.Enabled = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// ConfigSet maps every pool to its configuration.
type ConfigSet map[PoolName]PoolConfig

// Clone returns a copy that shares nothing with the receiver.
func (s ConfigSet) Clone() ConfigSet {
	if s == nil {
		return nil
	}
	out := make(ConfigSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Pools returns the pool names of the set in canonical order.
func (s ConfigSet) Pools() []PoolName {
	pools := make([]PoolName, 0, len(s))
	for p := range s {
		pools = append(pools, p)
	}
	return sortedPools(pools)
}

// Equal reports whether both sets hold the same pools with the same values.
func (s ConfigSet) Equal(other ConfigSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if o, ok := other[k]; !ok || o != v {
			return false
		}
	}
	return true
}

// SetPath walks a dotted "<pool>.<field>" path and assigns the leaf.
func (s ConfigSet) SetPath(path string, value any) error {
	pool, field, err := SplitPath(path)
	if err != nil {
		return err
	}
	cfg, ok := s[pool]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}
	if err := cfg.SetField(field, value); err != nil {
		return err
	}
	s[pool] = cfg
	return nil
}

// PoolConfigPatch is a partial PoolConfig; nil fields are left untouched.
type PoolConfigPatch struct {
	MaxSize         *int   `json:"maxSize,omitempty"`
	DefaultTTL      *int64 `json:"defaultTTL,omitempty"`
	CleanupInterval *int64 `json:"cleanupInterval,omitempty"`
	Enabled         *bool  `json:"enabled,omitempty"`
}

func (p PoolConfigPatch) IsEmpty() bool {
	return p.MaxSize == nil && p.DefaultTTL == nil && p.CleanupInterval == nil && p.Enabled == nil
}

// Apply returns base with every non-nil field of the patch written over it.
func (p PoolConfigPatch) Apply(base PoolConfig) PoolConfig {
	if p.MaxSize != nil {
		base.MaxSize = *p.MaxSize
	}
	if p.DefaultTTL != nil {
		base.DefaultTTL = *p.DefaultTTL
	}
	if p.CleanupInterval != nil {
		base.CleanupInterval = *p.CleanupInterval
	}
	if p.Enabled != nil {
		base.Enabled = *p.Enabled
	}
	return base
}

// ConfigPatch is a partial ConfigSet.
type ConfigPatch map[PoolName]PoolConfigPatch

// MergeConfigs applies the patch field by field over a copy of base. Pools
// named in the patch but absent from base start from their zero value, which
// the validation engine then rejects.
func MergeConfigs(base ConfigSet, patch ConfigPatch) ConfigSet {
	out := base.Clone()
	if out == nil {
		out = ConfigSet{}
	}
	for pool, p := range patch {
		out[pool] = p.Apply(out[pool])
	}
	return out
}

// DiffConfigs lists one Change per field whose value differs between the two
// sets, in canonical pool and field order. A pool present on one side only
// contributes every field, with nil on the missing side.
func DiffConfigs(oldSet, newSet ConfigSet) []Change {
	seen := map[PoolName]struct{}{}
	pools := make([]PoolName, 0, len(oldSet)+len(newSet))
	for _, s := range []ConfigSet{oldSet, newSet} {
		for p := range s {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				pools = append(pools, p)
			}
		}
	}
	sortedPools(pools)

	changes := []Change{}
	for _, pool := range pools {
		oldCfg, oldOK := oldSet[pool]
		newCfg, newOK := newSet[pool]
		for _, field := range Fields() {
			var oldVal, newVal any
			if oldOK {
				oldVal, _ = oldCfg.Field(field)
			}
			if newOK {
				newVal, _ = newCfg.Field(field)
			}
			if oldOK && newOK && oldVal == newVal {
				continue
			}
			changes = append(changes, Change{Path: Path(pool, field), OldValue: oldVal, NewValue: newVal})
		}
	}
	return changes
}

// DefaultConfigSet returns the built-in configuration used when no snapshot
// can be loaded and by ResetToDefault.
func DefaultConfigSet() ConfigSet {
	return ConfigSet{
		UserPool:    {MaxSize: 1000, DefaultTTL: 1800000, CleanupInterval: 300000, Enabled: true},
		ContentPool: {MaxSize: 500, DefaultTTL: 3600000, CleanupInterval: 600000, Enabled: true},
		StatsPool:   {MaxSize: 100, DefaultTTL: 1800000, CleanupInterval: 300000, Enabled: true},
		ConfigPool:  {MaxSize: 50, DefaultTTL: 86400000, CleanupInterval: 3600000, Enabled: true},
		SessionPool: {MaxSize: 1000, DefaultTTL: 7200000, CleanupInterval: 600000, Enabled: true},
		APIPool:     {MaxSize: 200, DefaultTTL: 300000, CleanupInterval: 60000, Enabled: true},
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return floatToInt(f)
	}
	return 0, fmt.Errorf("unsupported numeric type %T", v)
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", b)
	}
	return false, fmt.Errorf("unsupported boolean type %T", v)
}
