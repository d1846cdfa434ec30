package configstore

import (
	"strings"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/spf13/viper"
)

const EnvPrefix = "CACHE"

var envSuffix = map[string]string{
	domainCache.FieldMaxSize:         "MAX_SIZE",
	domainCache.FieldDefaultTTL:      "DEFAULT_TTL",
	domainCache.FieldCleanupInterval: "CLEANUP_INTERVAL",
	domainCache.FieldEnabled:         "ENABLED",
}

// EnvOverrides reads per-pool overrides such as CACHE_USER_MAX_SIZE=2000.
type EnvOverrides struct {
	v *viper.Viper
}

func NewEnvOverrides() *EnvOverrides {
	v := viper.New()
	for _, pool := range domainCache.AllPools() {
		for _, field := range domainCache.Fields() {
			_ = v.BindEnv(domainCache.Path(pool, field), EnvName(pool, field))
		}
	}
	return &EnvOverrides{v: v}
}

// EnvName returns the variable that overrides a pool field.
func EnvName(pool domainCache.PoolName, field string) string {
	return EnvPrefix + "_" + strings.ToUpper(string(pool)) + "_" + envSuffix[field]
}

// Overrides lists every bound variable currently set, in pool then field order.
// Values stay strings; ConfigSet.SetPath coerces them.
func (e *EnvOverrides) Overrides() ([]domainCache.Override, error) {
	var out []domainCache.Override
	for _, pool := range domainCache.AllPools() {
		for _, field := range domainCache.Fields() {
			key := domainCache.Path(pool, field)
			if !e.v.IsSet(key) {
				continue
			}
			raw := strings.TrimSpace(e.v.GetString(key))
			if raw == "" {
				continue
			}
			out = append(out, domainCache.Override{ConfigPath: key, NewValue: raw})
		}
	}
	return out, nil
}

// ApplyOverrides walks each dotted path into set. Invalid entries are
// skipped and returned as errors so the caller can log them.
func ApplyOverrides(set domainCache.ConfigSet, overrides []domainCache.Override) []error {
	var errs []error
	for _, o := range overrides {
		if err := set.SetPath(o.ConfigPath, o.NewValue); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
