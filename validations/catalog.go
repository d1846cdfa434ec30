package validations

import (
	"fmt"
	"math"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	MaxReasonableSize     = 10000
	MaxReasonableTTL      = 24 * time.Hour
	MinCleanupInterval    = 10 * time.Second
	MaxPoolMemoryEstimate = 50 * 1024 * 1024
	// cleanupInterval may be at most defaultTTL/cleanupToTTLMaxDivisor.
	cleanupToTTLMaxDivisor = 2
)

// DefaultRules returns the basic, reasonability and performance rule families.
func DefaultRules() []Rule {
	return []Rule{
		positiveRule(domainCache.FieldMaxSize),
		positiveRule(domainCache.FieldDefaultTTL),
		positiveRule(domainCache.FieldCleanupInterval),
		{
			Name:        "maxSize.reasonable",
			Description: "warns when a pool holds more entries than is usually sensible",
			Severity:    domainCache.SeverityWarning,
			Category:    CategoryPerformance,
			AppliesTo:   []string{domainCache.FieldMaxSize},
			Validate: func(value any, ctx RuleContext) RuleResult {
				n, ok := asInt64(value)
				if !ok || n <= MaxReasonableSize {
					return Pass()
				}
				return Fail(
					fmt.Sprintf("maxSize %d exceeds the recommended maximum of %d entries", n, MaxReasonableSize),
					fmt.Sprintf("lower %s to %d or split the pool", ctx.Path, MaxReasonableSize),
				)
			},
		},
		{
			Name:        "defaultTTL.reasonable",
			Description: "warns when entries live longer than a day",
			Severity:    domainCache.SeverityWarning,
			Category:    CategoryPerformance,
			AppliesTo:   []string{domainCache.FieldDefaultTTL},
			Validate: func(value any, ctx RuleContext) RuleResult {
				n, ok := asInt64(value)
				if !ok || n <= MaxReasonableTTL.Milliseconds() {
					return Pass()
				}
				return Fail(
					fmt.Sprintf("defaultTTL %s is longer than %s", formatMillis(n), MaxReasonableTTL),
					fmt.Sprintf("set %s to at most %d", ctx.Path, MaxReasonableTTL.Milliseconds()),
				)
			},
		},
		{
			Name:        "cleanupInterval.reasonable",
			Description: "warns when the sweep runs too often or too rarely for the TTL",
			Severity:    domainCache.SeverityWarning,
			Category:    CategoryPerformance,
			AppliesTo:   []string{domainCache.FieldCleanupInterval},
			Validate: func(value any, ctx RuleContext) RuleResult {
				n, ok := asInt64(value)
				if !ok || n <= 0 {
					return Pass()
				}
				if n < MinCleanupInterval.Milliseconds() {
					return Fail(
						fmt.Sprintf("cleanupInterval %s is shorter than %s", formatMillis(n), MinCleanupInterval),
						fmt.Sprintf("raise %s to at least %d", ctx.Path, MinCleanupInterval.Milliseconds()),
					)
				}
				ttl := ctx.Sibling().DefaultTTL
				if ttl > 0 && n > ttl/cleanupToTTLMaxDivisor {
					return Fail(
						fmt.Sprintf("cleanupInterval %s exceeds half of defaultTTL %s", formatMillis(n), formatMillis(ttl)),
						fmt.Sprintf("set %s to at most %d", ctx.Path, ttl/cleanupToTTLMaxDivisor),
					)
				}
				return Pass()
			},
		},
		{
			Name:        "maxSize.memory",
			Description: "warns when the estimated footprint of a pool is too large",
			Severity:    domainCache.SeverityWarning,
			Category:    CategoryMemory,
			AppliesTo:   []string{domainCache.FieldMaxSize},
			Validate: func(value any, ctx RuleContext) RuleResult {
				n, ok := asInt64(value)
				if !ok || n <= 0 {
					return Pass()
				}
				if n <= MaxPoolMemoryEstimate/domainCache.BytesPerEntry {
					return Pass()
				}
				estimate := domainCache.EstimateEntriesMemory(n)
				return Fail(
					fmt.Sprintf("estimated memory %s exceeds %s", humanize.IBytes(uint64(estimate)), humanize.IBytes(MaxPoolMemoryEstimate)),
					fmt.Sprintf("lower %s to %d", ctx.Path, MaxPoolMemoryEstimate/domainCache.BytesPerEntry),
				)
			},
		},
	}
}

// DefaultRelationshipRules returns the cross-field rules of the default catalog.
func DefaultRelationshipRules() []RelationshipRule {
	return []RelationshipRule{
		{
			Name:        "cleanupInterval.vs.defaultTTL",
			Description: "the sweep interval should be shorter than the TTL it sweeps",
			Category:    CategoryRelationship,
			Check: func(pool domainCache.PoolName, cfg domainCache.PoolConfig, _ domainCache.ConfigSet) []domainCache.ValidationIssue {
				if cfg.DefaultTTL <= 0 || cfg.CleanupInterval < cfg.DefaultTTL {
					return nil
				}
				return []domainCache.ValidationIssue{{
					Field:      domainCache.FieldCleanupInterval,
					Path:       domainCache.Path(pool, domainCache.FieldCleanupInterval),
					Message:    fmt.Sprintf("cleanupInterval (%d) should be less than defaultTTL (%d)", cfg.CleanupInterval, cfg.DefaultTTL),
					Suggestion: fmt.Sprintf("set %s to %d", domainCache.Path(pool, domainCache.FieldCleanupInterval), cfg.DefaultTTL/4),
					Severity:   domainCache.SeverityWarning,
				}}
			},
		},
	}
}

// formatMillis renders a millisecond count as a duration, or as raw
// milliseconds when it does not fit in time.Duration.
func formatMillis(ms int64) string {
	if ms > math.MaxInt64/int64(time.Millisecond) || ms < math.MinInt64/int64(time.Millisecond) {
		return fmt.Sprintf("%dms", ms)
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

func positiveRule(field string) Rule {
	return Rule{
		Name:        field + ".positive",
		Description: field + " must be a positive number",
		Severity:    domainCache.SeverityError,
		Category:    CategoryBasic,
		AppliesTo:   []string{field},
		Validate: func(value any, ctx RuleContext) RuleResult {
			if err := validation.Validate(value, validation.Required, validation.Min(1)); err != nil {
				return Fail(
					fmt.Sprintf("%s must be a positive number, got %v", field, value),
					fmt.Sprintf("set %s to a value greater than 0", ctx.Path),
				)
			}
			return Pass()
		},
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}
