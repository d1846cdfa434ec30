package validations

import (
	"fmt"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/sirupsen/logrus"
)

// Validator runs the enabled rules of a RuleManager over configuration sets.
type Validator struct {
	rules *RuleManager
}

func NewValidator(rules *RuleManager) *Validator {
	if rules == nil {
		rules = NewRuleManager()
	}
	return &Validator{rules: rules}
}

// NewDefaultValidator returns a validator backed by the default catalog.
func NewDefaultValidator() *Validator {
	return NewValidator(NewDefaultRuleManager())
}

func (v *Validator) Rules() *RuleManager {
	return v.rules
}

// Validate checks every pool of the set. The result is valid iff no
// error-severity issue was found.
func (v *Validator) Validate(set domainCache.ConfigSet) domainCache.ValidationResult {
	result := domainCache.NewValidationResult()
	for _, pool := range set.Pools() {
		v.validatePool(pool, set, &result)
	}
	return result
}

// ValidateBatch validates each named set independently.
func (v *Validator) ValidateBatch(configs []domainCache.NamedConfig) []domainCache.NamedResult {
	out := make([]domainCache.NamedResult, 0, len(configs))
	for _, c := range configs {
		out = append(out, domainCache.NamedResult{Name: c.Name, Result: v.Validate(c.Config)})
	}
	return out
}

// ValidateChange validates the end state of a transition. When pool is set
// only that pool is checked.
func (v *Validator) ValidateChange(_, newSet domainCache.ConfigSet, pool *domainCache.PoolName) domainCache.ValidationResult {
	if pool == nil {
		return v.Validate(newSet)
	}
	result := domainCache.NewValidationResult()
	v.validatePool(*pool, newSet, &result)
	return result
}

func (v *Validator) validatePool(pool domainCache.PoolName, set domainCache.ConfigSet, result *domainCache.ValidationResult) {
	if !pool.Valid() {
		result.Add(domainCache.ValidationIssue{
			Pool:     pool,
			Path:     string(pool),
			Rule:     "pool.known",
			Message:  fmt.Sprintf("unknown cache pool %q", pool),
			Severity: domainCache.SeverityError,
		})
		return
	}
	cfg, ok := set[pool]
	if !ok {
		result.Add(domainCache.ValidationIssue{
			Pool:     pool,
			Path:     string(pool),
			Rule:     "pool.present",
			Message:  fmt.Sprintf("no configuration for pool %q", pool),
			Severity: domainCache.SeverityError,
		})
		return
	}

	for _, field := range domainCache.Fields() {
		value, _ := cfg.Field(field)
		ctx := RuleContext{Pool: pool, Field: field, Path: domainCache.Path(pool, field), Config: set}
		for _, rule := range v.rules.rulesForField(field) {
			if issue, failed := runRule(rule, value, ctx); failed {
				result.Add(issue)
			}
		}
	}

	for _, rel := range v.rules.RelationshipRules() {
		for _, issue := range runRelationship(rel, pool, cfg, set) {
			result.Add(issue)
		}
	}
}

func runRule(rule Rule, value any, ctx RuleContext) (issue domainCache.ValidationIssue, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("[CACHE_VALIDATION] rule %s panicked on %s: %v", rule.Name, ctx.Path, r)
			issue = domainCache.ValidationIssue{
				Pool:     ctx.Pool,
				Field:    ctx.Field,
				Path:     ctx.Path,
				Rule:     rule.Name,
				Message:  fmt.Sprintf("rule %s failed to execute: %v", rule.Name, r),
				Severity: domainCache.SeverityError,
			}
			failed = true
		}
	}()

	res := rule.Validate(value, ctx)
	if res.Valid {
		return domainCache.ValidationIssue{}, false
	}
	severity := rule.Severity
	if severity == "" {
		severity = domainCache.SeverityError
	}
	message := res.Message
	if message == "" {
		message = fmt.Sprintf("%s failed rule %s", ctx.Path, rule.Name)
	}
	return domainCache.ValidationIssue{
		Pool:       ctx.Pool,
		Field:      ctx.Field,
		Path:       ctx.Path,
		Rule:       rule.Name,
		Message:    message,
		Suggestion: res.Suggestion,
		Severity:   severity,
	}, true
}

func runRelationship(rel RelationshipRule, pool domainCache.PoolName, cfg domainCache.PoolConfig, set domainCache.ConfigSet) (issues []domainCache.ValidationIssue) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("[CACHE_VALIDATION] relationship rule %s panicked on %s: %v", rel.Name, pool, r)
			issues = []domainCache.ValidationIssue{{
				Pool:     pool,
				Path:     string(pool),
				Rule:     rel.Name,
				Message:  fmt.Sprintf("rule %s failed to execute: %v", rel.Name, r),
				Severity: domainCache.SeverityError,
			}}
		}
	}()

	issues = rel.Check(pool, cfg, set)
	for i := range issues {
		issues[i].Pool = pool
		issues[i].Rule = rel.Name
		if issues[i].Severity == "" {
			issues[i].Severity = domainCache.SeverityWarning
		}
		if issues[i].Path == "" {
			issues[i].Path = string(pool)
		}
	}
	return issues
}
