package validations

import (
	"strings"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
)

// Category groups rules for bulk toggling.
type Category string

const (
	CategoryBasic        Category = "basic"
	CategoryPerformance  Category = "performance"
	CategoryMemory       Category = "memory"
	CategoryRelationship Category = "relationship"
	CategoryCustom       Category = "custom"
)

// AllFields selects every PoolConfig field when used in Rule.AppliesTo.
const AllFields = "*"

// RuleContext is built for every field being checked. Config is the whole set
// under validation so a rule can look at sibling fields.
type RuleContext struct {
	Pool   domainCache.PoolName
	Field  string
	Path   string
	Config domainCache.ConfigSet
}

// Sibling returns the configuration of the pool being checked.
func (c RuleContext) Sibling() domainCache.PoolConfig {
	return c.Config[c.Pool]
}

type RuleResult struct {
	Valid      bool
	Message    string
	Suggestion string
}

func Pass() RuleResult {
	return RuleResult{Valid: true}
}

func Fail(message, suggestion string) RuleResult {
	return RuleResult{Message: message, Suggestion: suggestion}
}

// Rule validates a single field value.
//
// AppliesTo selects the fields the rule runs on. When empty, the field is
// inferred from the rule name: a rule named "maxSize.positive" runs on maxSize.
// Category is likewise inferred from the name when left empty.
type Rule struct {
	Name        string
	Description string
	Severity    domainCache.Severity
	Category    Category
	AppliesTo   []string
	Validate    func(value any, ctx RuleContext) RuleResult
}

// RelationshipRule validates a whole PoolConfig and may report several issues.
type RelationshipRule struct {
	Name        string
	Description string
	// Category defaults to CategoryRelationship.
	Category Category
	Check    func(pool domainCache.PoolName, cfg domainCache.PoolConfig, set domainCache.ConfigSet) []domainCache.ValidationIssue
}

// RuleConfig overrides registration defaults in RuleManager.AddRule.
type RuleConfig struct {
	Enabled  *bool
	Priority *int
	Category Category
}

// Constraint is a caller-supplied predicate stored in the rule manager side table.
type Constraint func(value any, ctx RuleContext) bool

func inferCategory(name string) Category {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "positive"), strings.Contains(n, "required"), strings.Contains(n, "type"):
		return CategoryBasic
	case strings.Contains(n, "memory"):
		return CategoryMemory
	case strings.Contains(n, "relationship"), strings.Contains(n, ".vs."):
		return CategoryRelationship
	case strings.Contains(n, "reasonable"), strings.Contains(n, "performance"):
		return CategoryPerformance
	}
	return CategoryCustom
}

func inferFields(name string) []string {
	n := strings.ToLower(name)
	var fields []string
	for _, f := range domainCache.Fields() {
		if strings.Contains(n, strings.ToLower(f)) {
			fields = append(fields, f)
		}
	}
	return fields
}
