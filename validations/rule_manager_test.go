package validations

import (
	"testing"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passRule(name string) Rule {
	return Rule{Name: name, Validate: func(any, RuleContext) RuleResult { return Pass() }}
}

func ruleNames(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}

func TestRuleManager_PriorityAndToggle(t *testing.T) {
	m := NewRuleManager()
	first := 10
	require.NoError(t, m.AddRule(passRule("maxSize.a"), &RuleConfig{Priority: &first}))
	require.NoError(t, m.AddRule(passRule("maxSize.b"), nil))
	require.NoError(t, m.AddRule(passRule("maxSize.c"), nil))

	assert.Equal(t, []string{"maxSize.b", "maxSize.c", "maxSize.a"}, ruleNames(m.EnabledRules()))

	require.True(t, m.DisableRule("maxSize.b"))
	assert.Equal(t, []string{"maxSize.c", "maxSize.a"}, ruleNames(m.EnabledRules()))

	require.True(t, m.EnableRule("maxSize.b"))
	assert.Equal(t, []string{"maxSize.b", "maxSize.c", "maxSize.a"}, ruleNames(m.EnabledRules()))

	assert.False(t, m.EnableRule("missing"))
	assert.Error(t, m.AddRule(passRule("maxSize.a"), nil))
	assert.Error(t, m.AddRule(Rule{Name: "nofn"}, nil))
}

func TestRuleManager_CategoryInference(t *testing.T) {
	m := NewRuleManager()
	for _, name := range []string{"maxSize.positive", "maxSize.memory", "defaultTTL.reasonable", "cleanupInterval.vs.defaultTTL", "maxSize.mine"} {
		require.NoError(t, m.AddRule(passRule(name), nil))
	}

	cases := map[string]Category{
		"maxSize.positive":              CategoryBasic,
		"maxSize.memory":                CategoryMemory,
		"defaultTTL.reasonable":         CategoryPerformance,
		"cleanupInterval.vs.defaultTTL": CategoryRelationship,
		"maxSize.mine":                  CategoryCustom,
	}
	for name, want := range cases {
		got, ok := m.CategoryOf(name)
		require.True(t, ok)
		assert.Equal(t, want, got, name)
	}

	assert.Equal(t, 1, m.ToggleCategoryRules(CategoryMemory, false))
	assert.Empty(t, m.RulesByCategory(CategoryMemory))
	assert.Equal(t, 4, m.Stats().Enabled)
}

func TestRuleManager_FieldSelection(t *testing.T) {
	m := NewDefaultRuleManager()

	assert.ElementsMatch(t,
		[]string{"maxSize.positive", "maxSize.reasonable", "maxSize.memory"},
		ruleNames(m.rulesForField(domainCache.FieldMaxSize)))
	assert.Empty(t, m.rulesForField(domainCache.FieldEnabled))

	require.NoError(t, m.AddRule(Rule{
		Name:      "everything.audit",
		AppliesTo: []string{AllFields},
		Validate:  func(any, RuleContext) RuleResult { return Pass() },
	}, nil))
	assert.Len(t, m.rulesForField(domainCache.FieldEnabled), 1)
}

func TestRuleManager_CustomConstraintsAndRelationships(t *testing.T) {
	m := NewDefaultRuleManager()

	m.SetCustomConstraint("even", func(v any, _ RuleContext) bool {
		n, ok := v.(int)
		return ok && n%2 == 0
	})
	c, ok := m.CustomConstraint("even")
	require.True(t, ok)
	assert.True(t, c(4, RuleContext{}))
	m.SetCustomConstraint("even", nil)
	_, ok = m.CustomConstraint("even")
	assert.False(t, ok)

	require.Len(t, m.RelationshipRules(), 1)
	require.True(t, m.SetRelationshipRuleEnabled("cleanupInterval.vs.defaultTTL", false))
	assert.Empty(t, m.RelationshipRules())
	assert.True(t, m.RemoveRelationshipRule("cleanupInterval.vs.defaultTTL"))
	assert.False(t, m.RemoveRelationshipRule("cleanupInterval.vs.defaultTTL"))
}

func TestRuleManager_ToggleRelationshipCategory(t *testing.T) {
	v := NewDefaultValidator()
	m := v.Rules()

	set := domainCache.DefaultConfigSet()
	set[domainCache.APIPool] = domainCache.PoolConfig{MaxSize: 10, DefaultTTL: 60000, CleanupInterval: 60000, Enabled: true}
	require.Contains(t, rulesNamed(v.Validate(set).Warnings), "cleanupInterval.vs.defaultTTL")

	before := m.Stats()
	assert.Equal(t, 1, before.ByCategory[CategoryRelationship])
	require.Len(t, m.RelationshipRulesByCategory(CategoryRelationship), 1)

	assert.Equal(t, 1, m.ToggleCategoryRules(CategoryRelationship, false))
	assert.NotContains(t, rulesNamed(v.Validate(set).Warnings), "cleanupInterval.vs.defaultTTL")
	assert.Empty(t, m.RelationshipRulesByCategory(CategoryRelationship))
	assert.Equal(t, before.Enabled-1, m.Stats().Enabled)

	assert.Equal(t, 1, m.ToggleCategoryRules(CategoryRelationship, true))
	assert.Contains(t, rulesNamed(v.Validate(set).Warnings), "cleanupInterval.vs.defaultTTL")
}
