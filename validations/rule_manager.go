package validations

import (
	"fmt"
	"sort"
	"sync"
)

type ruleEntry struct {
	rule     Rule
	enabled  bool
	priority int
	category Category
	fields   map[string]struct{}
	seq      int
}

func (e *ruleEntry) appliesTo(field string) bool {
	if _, ok := e.fields[AllFields]; ok {
		return true
	}
	_, ok := e.fields[field]
	return ok
}

type relationshipEntry struct {
	rule     RelationshipRule
	enabled  bool
	category Category
}

// RuleStats summarises the registered rules.
type RuleStats struct {
	Total      int              `json:"total"`
	Enabled    int              `json:"enabled"`
	ByCategory map[Category]int `json:"by_category"`
}

// RuleManager owns rule registration, enablement, categories and priorities.
// It is safe for concurrent use.
type RuleManager struct {
	mu            sync.RWMutex
	rules         map[string]*ruleEntry
	relationships []*relationshipEntry
	constraints   map[string]Constraint
	seq           int
}

func NewRuleManager() *RuleManager {
	return &RuleManager{
		rules:       make(map[string]*ruleEntry),
		constraints: make(map[string]Constraint),
	}
}

// NewDefaultRuleManager returns a manager loaded with the default catalog.
func NewDefaultRuleManager() *RuleManager {
	m := NewRuleManager()
	for _, r := range DefaultRules() {
		_ = m.AddRule(r, nil)
	}
	for _, r := range DefaultRelationshipRules() {
		_ = m.AddRelationshipRule(r)
	}
	return m
}

// AddRule registers a rule. Priority defaults to insertion order.
func (m *RuleManager) AddRule(rule Rule, cfg *RuleConfig) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Validate == nil {
		return fmt.Errorf("rule %q has no validate function", rule.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.Name]; exists {
		return fmt.Errorf("rule %q already registered", rule.Name)
	}

	m.seq++
	entry := &ruleEntry{
		rule:     rule,
		enabled:  true,
		priority: m.seq,
		category: rule.Category,
		seq:      m.seq,
		fields:   map[string]struct{}{},
	}
	if entry.category == "" {
		entry.category = inferCategory(rule.Name)
	}
	if cfg != nil {
		if cfg.Enabled != nil {
			entry.enabled = *cfg.Enabled
		}
		if cfg.Priority != nil {
			entry.priority = *cfg.Priority
		}
		if cfg.Category != "" {
			entry.category = cfg.Category
		}
	}

	fields := rule.AppliesTo
	if len(fields) == 0 {
		fields = inferFields(rule.Name)
	}
	for _, f := range fields {
		entry.fields[f] = struct{}{}
	}

	m.rules[rule.Name] = entry
	return nil
}

func (m *RuleManager) RemoveRule(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[name]; !ok {
		return false
	}
	delete(m.rules, name)
	return true
}

func (m *RuleManager) EnableRule(name string) bool {
	return m.setEnabled(name, true)
}

func (m *RuleManager) DisableRule(name string) bool {
	return m.setEnabled(name, false)
}

func (m *RuleManager) setEnabled(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rules[name]
	if !ok {
		return false
	}
	e.enabled = enabled
	return true
}

// Rule returns a registered rule and whether it is enabled.
func (m *RuleManager) Rule(name string) (Rule, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rules[name]
	if !ok {
		return Rule{}, false, false
	}
	return e.rule, e.enabled, true
}

// EnabledRules returns enabled rules in ascending priority.
func (m *RuleManager) EnabledRules() []Rule {
	entries := m.enabledEntries(func(*ruleEntry) bool { return true })
	out := make([]Rule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out
}

// RulesByCategory returns enabled field rules of one category in ascending
// priority. Relationship rules are listed by RelationshipRulesByCategory.
func (m *RuleManager) RulesByCategory(category Category) []Rule {
	entries := m.enabledEntries(func(e *ruleEntry) bool { return e.category == category })
	out := make([]Rule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out
}

// rulesForField returns enabled rules selecting the field, in ascending priority.
func (m *RuleManager) rulesForField(field string) []Rule {
	entries := m.enabledEntries(func(e *ruleEntry) bool { return e.appliesTo(field) })
	out := make([]Rule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out
}

func (m *RuleManager) enabledEntries(keep func(*ruleEntry) bool) []*ruleEntry {
	m.mu.RLock()
	entries := make([]*ruleEntry, 0, len(m.rules))
	for _, e := range m.rules {
		if e.enabled && keep(e) {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}

// ToggleCategoryRules enables or disables every field and relationship rule
// of a category and returns how many rules it touched.
func (m *RuleManager) ToggleCategoryRules(category Category, enabled bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.rules {
		if e.category == category {
			e.enabled = enabled
			n++
		}
	}
	for _, e := range m.relationships {
		if e.category == category {
			e.enabled = enabled
			n++
		}
	}
	return n
}

// CategoryOf returns the effective category of a registered rule.
func (m *RuleManager) CategoryOf(name string) (Category, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rules[name]
	if !ok {
		return "", false
	}
	return e.category, true
}

// SetCustomConstraint stores a predicate for custom rules to consult. The
// engine never calls constraints by itself.
func (m *RuleManager) SetCustomConstraint(name string, c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c == nil {
		delete(m.constraints, name)
		return
	}
	m.constraints[name] = c
}

func (m *RuleManager) CustomConstraint(name string) (Constraint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.constraints[name]
	return c, ok
}

func (m *RuleManager) AddRelationshipRule(rule RelationshipRule) error {
	if rule.Name == "" || rule.Check == nil {
		return fmt.Errorf("relationship rule needs a name and a check function")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.relationships {
		if e.rule.Name == rule.Name {
			return fmt.Errorf("relationship rule %q already registered", rule.Name)
		}
	}
	category := rule.Category
	if category == "" {
		category = CategoryRelationship
	}
	m.relationships = append(m.relationships, &relationshipEntry{rule: rule, enabled: true, category: category})
	return nil
}

func (m *RuleManager) RemoveRelationshipRule(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.relationships {
		if e.rule.Name == name {
			m.relationships = append(m.relationships[:i], m.relationships[i+1:]...)
			return true
		}
	}
	return false
}

// SetRelationshipRuleEnabled toggles a relationship rule in place.
func (m *RuleManager) SetRelationshipRuleEnabled(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.relationships {
		if e.rule.Name == name {
			e.enabled = enabled
			return true
		}
	}
	return false
}

// RelationshipRulesByCategory returns enabled relationship rules of one
// category in registration order.
func (m *RuleManager) RelationshipRulesByCategory(category Category) []RelationshipRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RelationshipRule
	for _, e := range m.relationships {
		if e.enabled && e.category == category {
			out = append(out, e.rule)
		}
	}
	return out
}

// RelationshipRules returns enabled relationship rules in registration order.
func (m *RuleManager) RelationshipRules() []RelationshipRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RelationshipRule, 0, len(m.relationships))
	for _, e := range m.relationships {
		if e.enabled {
			out = append(out, e.rule)
		}
	}
	return out
}

func (m *RuleManager) Stats() RuleStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := RuleStats{Total: len(m.rules) + len(m.relationships), ByCategory: map[Category]int{}}
	for _, e := range m.rules {
		stats.ByCategory[e.category]++
		if e.enabled {
			stats.Enabled++
		}
	}
	for _, e := range m.relationships {
		stats.ByCategory[e.category]++
		if e.enabled {
			stats.Enabled++
		}
	}
	return stats
}
