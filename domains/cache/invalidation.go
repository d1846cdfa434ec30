package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Pattern selects keys of a pool for invalidation.
type Pattern interface {
	Match(key string) bool
	Kind() string
	String() string
}

const (
	PatternExact    = "exact"
	PatternWildcard = "wildcard"
	PatternRegex    = "regex"
)

// ExactPattern matches one key verbatim.
type ExactPattern string

func (p ExactPattern) Match(key string) bool { return string(p) == key }
func (p ExactPattern) Kind() string          { return PatternExact }
func (p ExactPattern) String() string        { return string(p) }

// WildcardPattern matches the whole key where '*' spans any run of
// characters, separators included. Every other character is literal.
type WildcardPattern struct {
	expr string
	g    glob.Glob
}

func NewWildcardPattern(expr string) (*WildcardPattern, error) {
	parts := strings.Split(expr, "*")
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	g, err := glob.Compile(strings.Join(parts, "*"))
	if err != nil {
		return nil, fmt.Errorf("invalid wildcard pattern %q: %w", expr, err)
	}
	return &WildcardPattern{expr: expr, g: g}, nil
}

func (p *WildcardPattern) Match(key string) bool { return p.g.Match(key) }
func (p *WildcardPattern) Kind() string          { return PatternWildcard }
func (p *WildcardPattern) String() string        { return p.expr }

// RegexPattern is the structured form used by the built-in rule sets, e.g. ^user:.
type RegexPattern struct {
	re *regexp.Regexp
}

func NewRegexPattern(expr string) (*RegexPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", expr, err)
	}
	return &RegexPattern{re: re}, nil
}

// MustRegexPattern panics on an invalid expression; only for package-level rule sets.
func MustRegexPattern(expr string) *RegexPattern {
	p, err := NewRegexPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *RegexPattern) Match(key string) bool { return p.re.MatchString(key) }
func (p *RegexPattern) Kind() string          { return PatternRegex }
func (p *RegexPattern) String() string        { return p.re.String() }

// ParsePattern treats strings containing '*' as wildcards and everything else as exact keys.
func ParsePattern(s string) (Pattern, error) {
	if strings.Contains(s, "*") {
		return NewWildcardPattern(s)
	}
	return ExactPattern(s), nil
}

// NewPattern builds a pattern of an explicit kind. An empty kind defers to ParsePattern.
func NewPattern(kind, expr string) (Pattern, error) {
	switch kind {
	case "":
		return ParsePattern(expr)
	case PatternExact:
		return ExactPattern(expr), nil
	case PatternWildcard:
		return NewWildcardPattern(expr)
	case PatternRegex:
		return NewRegexPattern(expr)
	}
	return nil, fmt.Errorf("unknown pattern kind %q", kind)
}

// InvalidationRule deletes every key matching Pattern from each of Pools.
type InvalidationRule struct {
	Name     string     `json:"name"`
	Pattern  Pattern    `json:"-"`
	Pools    []PoolName `json:"pools"`
	Enabled  bool       `json:"enabled"`
	Priority int        `json:"priority"`
}

func (r InvalidationRule) MarshalJSON() ([]byte, error) {
	type alias InvalidationRule
	var kind, expr string
	if r.Pattern != nil {
		kind, expr = r.Pattern.Kind(), r.Pattern.String()
	}
	return json.Marshal(struct {
		alias
		PatternKind string `json:"pattern_kind"`
		Pattern     string `json:"pattern"`
	}{alias(r), kind, expr})
}

// InvalidationStrategy is a named bundle of rules triggered as a unit.
type InvalidationStrategy struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Rules       []InvalidationRule `json:"rules"`
	Delay       time.Duration      `json:"delay"`
}

// CacheDependency declares that invalidating Key must also invalidate every
// key in Dependents, deleted from Pool.
type CacheDependency struct {
	Key        string   `json:"key"`
	Pool       PoolName `json:"pool"`
	Dependents []string `json:"dependents"`
}

// InvalidationResult is recorded per rule per pool; failures never abort siblings.
type InvalidationResult struct {
	Pool     PoolName      `json:"pool"`
	Target   string        `json:"target"`
	Rule     string        `json:"rule,omitempty"`
	Success  bool          `json:"success"`
	Deleted  int           `json:"deleted"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IInvalidationUsecase removes entries from pools when underlying data changes.
type IInvalidationUsecase interface {
	InvalidateByKey(ctx context.Context, key string, pools ...PoolName) []InvalidationResult
	InvalidateByPattern(ctx context.Context, pattern Pattern, pools ...PoolName) []InvalidationResult
	InvalidateByStrategy(ctx context.Context, name string) ([]InvalidationResult, error)
	InvalidateWithDelay(key string, delay time.Duration, pools ...PoolName) error
	BatchInvalidate(ctx context.Context, keys []string, pools ...PoolName) []InvalidationResult
	ClearCaches(ctx context.Context, pools ...PoolName) []InvalidationResult

	RegisterRule(rule InvalidationRule) error
	RegisterRules(rules ...InvalidationRule) error
	RegisterStrategy(strategy InvalidationStrategy) error
	RegisterDependency(dep CacheDependency) error
	Rules() []InvalidationRule
	Strategies() []InvalidationStrategy
	Dependencies() []CacheDependency

	PendingInvalidations() []string
	CancelPendingInvalidations() int
	Destroy()
}
