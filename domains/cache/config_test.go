package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int     { return &v }
func i64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool  { return &v }

func TestMergeConfigs_LeavesUnspecifiedFieldsUntouched(t *testing.T) {
	base := DefaultConfigSet()
	patches := []ConfigPatch{
		{UserPool: {MaxSize: intPtr(42)}},
		{StatsPool: {DefaultTTL: i64Ptr(60000), Enabled: boolPtr(false)}},
		{ContentPool: {CleanupInterval: i64Ptr(15000)}, APIPool: {MaxSize: intPtr(1)}},
		{},
	}

	for _, patch := range patches {
		merged := MergeConfigs(base, patch)
		for _, pool := range AllPools() {
			want := base[pool]
			if p, ok := patch[pool]; ok {
				want = p.Apply(want)
				if p.MaxSize != nil {
					assert.Equal(t, *p.MaxSize, merged[pool].MaxSize)
				}
				if p.DefaultTTL != nil {
					assert.Equal(t, *p.DefaultTTL, merged[pool].DefaultTTL)
				}
				if p.CleanupInterval != nil {
					assert.Equal(t, *p.CleanupInterval, merged[pool].CleanupInterval)
				}
				if p.Enabled != nil {
					assert.Equal(t, *p.Enabled, merged[pool].Enabled)
				}
			}
			assert.Equal(t, want, merged[pool], "pool %s", pool)
		}
	}

	// base must not be mutated
	assert.True(t, base.Equal(DefaultConfigSet()))
}

func TestDiffConfigs_OneEntryPerChangedField(t *testing.T) {
	oldSet := DefaultConfigSet()
	newSet := oldSet.Clone()
	u := newSet[UserPool]
	u.MaxSize = 2000
	u.Enabled = false
	newSet[UserPool] = u
	a := newSet[APIPool]
	a.DefaultTTL = 600000
	newSet[APIPool] = a

	changes := DiffConfigs(oldSet, newSet)
	require.Len(t, changes, 3)
	assert.Equal(t, Change{Path: "user.maxSize", OldValue: 1000, NewValue: 2000}, changes[0])
	assert.Equal(t, Change{Path: "user.enabled", OldValue: true, NewValue: false}, changes[1])
	assert.Equal(t, Change{Path: "api.defaultTTL", OldValue: int64(300000), NewValue: int64(600000)}, changes[2])

	assert.Empty(t, DiffConfigs(oldSet, oldSet.Clone()))
}

func TestDiffConfigs_PoolOnOneSide(t *testing.T) {
	oldSet := ConfigSet{UserPool: {MaxSize: 1, DefaultTTL: 2, CleanupInterval: 1, Enabled: true}}
	changes := DiffConfigs(oldSet, ConfigSet{})
	require.Len(t, changes, len(Fields()))
	for _, c := range changes {
		assert.Nil(t, c.NewValue)
	}
}

func TestConfigSet_SetPath(t *testing.T) {
	set := DefaultConfigSet()

	require.NoError(t, set.SetPath("user.maxSize", "250"))
	require.NoError(t, set.SetPath("stats.defaultTTL", float64(90000)))
	require.NoError(t, set.SetPath("api.enabled", "off"))
	require.NoError(t, set.SetPath("content.cleanupInterval", json.Number("30000")))

	assert.Equal(t, 250, set[UserPool].MaxSize)
	assert.Equal(t, int64(90000), set[StatsPool].DefaultTTL)
	assert.False(t, set[APIPool].Enabled)
	assert.Equal(t, int64(30000), set[ContentPool].CleanupInterval)

	assert.ErrorIs(t, set.SetPath("nope.maxSize", 1), ErrUnknownPool)
	assert.ErrorIs(t, set.SetPath("user.colour", 1), ErrUnknownField)
	assert.Error(t, set.SetPath("user.maxSize", 1.5))
	assert.Error(t, set.SetPath("user", 1))
}

func TestConfigSet_CloneIsIndependent(t *testing.T) {
	set := DefaultConfigSet()
	clone := set.Clone()
	c := clone[UserPool]
	c.MaxSize = 1
	clone[UserPool] = c

	assert.Equal(t, 1000, set[UserPool].MaxSize)
}

func TestParsePoolName(t *testing.T) {
	p, err := ParsePoolName(" Stats ")
	require.NoError(t, err)
	assert.Equal(t, StatsPool, p)

	_, err = ParsePoolName("images")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestPatterns(t *testing.T) {
	keys := []string{"user:1:profile", "user:2:profile", "content:1"}

	wild, err := ParsePattern("user:*")
	require.NoError(t, err)
	assert.Equal(t, PatternWildcard, wild.Kind())

	var matched []string
	for _, k := range keys {
		if wild.Match(k) {
			matched = append(matched, k)
		}
	}
	assert.Equal(t, []string{"user:1:profile", "user:2:profile"}, matched)

	exact, err := ParsePattern("content:1")
	require.NoError(t, err)
	assert.True(t, exact.Match("content:1"))
	assert.False(t, exact.Match("content:10"))

	re := MustRegexPattern(`^user:\d+:profile$`)
	assert.True(t, re.Match("user:7:profile"))
	assert.False(t, re.Match("xuser:7:profile"))

	_, err = NewPattern("bogus", "x")
	assert.Error(t, err)
}

func TestWildcardPattern_OnlyStarIsSpecial(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		match   bool
	}{
		{"user:[admin]:*", "user:[admin]:profile", true},
		{"user:[admin]:*", "user:a:profile", false},
		{"tag:{a,b}:*", "tag:{a,b}:1", true},
		{"tag:{a,b}:*", "tag:a:1", false},
		{"q?:*", "q?:x", true},
		{"q?:*", "qx:x", false},
		{`path\*`, `path\to`, true},
		{"*:profile", "user:1:profile", true},
		{"user:*:profile", "user:1:settings", false},
	}
	for _, tc := range cases {
		p, err := ParsePattern(tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.match, p.Match(tc.key), "%s vs %s", tc.pattern, tc.key)
		assert.Equal(t, tc.pattern, p.String())
	}
}

func TestInvalidationRule_MarshalJSON(t *testing.T) {
	rule := InvalidationRule{Name: "r", Pattern: MustRegexPattern("^user:"), Pools: []PoolName{UserPool}, Enabled: true, Priority: 3}
	data, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"r","pools":["user"],"enabled":true,"priority":3,"pattern_kind":"regex","pattern":"^user:"}`, string(data))
}

func TestUpdateOptionsPatch_Resolve(t *testing.T) {
	var nilPatch *UpdateOptionsPatch
	assert.Equal(t, DefaultUpdateOptions(), nilPatch.Resolve())

	var patch UpdateOptionsPatch
	require.NoError(t, json.Unmarshal([]byte(`{"source":"env"}`), &patch))
	opts := patch.Resolve()
	assert.True(t, opts.Validate)
	assert.True(t, opts.Backup)
	assert.True(t, opts.NotifyListeners)
	assert.Equal(t, SourceEnv, opts.Source)

	opts = (&UpdateOptionsPatch{Backup: boolPtr(false)}).Resolve()
	assert.True(t, opts.Validate)
	assert.False(t, opts.Backup)
}
