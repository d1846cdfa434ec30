package cacheperf

import (
	"testing"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePerformance_Defaults(t *testing.T) {
	analysis := AnalyzePerformance(domainCache.DefaultConfigSet())

	assert.Equal(t, int64(2850*1024), analysis.MemoryEstimate.Total)
	assert.Equal(t, "2.8 MiB", analysis.MemoryEstimate.Formatted)
	assert.Greater(t, analysis.PerformanceScore, 80.0)
	assert.LessOrEqual(t, analysis.PerformanceScore, 100.0)
	assert.Empty(t, analysis.Bottlenecks)

	risk := HasPerformanceRisks(domainCache.DefaultConfigSet())
	assert.Equal(t, domainCache.RiskLow, risk.Level)
}

func TestAnalyzePerformance_CompoundingOrder(t *testing.T) {
	set := domainCache.ConfigSet{
		domainCache.UserPool: {MaxSize: 1000, DefaultTTL: 48 * 3600 * 1000, CleanupInterval: 5000, Enabled: true},
	}

	// 100 -> mem 100 -> ttl 80 -> cleanup 90 -> consistency 100
	assert.Equal(t, 93.88, AnalyzePerformance(set).PerformanceScore)

	risk := HasPerformanceRisks(set)
	assert.Equal(t, domainCache.RiskHigh, risk.Level)
}

func TestAnalyzePerformance_PerfectSinglePool(t *testing.T) {
	set := domainCache.ConfigSet{
		domainCache.UserPool: {MaxSize: 1000, DefaultTTL: 3600000, CleanupInterval: 600000, Enabled: true},
	}
	assert.Equal(t, 100.0, AnalyzePerformance(set).PerformanceScore)
}

func TestAnalyzePerformance_ScoreMonotonicBeyondCeiling(t *testing.T) {
	set := domainCache.DefaultConfigSet()
	prev := 101.0
	for _, size := range []int{110000, 150000, 200000, 400000, 1000000} {
		c := set[domainCache.ContentPool]
		c.MaxSize = size
		set[domainCache.ContentPool] = c

		analysis := AnalyzePerformance(set)
		require.Greater(t, analysis.MemoryEstimate.Total, MemoryCeiling)
		assert.LessOrEqual(t, analysis.PerformanceScore, prev, "maxSize %d", size)
		prev = analysis.PerformanceScore
	}
}

func TestGenerateOptimizationSuggestions_SortedByPriority(t *testing.T) {
	set := domainCache.DefaultConfigSet()
	set[domainCache.APIPool] = domainCache.PoolConfig{MaxSize: 5, DefaultTTL: 60000, CleanupInterval: 50000, Enabled: true}
	set[domainCache.ConfigPool] = domainCache.PoolConfig{MaxSize: 50, DefaultTTL: 48 * 3600 * 1000, CleanupInterval: 3600000, Enabled: true}

	suggestions := GenerateOptimizationSuggestions(set)
	require.NotEmpty(t, suggestions)
	for i := 1; i < len(suggestions); i++ {
		assert.GreaterOrEqual(t, suggestions[i-1].Priority.Rank(), suggestions[i].Priority.Rank())
	}
	assert.Equal(t, domainCache.PriorityHigh, suggestions[0].Priority)
	assert.Equal(t, "config.defaultTTL", suggestions[0].ConfigPath)

	var paths []string
	for _, s := range suggestions {
		paths = append(paths, s.ConfigPath)
	}
	assert.Contains(t, paths, "api.cleanupInterval")
	assert.Contains(t, paths, "api.maxSize")
}

func TestEstimateMemoryUsage_PerPool(t *testing.T) {
	est := EstimateMemoryUsage(domainCache.DefaultConfigSet())
	assert.Equal(t, int64(1000*1024), est.PerPool[domainCache.UserPool])
	assert.Equal(t, int64(50*1024), est.PerPool[domainCache.ConfigPool])
	assert.Len(t, est.PerPool, 6)
}
