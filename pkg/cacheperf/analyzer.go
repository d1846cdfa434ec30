package cacheperf

import (
	"fmt"
	"math"
	"sort"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/dustin/go-humanize"
)

const (
	MemoryCeiling      int64 = 100 * 1024 * 1024
	OptimalTTL               = time.Hour
	VeryLongTTL              = 24 * time.Hour
	MinCleanupInterval       = 10 * time.Second
	MinUsefulPoolSize        = 10
	PoolMemoryWarning  int64 = 50 * 1024 * 1024
)

// Stage weights, applied in this order.
const (
	memoryWeight      = 0.4
	ttlWeight         = 0.3
	cleanupWeight     = 0.2
	consistencyWeight = 0.1
)

// EstimateMemoryUsage returns the per-pool and total static footprint of a set.
func EstimateMemoryUsage(set domainCache.ConfigSet) domainCache.MemoryEstimate {
	est := domainCache.MemoryEstimate{PerPool: make(map[domainCache.PoolName]int64, len(set))}
	for pool, cfg := range set {
		n := domainCache.EstimatePoolMemory(cfg)
		est.PerPool[pool] = n
		if est.Total > math.MaxInt64-n {
			est.Total = math.MaxInt64
		} else {
			est.Total += n
		}
	}
	est.Formatted = formatBytes(est.Total)
	return est
}

// AnalyzePerformance scores a configuration snapshot. It is deterministic and
// has no side effects.
func AnalyzePerformance(set domainCache.ConfigSet) domainCache.PerformanceAnalysis {
	est := EstimateMemoryUsage(set)

	score := 100.0
	score = blend(score, memoryScore(est.Total), memoryWeight)
	score = blend(score, ttlScore(set), ttlWeight)
	score = blend(score, cleanupScore(set), cleanupWeight)
	score = blend(score, consistencyScore(set, est.Total), consistencyWeight)

	suggestions := GenerateOptimizationSuggestions(set)
	return domainCache.PerformanceAnalysis{
		MemoryEstimate:   est,
		PerformanceScore: math.Round(score*100) / 100,
		Bottlenecks:      bottlenecks(set, est),
		Recommendations:  suggestions,
	}
}

// GenerateOptimizationSuggestions returns suggestions sorted by descending
// priority. Equal priorities keep pool and check order.
func GenerateOptimizationSuggestions(set domainCache.ConfigSet) []domainCache.OptimizationSuggestion {
	out := []domainCache.OptimizationSuggestion{}
	est := EstimateMemoryUsage(set)

	if est.Total > MemoryCeiling {
		largest := largestPool(set)
		cfg := set[largest]
		target := int(float64(cfg.MaxSize) * float64(MemoryCeiling) / float64(est.Total))
		out = append(out, domainCache.OptimizationSuggestion{
			Type:           domainCache.SuggestionMemory,
			Priority:       domainCache.PriorityHigh,
			Description:    fmt.Sprintf("total estimated memory %s exceeds %s", est.Formatted, formatBytes(MemoryCeiling)),
			CurrentValue:   cfg.MaxSize,
			SuggestedValue: target,
			ExpectedImpact: "brings the estimated footprint back under the memory ceiling",
			ConfigPath:     domainCache.Path(largest, domainCache.FieldMaxSize),
		})
	}

	for _, pool := range set.Pools() {
		cfg := set[pool]
		ttl := cfg.TTL()
		cleanup := cfg.Cleanup()

		if mem := est.PerPool[pool]; mem > PoolMemoryWarning {
			out = append(out, domainCache.OptimizationSuggestion{
				Type:           domainCache.SuggestionMemory,
				Priority:       domainCache.PriorityMedium,
				Description:    fmt.Sprintf("pool %s is estimated at %s", pool, formatBytes(mem)),
				CurrentValue:   cfg.MaxSize,
				SuggestedValue: int(PoolMemoryWarning / domainCache.BytesPerEntry),
				ExpectedImpact: "reduces the pool footprint",
				ConfigPath:     domainCache.Path(pool, domainCache.FieldMaxSize),
			})
		}

		switch {
		case ttl > VeryLongTTL:
			out = append(out, ttlSuggestion(pool, cfg, domainCache.PriorityHigh, "keeps stale entries for more than a day"))
		case ttl > 2*OptimalTTL:
			out = append(out, ttlSuggestion(pool, cfg, domainCache.PriorityLow, "keeps entries much longer than usual"))
		}

		if cfg.CleanupInterval > 0 && cleanup < MinCleanupInterval {
			out = append(out, domainCache.OptimizationSuggestion{
				Type:           domainCache.SuggestionCleanup,
				Priority:       domainCache.PriorityMedium,
				Description:    fmt.Sprintf("pool %s sweeps every %s", pool, cleanup),
				CurrentValue:   cfg.CleanupInterval,
				SuggestedValue: MinCleanupInterval.Milliseconds(),
				ExpectedImpact: "less CPU spent on expiry sweeps",
				ConfigPath:     domainCache.Path(pool, domainCache.FieldCleanupInterval),
			})
		} else if cfg.DefaultTTL > 0 && cleanup > ttl/2 {
			out = append(out, domainCache.OptimizationSuggestion{
				Type:           domainCache.SuggestionCleanup,
				Priority:       domainCache.PriorityMedium,
				Description:    fmt.Sprintf("pool %s sweeps every %s for a TTL of %s", pool, cleanup, ttl),
				CurrentValue:   cfg.CleanupInterval,
				SuggestedValue: cfg.DefaultTTL / 4,
				ExpectedImpact: "expired entries are released sooner",
				ConfigPath:     domainCache.Path(pool, domainCache.FieldCleanupInterval),
			})
		}

		if cfg.Enabled && cfg.MaxSize > 0 && cfg.MaxSize < MinUsefulPoolSize {
			out = append(out, domainCache.OptimizationSuggestion{
				Type:           domainCache.SuggestionPerformance,
				Priority:       domainCache.PriorityLow,
				Description:    fmt.Sprintf("pool %s holds only %d entries", pool, cfg.MaxSize),
				CurrentValue:   cfg.MaxSize,
				SuggestedValue: MinUsefulPoolSize * 10,
				ExpectedImpact: "higher hit rate",
				ConfigPath:     domainCache.Path(pool, domainCache.FieldMaxSize),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

// HasPerformanceRisks rolls the analysis up to a single risk level.
func HasPerformanceRisks(set domainCache.ConfigSet) domainCache.RiskAssessment {
	analysis := AnalyzePerformance(set)
	risk := domainCache.RiskAssessment{Level: domainCache.RiskLow, Score: analysis.PerformanceScore, Reasons: []string{}}

	var high, medium bool
	for _, s := range analysis.Recommendations {
		switch s.Priority {
		case domainCache.PriorityHigh:
			high = true
			risk.Reasons = append(risk.Reasons, s.Description)
		case domainCache.PriorityMedium:
			medium = true
			risk.Reasons = append(risk.Reasons, s.Description)
		}
	}

	switch {
	case high || analysis.PerformanceScore < 60:
		risk.Level = domainCache.RiskHigh
	case medium || analysis.PerformanceScore < 80:
		risk.Level = domainCache.RiskMedium
	}
	if analysis.PerformanceScore < 80 {
		risk.Reasons = append(risk.Reasons, fmt.Sprintf("performance score %.2f", analysis.PerformanceScore))
	}
	return risk
}

func blend(score, sub, weight float64) float64 {
	return score*(1-weight) + sub*weight
}

func memoryScore(total int64) float64 {
	if total <= MemoryCeiling {
		return 100
	}
	over := float64(total-MemoryCeiling) / float64(MemoryCeiling) * 100
	return math.Max(0, 100-over)
}

func ttlScore(set domainCache.ConfigSet) float64 {
	score := 100.0
	for _, cfg := range set {
		ttl := cfg.TTL()
		if ttl > VeryLongTTL {
			score -= 20
		} else if ttl > 2*OptimalTTL {
			score -= 10
		}
	}
	return math.Max(0, score)
}

func cleanupScore(set domainCache.ConfigSet) float64 {
	score := 100.0
	for _, cfg := range set {
		if cfg.DefaultTTL > 0 && cfg.CleanupInterval*2 > cfg.DefaultTTL {
			score -= 15
		}
		if cfg.Cleanup() < MinCleanupInterval {
			score -= 10
		}
	}
	return math.Max(0, score)
}

// consistencyScore rewards uniform TTL and size policies across pools. Over
// the memory ceiling the size term is pinned to its maximum penalty.
func consistencyScore(set domainCache.ConfigSet, total int64) float64 {
	ttls := make([]float64, 0, len(set))
	sizes := make([]float64, 0, len(set))
	for _, pool := range set.Pools() {
		cfg := set[pool]
		ttls = append(ttls, float64(cfg.DefaultTTL))
		sizes = append(sizes, float64(cfg.MaxSize))
	}

	ttlPenalty := math.Min(50, coefficientOfVariation(ttls)*25)
	sizePenalty := 50.0
	if total <= MemoryCeiling {
		sizePenalty = math.Min(50, coefficientOfVariation(sizes)*25)
	}
	return math.Max(0, 100-ttlPenalty-sizePenalty)
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / math.Abs(mean)
}

func bottlenecks(set domainCache.ConfigSet, est domainCache.MemoryEstimate) []string {
	out := []string{}
	if est.Total > MemoryCeiling {
		out = append(out, fmt.Sprintf("estimated memory %s exceeds the %s ceiling", est.Formatted, formatBytes(MemoryCeiling)))
	}
	for _, pool := range set.Pools() {
		cfg := set[pool]
		if cfg.TTL() > VeryLongTTL {
			out = append(out, fmt.Sprintf("pool %s TTL %s is longer than %s", pool, cfg.TTL(), VeryLongTTL))
		}
		if cfg.CleanupInterval > 0 && cfg.Cleanup() < MinCleanupInterval {
			out = append(out, fmt.Sprintf("pool %s sweeps more often than every %s", pool, MinCleanupInterval))
		}
	}
	return out
}

func ttlSuggestion(pool domainCache.PoolName, cfg domainCache.PoolConfig, priority domainCache.Priority, reason string) domainCache.OptimizationSuggestion {
	return domainCache.OptimizationSuggestion{
		Type:           domainCache.SuggestionTTL,
		Priority:       priority,
		Description:    fmt.Sprintf("pool %s TTL of %s %s", pool, cfg.TTL(), reason),
		CurrentValue:   cfg.DefaultTTL,
		SuggestedValue: OptimalTTL.Milliseconds(),
		ExpectedImpact: "fresher data and lower memory residency",
		ConfigPath:     domainCache.Path(pool, domainCache.FieldDefaultTTL),
	}
}

func largestPool(set domainCache.ConfigSet) domainCache.PoolName {
	var best domainCache.PoolName
	for _, pool := range set.Pools() {
		if best == "" || set[pool].MaxSize > set[best].MaxSize {
			best = pool
		}
	}
	return best
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
