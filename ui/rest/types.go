package rest

import (
	domainCache "github.com/AzielCF/az-cache/domains/cache"
)

// UpdateConfigRequest is the body of PUT /cache/config. Omitted options,
// or omitted fields inside options, default to domainCache.DefaultUpdateOptions.
type UpdateConfigRequest struct {
	Config  domainCache.ConfigPatch         `json:"config"`
	Options *domainCache.UpdateOptionsPatch `json:"options,omitempty"`
}

// UpdatePoolRequest is the body of PUT /cache/config/:pool.
type UpdatePoolRequest struct {
	Config  domainCache.PoolConfigPatch     `json:"config"`
	Options *domainCache.UpdateOptionsPatch `json:"options,omitempty"`
}

type InvalidateKeyRequest struct {
	Key     string   `json:"key"`
	Pools   []string `json:"pools"`
	DelayMs int64    `json:"delay_ms"`
}

type InvalidatePatternRequest struct {
	Pattern string   `json:"pattern"`
	Kind    string   `json:"kind"`
	Pools   []string `json:"pools"`
}

type BatchInvalidateRequest struct {
	Keys  []string `json:"keys"`
	Pools []string `json:"pools"`
}

type ClearCachesRequest struct {
	Pools []string `json:"pools"`
}

// InvalidationSummary wraps per-pool results with their totals.
type InvalidationSummary struct {
	Deleted int                              `json:"deleted"`
	Failed  int                              `json:"failed"`
	Results []domainCache.InvalidationResult `json:"results"`
}

func summarize(results []domainCache.InvalidationResult) InvalidationSummary {
	s := InvalidationSummary{Results: results}
	if s.Results == nil {
		s.Results = []domainCache.InvalidationResult{}
	}
	for _, r := range results {
		s.Deleted += r.Deleted
		if !r.Success {
			s.Failed++
		}
	}
	return s
}
