package cacheperf

import domainCache "github.com/AzielCF/az-cache/domains/cache"

// reportRing is a fixed-capacity FIFO of reports. Not safe for concurrent use.
type reportRing struct {
	reports []domainCache.PerformanceReport
	idx     int
	count   int
}

func newReportRing(size int) *reportRing {
	if size <= 0 {
		size = 100
	}
	return &reportRing{reports: make([]domainCache.PerformanceReport, size)}
}

func (r *reportRing) push(report domainCache.PerformanceReport) {
	r.reports[r.idx] = report
	r.idx = (r.idx + 1) % len(r.reports)
	if r.count < len(r.reports) {
		r.count++
	}
}

// snapshot returns the retained reports oldest first.
func (r *reportRing) snapshot() []domainCache.PerformanceReport {
	out := make([]domainCache.PerformanceReport, 0, r.count)
	start := (r.idx - r.count) % len(r.reports)
	if start < 0 {
		start += len(r.reports)
	}
	for i := 0; i < r.count; i++ {
		rep := r.reports[(start+i)%len(r.reports)]
		rep.Recommendations = append([]string(nil), rep.Recommendations...)
		out = append(out, rep)
	}
	return out
}

func (r *reportRing) latest() (domainCache.PerformanceReport, bool) {
	if r.count == 0 {
		return domainCache.PerformanceReport{}, false
	}
	i := (r.idx - 1 + len(r.reports)) % len(r.reports)
	rep := r.reports[i]
	rep.Recommendations = append([]string(nil), rep.Recommendations...)
	return rep, true
}
