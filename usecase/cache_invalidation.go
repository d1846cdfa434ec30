package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/pkg/keyworker"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"
)

// InvalidationObserver is told about every completed invalidation operation.
type InvalidationObserver func(op string, results []domainCache.InvalidationResult)

type InvalidationOption func(*invalidationService)

func WithInvalidationObserver(fn InvalidationObserver) InvalidationOption {
	return func(s *invalidationService) {
		s.observer = fn
	}
}

// WithDelayedWorkers runs fired delayed invalidations on the pool instead of
// the timer goroutine. Invalidations of one key stay ordered.
func WithDelayedWorkers(pool *keyworker.Pool) InvalidationOption {
	return func(s *invalidationService) {
		s.workers = pool
	}
}

// Operation names passed to observers.
const (
	OpInvalidateKey      = "key"
	OpInvalidatePattern  = "pattern"
	OpInvalidateStrategy = "strategy"
	OpInvalidateBatch    = "batch"
	OpClear              = "clear"
)

type pendingInvalidation struct {
	timer *time.Timer
	gen   uint64
	pools []domainCache.PoolName
}

type invalidationService struct {
	backends domainCache.BackendRegistry
	observer InvalidationObserver
	workers  *keyworker.Pool

	rules        *xsync.Map[string, domainCache.InvalidationRule]
	strategies   *xsync.Map[string, domainCache.InvalidationStrategy]
	dependencies *xsync.Map[string, domainCache.CacheDependency]

	pendingMu sync.Mutex
	pending   map[string]*pendingInvalidation
	gen       uint64

	destroyed atomic.Bool
}

func NewInvalidationService(backends domainCache.BackendRegistry, opts ...InvalidationOption) domainCache.IInvalidationUsecase {
	s := &invalidationService{
		backends:     backends,
		rules:        xsync.NewMap[string, domainCache.InvalidationRule](),
		strategies:   xsync.NewMap[string, domainCache.InvalidationStrategy](),
		dependencies: xsync.NewMap[string, domainCache.CacheDependency](),
		pending:      make(map[string]*pendingInvalidation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvalidateByKey deletes the key from the given pools, or from every pool
// when none is given, then cascades through registered dependencies.
func (s *invalidationService) InvalidateByKey(ctx context.Context, key string, pools ...domainCache.PoolName) []domainCache.InvalidationResult {
	if s.destroyed.Load() {
		logrus.Warn("[CACHE_INVALIDATION] invalidate by key on a destroyed service")
		return []domainCache.InvalidationResult{}
	}
	results := s.invalidateKey(ctx, key, pools)
	s.observe(OpInvalidateKey, results)
	return results
}

func (s *invalidationService) invalidateKey(ctx context.Context, key string, pools []domainCache.PoolName) []domainCache.InvalidationResult {
	results := make([]domainCache.InvalidationResult, 0, len(pools))
	for _, pool := range s.targets(pools) {
		results = append(results, s.deleteKey(ctx, pool, key, ""))
	}
	visited := map[string]struct{}{key: {}}
	return s.cascade(ctx, key, visited, results)
}

// cascade deletes every dependent of key from the dependency's pool and
// recurses into the dependents. Keys already visited are skipped so cycles
// terminate.
func (s *invalidationService) cascade(ctx context.Context, key string, visited map[string]struct{}, results []domainCache.InvalidationResult) []domainCache.InvalidationResult {
	dep, ok := s.dependencies.Load(key)
	if !ok {
		return results
	}
	for _, dependent := range dep.Dependents {
		if _, seen := visited[dependent]; seen {
			logrus.Debugf("[CACHE_INVALIDATION] dependency cycle at %s -> %s, skipping", key, dependent)
			continue
		}
		visited[dependent] = struct{}{}
		results = append(results, s.deleteKey(ctx, dep.Pool, dependent, "dependency:"+key))
		results = s.cascade(ctx, dependent, visited, results)
	}
	return results
}

func (s *invalidationService) deleteKey(ctx context.Context, pool domainCache.PoolName, key, rule string) domainCache.InvalidationResult {
	start := time.Now()
	res := domainCache.InvalidationResult{Pool: pool, Target: key, Rule: rule}

	backend, err := s.backend(pool)
	if err == nil {
		var deleted bool
		deleted, err = backend.Delete(ctx, key)
		if deleted {
			res.Deleted = 1
		}
	}
	return finish(res, err, start)
}

// InvalidateByPattern deletes every key matching the pattern with one batch
// delete per pool.
func (s *invalidationService) InvalidateByPattern(ctx context.Context, pattern domainCache.Pattern, pools ...domainCache.PoolName) []domainCache.InvalidationResult {
	if s.destroyed.Load() {
		logrus.Warn("[CACHE_INVALIDATION] invalidate by pattern on a destroyed service")
		return []domainCache.InvalidationResult{}
	}
	results := s.invalidatePattern(ctx, pattern, pools, "")
	s.observe(OpInvalidatePattern, results)
	return results
}

func (s *invalidationService) invalidatePattern(ctx context.Context, pattern domainCache.Pattern, pools []domainCache.PoolName, rule string) []domainCache.InvalidationResult {
	targets := s.targets(pools)
	results := make([]domainCache.InvalidationResult, 0, len(targets))
	for _, pool := range targets {
		start := time.Now()
		res := domainCache.InvalidationResult{Pool: pool, Target: pattern.String(), Rule: rule}

		backend, err := s.backend(pool)
		if err != nil {
			results = append(results, finish(res, err, start))
			continue
		}
		keys, err := backend.Keys(ctx)
		if err != nil {
			results = append(results, finish(res, fmt.Errorf("list keys: %w", err), start))
			continue
		}
		matched := make([]string, 0, len(keys))
		for _, k := range keys {
			if pattern.Match(k) {
				matched = append(matched, k)
			}
		}
		if len(matched) > 0 {
			res.Deleted, err = backend.MDel(ctx, matched)
		}
		results = append(results, finish(res, err, start))
	}
	return results
}

// InvalidateByStrategy runs the enabled rules of a strategy, highest priority
// first, after the strategy delay.
func (s *invalidationService) InvalidateByStrategy(ctx context.Context, name string) ([]domainCache.InvalidationResult, error) {
	if s.destroyed.Load() {
		return nil, domainCache.ErrServiceDestroyed
	}
	strategy, ok := s.strategies.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainCache.ErrUnknownStrategy, name)
	}

	if strategy.Delay > 0 {
		timer := time.NewTimer(strategy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	rules := make([]domainCache.InvalidationRule, 0, len(strategy.Rules))
	for _, r := range strategy.Rules {
		if r.Enabled && r.Pattern != nil {
			rules = append(rules, r)
		}
	}
	sortRules(rules)

	results := []domainCache.InvalidationResult{}
	for _, rule := range rules {
		results = append(results, s.invalidatePattern(ctx, rule.Pattern, rule.Pools, rule.Name)...)
	}

	logrus.Infof("[CACHE_INVALIDATION] strategy %s ran %d rules", name, len(rules))
	s.observe(OpInvalidateStrategy, results)
	return results, nil
}

// InvalidateWithDelay schedules an invalidation of key. A later call for the
// same key before the first fires replaces it.
func (s *invalidationService) InvalidateWithDelay(key string, delay time.Duration, pools ...domainCache.PoolName) error {
	if s.destroyed.Load() {
		return domainCache.ErrServiceDestroyed
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", delay)
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	p := &pendingInvalidation{
		gen:   gen,
		pools: append([]domainCache.PoolName(nil), pools...),
	}
	p.timer = time.AfterFunc(delay, func() { s.firePending(key, gen) })
	s.pending[key] = p
	return nil
}

func (s *invalidationService) firePending(key string, gen uint64) {
	s.pendingMu.Lock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen {
		s.pendingMu.Unlock()
		return
	}
	delete(s.pending, key)
	s.pendingMu.Unlock()

	if s.workers != nil {
		ok := s.workers.TryDispatch(keyworker.Job{
			Key: key,
			Handler: func(ctx context.Context) error {
				s.runDelayed(ctx, key, p.pools)
				return nil
			},
		})
		if ok {
			return
		}
	}
	s.runDelayed(context.Background(), key, p.pools)
}

func (s *invalidationService) runDelayed(ctx context.Context, key string, pools []domainCache.PoolName) {
	results := s.InvalidateByKey(ctx, key, pools...)
	for _, r := range results {
		if !r.Success {
			logrus.Warnf("[CACHE_INVALIDATION] delayed invalidation of %s in %s failed: %s", key, r.Pool, r.Error)
		}
	}
}

func (s *invalidationService) BatchInvalidate(ctx context.Context, keys []string, pools ...domainCache.PoolName) []domainCache.InvalidationResult {
	if s.destroyed.Load() {
		logrus.Warn("[CACHE_INVALIDATION] batch invalidate on a destroyed service")
		return []domainCache.InvalidationResult{}
	}
	results := []domainCache.InvalidationResult{}
	for _, key := range keys {
		results = append(results, s.invalidateKey(ctx, key, pools)...)
	}
	s.observe(OpInvalidateBatch, results)
	return results
}

// ClearCaches wipes whole pools and records how many entries each held.
func (s *invalidationService) ClearCaches(ctx context.Context, pools ...domainCache.PoolName) []domainCache.InvalidationResult {
	if s.destroyed.Load() {
		logrus.Warn("[CACHE_INVALIDATION] clear on a destroyed service")
		return []domainCache.InvalidationResult{}
	}
	targets := s.targets(pools)
	results := make([]domainCache.InvalidationResult, 0, len(targets))
	for _, pool := range targets {
		start := time.Now()
		res := domainCache.InvalidationResult{Pool: pool, Target: "*"}

		backend, err := s.backend(pool)
		if err == nil {
			if stats, statsErr := backend.Stats(ctx); statsErr == nil {
				res.Deleted = stats.Size
			} else {
				logrus.WithError(statsErr).Warnf("[CACHE_INVALIDATION] could not size %s before clearing", pool)
			}
			err = backend.Clear(ctx)
		}
		if err != nil {
			res.Deleted = 0
		}
		results = append(results, finish(res, err, start))
	}
	s.observe(OpClear, results)
	return results
}

func (s *invalidationService) RegisterRule(rule domainCache.InvalidationRule) error {
	if s.destroyed.Load() {
		return domainCache.ErrServiceDestroyed
	}
	if err := checkRule(rule); err != nil {
		return err
	}
	s.rules.Store(rule.Name, rule)
	return nil
}

func (s *invalidationService) RegisterRules(rules ...domainCache.InvalidationRule) error {
	for _, r := range rules {
		if err := s.RegisterRule(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *invalidationService) RegisterStrategy(strategy domainCache.InvalidationStrategy) error {
	if s.destroyed.Load() {
		return domainCache.ErrServiceDestroyed
	}
	if strategy.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	for _, r := range strategy.Rules {
		if err := checkRule(r); err != nil {
			return fmt.Errorf("strategy %s: %w", strategy.Name, err)
		}
	}
	strategy.Rules = append([]domainCache.InvalidationRule(nil), strategy.Rules...)
	s.strategies.Store(strategy.Name, strategy)
	return nil
}

// RegisterDependency replaces any dependency previously registered for the key.
func (s *invalidationService) RegisterDependency(dep domainCache.CacheDependency) error {
	if s.destroyed.Load() {
		return domainCache.ErrServiceDestroyed
	}
	if dep.Key == "" {
		return fmt.Errorf("dependency key is required")
	}
	if !dep.Pool.Valid() {
		return fmt.Errorf("%w: %q", domainCache.ErrUnknownPool, dep.Pool)
	}
	dep.Dependents = append([]string(nil), dep.Dependents...)
	s.dependencies.Store(dep.Key, dep)
	return nil
}

// Rules returns registered rules, highest priority first.
func (s *invalidationService) Rules() []domainCache.InvalidationRule {
	out := make([]domainCache.InvalidationRule, 0, s.rules.Size())
	s.rules.Range(func(_ string, r domainCache.InvalidationRule) bool {
		out = append(out, r)
		return true
	})
	sortRules(out)
	return out
}

func (s *invalidationService) Strategies() []domainCache.InvalidationStrategy {
	out := make([]domainCache.InvalidationStrategy, 0, s.strategies.Size())
	s.strategies.Range(func(_ string, st domainCache.InvalidationStrategy) bool {
		st.Rules = append([]domainCache.InvalidationRule(nil), st.Rules...)
		out = append(out, st)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *invalidationService) Dependencies() []domainCache.CacheDependency {
	out := make([]domainCache.CacheDependency, 0, s.dependencies.Size())
	s.dependencies.Range(func(_ string, d domainCache.CacheDependency) bool {
		d.Dependents = append([]string(nil), d.Dependents...)
		out = append(out, d)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// PendingInvalidations lists keys with an armed delayed invalidation.
func (s *invalidationService) PendingInvalidations() []string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CancelPendingInvalidations disarms every delayed invalidation and returns
// how many were pending.
func (s *invalidationService) CancelPendingInvalidations() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	n := len(s.pending)
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
	return n
}

// Destroy cancels pending work and clears every registry. The service is
// unusable afterwards.
func (s *invalidationService) Destroy() {
	if s.destroyed.Swap(true) {
		return
	}
	n := s.CancelPendingInvalidations()
	s.rules.Clear()
	s.strategies.Clear()
	s.dependencies.Clear()
	logrus.Infof("[CACHE_INVALIDATION] destroyed, %d pending invalidations cancelled", n)
}

func (s *invalidationService) targets(pools []domainCache.PoolName) []domainCache.PoolName {
	if len(pools) > 0 {
		return pools
	}
	if s.backends == nil {
		return nil
	}
	return s.backends.Pools()
}

func (s *invalidationService) backend(pool domainCache.PoolName) (domainCache.Backend, error) {
	if !pool.Valid() {
		return nil, fmt.Errorf("%w: %q", domainCache.ErrUnknownPool, pool)
	}
	if s.backends == nil {
		return nil, domainCache.ErrNoBackend
	}
	b, ok := s.backends.Backend(pool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainCache.ErrNoBackend, pool)
	}
	return b, nil
}

func (s *invalidationService) observe(op string, results []domainCache.InvalidationResult) {
	for _, r := range results {
		if !r.Success {
			logrus.Warnf("[CACHE_INVALIDATION] %s %s in %s failed: %s", op, r.Target, r.Pool, r.Error)
		}
	}
	if s.observer != nil {
		s.observer(op, results)
	}
}

func finish(res domainCache.InvalidationResult, err error, start time.Time) domainCache.InvalidationResult {
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func checkRule(rule domainCache.InvalidationRule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Pattern == nil {
		return fmt.Errorf("rule %s has no pattern", rule.Name)
	}
	for _, p := range rule.Pools {
		if !p.Valid() {
			return fmt.Errorf("rule %s: %w: %q", rule.Name, domainCache.ErrUnknownPool, p)
		}
	}
	return nil
}

func sortRules(rules []domainCache.InvalidationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].Name < rules[j].Name
	})
}
