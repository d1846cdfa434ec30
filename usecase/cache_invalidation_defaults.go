package usecase

import (
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/sirupsen/logrus"
)

// Built-in strategy names.
const (
	StrategyUserAction        = "user-action"
	StrategyContentAction     = "content-action"
	StrategySystemMaintenance = "system-maintenance"
)

func prefixRule(name, prefix string, priority int, pools ...domainCache.PoolName) domainCache.InvalidationRule {
	return domainCache.InvalidationRule{
		Name:     name,
		Pattern:  domainCache.MustRegexPattern("^" + prefix),
		Pools:    pools,
		Enabled:  true,
		Priority: priority,
	}
}

func UserInvalidationRules() []domainCache.InvalidationRule {
	return []domainCache.InvalidationRule{
		prefixRule("user-profile", "user:", 10, domainCache.UserPool),
		prefixRule("user-sessions", "session:user:", 8, domainCache.SessionPool),
		prefixRule("user-api", "api:user:", 5, domainCache.APIPool),
	}
}

func ContentInvalidationRules() []domainCache.InvalidationRule {
	return []domainCache.InvalidationRule{
		prefixRule("content-items", "content:", 10, domainCache.ContentPool),
		prefixRule("content-api", "api:content:", 6, domainCache.APIPool),
	}
}

func StatsInvalidationRules() []domainCache.InvalidationRule {
	return []domainCache.InvalidationRule{
		prefixRule("stats-all", "stats:", 5, domainCache.StatsPool),
	}
}

func DefaultInvalidationStrategies() []domainCache.InvalidationStrategy {
	content := append(ContentInvalidationRules(), StatsInvalidationRules()...)
	maintenance := append(StatsInvalidationRules(), prefixRule("api-all", "api:", 3, domainCache.APIPool))

	return []domainCache.InvalidationStrategy{
		{
			Name:        StrategyUserAction,
			Description: "user profile, session or permission change",
			Rules:       UserInvalidationRules(),
		},
		{
			Name:        StrategyContentAction,
			Description: "content created, edited or removed",
			Rules:       content,
		},
		{
			Name:        StrategySystemMaintenance,
			Description: "periodic flush of derived data",
			Rules:       maintenance,
		},
	}
}

// NewDefaultInvalidationService returns a service with the built-in rules and
// strategies registered.
func NewDefaultInvalidationService(backends domainCache.BackendRegistry, opts ...InvalidationOption) domainCache.IInvalidationUsecase {
	svc := NewInvalidationService(backends, opts...)

	var rules []domainCache.InvalidationRule
	rules = append(rules, UserInvalidationRules()...)
	rules = append(rules, ContentInvalidationRules()...)
	rules = append(rules, StatsInvalidationRules()...)
	if err := svc.RegisterRules(rules...); err != nil {
		logrus.WithError(err).Error("[CACHE_INVALIDATION] registering default rules")
	}
	for _, st := range DefaultInvalidationStrategies() {
		if err := svc.RegisterStrategy(st); err != nil {
			logrus.WithError(err).Errorf("[CACHE_INVALIDATION] registering strategy %s", st.Name)
		}
	}
	return svc
}
