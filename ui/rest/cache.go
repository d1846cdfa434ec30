package rest

import (
	"context"
	"fmt"
	"strings"
	"time"

	historyDomain "github.com/AzielCF/az-cache/core/history/domain"
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	pkgError "github.com/AzielCF/az-cache/pkg/error"
	"github.com/AzielCF/az-cache/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HistoryLister serves GET /cache/config/history.
type HistoryLister interface {
	List(ctx context.Context, pool string, limit int) ([]historyDomain.ChangeRecord, error)
}

type Cache struct {
	Config       domainCache.ICacheConfigUsecase
	Invalidation domainCache.IInvalidationUsecase
	History      HistoryLister
}

func InitRestCache(app fiber.Router, config domainCache.ICacheConfigUsecase, invalidation domainCache.IInvalidationUsecase, history HistoryLister) Cache {
	rest := Cache{Config: config, Invalidation: invalidation, History: history}

	app.Get("/cache/config", rest.GetConfig)
	app.Put("/cache/config", rest.UpdateConfig)
	app.Get("/cache/config/state", rest.GetState)
	app.Get("/cache/config/history", rest.GetHistory)
	app.Post("/cache/config/reload", rest.Reload)
	app.Post("/cache/config/reset", rest.Reset)
	app.Post("/cache/config/validate", rest.Validate)
	app.Get("/cache/config/:pool", rest.GetPoolConfig)
	app.Put("/cache/config/:pool", rest.UpdatePoolConfig)

	app.Get("/cache/analysis", rest.GetAnalysis)
	app.Get("/cache/suggestions", rest.GetSuggestions)
	app.Get("/cache/performance/:pool", rest.GetPerformance)

	app.Get("/cache/invalidate/strategies", rest.ListStrategies)
	app.Get("/cache/invalidate/pending", rest.ListPending)
	app.Post("/cache/invalidate/key", rest.InvalidateKey)
	app.Post("/cache/invalidate/pattern", rest.InvalidatePattern)
	app.Post("/cache/invalidate/strategy/:name", rest.InvalidateStrategy)
	app.Post("/cache/invalidate/batch", rest.BatchInvalidate)
	app.Post("/cache/clear", rest.ClearCaches)

	return rest
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(400).JSON(utils.ResponseData{
		Status:  400,
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

func parsePools(raw []string) ([]domainCache.PoolName, error) {
	pools := make([]domainCache.PoolName, 0, len(raw))
	for _, r := range raw {
		p, err := domainCache.ParsePoolName(r)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func (handler *Cache) GetConfig(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache configuration retrieved",
		Results: handler.Config.GetConfig(),
	})
}

func (handler *Cache) GetPoolConfig(c *fiber.Ctx) error {
	pool, err := domainCache.ParsePoolName(c.Params("pool"))
	if err != nil {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	cfg, err := handler.Config.GetPoolConfig(pool)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Configuration of pool %s retrieved", pool),
		Results: cfg,
	})
}

func (handler *Cache) UpdateConfig(c *fiber.Ctx) error {
	var req UpdateConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if len(req.Config) == 0 {
		return badRequest(c, "config is required")
	}
	opts := req.Options.Resolve()

	result, err := handler.Config.UpdateConfig(c.UserContext(), req.Config, opts)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Cache configuration updated (%d changes)", len(result.Event.Changes)),
		Results: result,
	})
}

func (handler *Cache) UpdatePoolConfig(c *fiber.Ctx) error {
	pool, err := domainCache.ParsePoolName(c.Params("pool"))
	if err != nil {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	var req UpdatePoolRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Config.IsEmpty() {
		return badRequest(c, "config is required")
	}
	opts := req.Options.Resolve()

	result, err := handler.Config.UpdateInstanceConfig(c.UserContext(), pool, req.Config, opts)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Pool %s updated (%d changes)", pool, len(result.Event.Changes)),
		Results: result,
	})
}

func (handler *Cache) Reload(c *fiber.Ctx) error {
	result, err := handler.Config.ReloadConfig(c.UserContext(), domainCache.SourceManual)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache configuration reloaded",
		Results: result,
	})
}

func (handler *Cache) Reset(c *fiber.Ctx) error {
	result, err := handler.Config.ResetToDefault(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache configuration reset to defaults",
		Results: result,
	})
}

func (handler *Cache) Validate(c *fiber.Ctx) error {
	var set domainCache.ConfigSet
	if err := c.BodyParser(&set); err != nil {
		return badRequest(c, err.Error())
	}
	result := handler.Config.ValidateConfig(set)

	message := "Configuration is valid"
	if !result.Valid {
		message = fmt.Sprintf("Configuration has %d errors", len(result.Errors))
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: result,
	})
}

func (handler *Cache) GetState(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache configuration state retrieved",
		Results: handler.Config.GetState(),
	})
}

func (handler *Cache) GetHistory(c *fiber.Ctx) error {
	if handler.History == nil {
		return c.Status(503).JSON(utils.ResponseData{
			Status:  503,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "Configuration history is disabled",
		})
	}
	pool := strings.TrimSpace(c.Query("pool"))
	if pool != "" {
		if _, err := domainCache.ParsePoolName(pool); err != nil {
			return badRequest(c, err.Error())
		}
	}
	records, err := handler.History.List(c.UserContext(), strings.ToLower(pool), c.QueryInt("limit", 100))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("%d history records", len(records)),
		Results: records,
	})
}

func (handler *Cache) GetAnalysis(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Performance analysis computed",
		Results: map[string]any{
			"analysis": handler.Config.AnalyzePerformance(),
			"risks":    handler.Config.PerformanceRisks(),
		},
	})
}

func (handler *Cache) GetSuggestions(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Optimization suggestions computed",
		Results: handler.Config.OptimizationSuggestions(),
	})
}

// GetPerformance returns the retained reports of a pool; ?sample=true takes a
// fresh sample first.
func (handler *Cache) GetPerformance(c *fiber.Ctx) error {
	pool, err := domainCache.ParsePoolName(c.Params("pool"))
	if err != nil {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	if c.QueryBool("sample", false) {
		_, err := handler.Config.SamplePerformance(c.UserContext(), pool)
		utils.PanicIfNeeded(err)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Performance history of pool %s", pool),
		Results: handler.Config.PerformanceHistory(pool),
	})
}

func (handler *Cache) ListStrategies(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Invalidation registry retrieved",
		Results: map[string]any{
			"strategies":   handler.Invalidation.Strategies(),
			"rules":        handler.Invalidation.Rules(),
			"dependencies": handler.Invalidation.Dependencies(),
		},
	})
}

func (handler *Cache) ListPending(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Pending invalidations retrieved",
		Results: handler.Invalidation.PendingInvalidations(),
	})
}

func (handler *Cache) InvalidateKey(c *fiber.Ctx) error {
	var req InvalidateKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Key) == "" {
		return badRequest(c, "key is required")
	}
	pools, err := parsePools(req.Pools)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if req.DelayMs > 0 {
		err := handler.Invalidation.InvalidateWithDelay(req.Key, time.Duration(req.DelayMs)*time.Millisecond, pools...)
		utils.PanicIfNeeded(err)
		return c.Status(202).JSON(utils.ResponseData{
			Status:  202,
			Code:    "ACCEPTED",
			Message: fmt.Sprintf("Invalidation of %s scheduled in %dms", req.Key, req.DelayMs),
		})
	}

	results := handler.Invalidation.InvalidateByKey(c.UserContext(), req.Key, pools...)
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Key %s invalidated", req.Key),
		Results: summarize(results),
	})
}

func (handler *Cache) InvalidatePattern(c *fiber.Ctx) error {
	var req InvalidatePatternRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Pattern == "" {
		return badRequest(c, "pattern is required")
	}
	pattern, err := domainCache.NewPattern(req.Kind, req.Pattern)
	if err != nil {
		return badRequest(c, err.Error())
	}
	pools, err := parsePools(req.Pools)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results := handler.Invalidation.InvalidateByPattern(c.UserContext(), pattern, pools...)
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Pattern %s invalidated", pattern),
		Results: summarize(results),
	})
}

func (handler *Cache) InvalidateStrategy(c *fiber.Ctx) error {
	name := c.Params("name")
	results, err := handler.Invalidation.InvalidateByStrategy(c.UserContext(), name)
	if err != nil {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Strategy %s executed", name),
		Results: summarize(results),
	})
}

func (handler *Cache) BatchInvalidate(c *fiber.Ctx) error {
	var req BatchInvalidateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if len(req.Keys) == 0 {
		return badRequest(c, "keys are required")
	}
	pools, err := parsePools(req.Pools)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results := handler.Invalidation.BatchInvalidate(c.UserContext(), req.Keys, pools...)
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("%d keys invalidated", len(req.Keys)),
		Results: summarize(results),
	})
}

func (handler *Cache) ClearCaches(c *fiber.Ctx) error {
	var req ClearCachesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	pools, err := parsePools(req.Pools)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results := handler.Invalidation.ClearCaches(c.UserContext(), pools...)
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Caches cleared",
		Results: summarize(results),
	})
}
