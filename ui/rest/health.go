package rest

import (
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Health struct {
	Backends domainCache.BackendRegistry
}

// PoolHealth is the probe result of one pool backend.
type PoolHealth struct {
	Pool    domainCache.PoolName      `json:"pool"`
	Healthy bool                      `json:"healthy"`
	Error   string                    `json:"error,omitempty"`
	Stats   *domainCache.BackendStats `json:"stats,omitempty"`
}

func InitRestHealth(app fiber.Router, backends domainCache.BackendRegistry) Health {
	handler := Health{Backends: backends}

	group := app.Group("/api/health")
	group.Get("/status", handler.GetStatus)

	return handler
}

// GetStatus probes every registered pool through Stats and answers 503 when
// any of them fails.
func (h *Health) GetStatus(c *fiber.Ctx) error {
	records := make([]PoolHealth, 0)
	healthy := true
	for _, pool := range h.Backends.Pools() {
		record := PoolHealth{Pool: pool}
		backend, ok := h.Backends.Backend(pool)
		if !ok {
			record.Error = "no backend"
		} else if stats, err := backend.Stats(c.UserContext()); err != nil {
			record.Error = err.Error()
		} else {
			record.Healthy = true
			record.Stats = &stats
		}
		healthy = healthy && record.Healthy
		records = append(records, record)
	}

	if !healthy {
		return c.Status(503).JSON(utils.ResponseData{
			Status:  503,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "One or more cache pools are unhealthy",
			Results: records,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}
