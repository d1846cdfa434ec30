package rest

import (
	"github.com/AzielCF/az-cache/pkg/keyworker"
	"github.com/gofiber/fiber/v2"
)

type WorkerPool struct {
	Pool *keyworker.Pool
}

func InitRestWorkerPool(app fiber.Router, pool *keyworker.Pool) WorkerPool {
	handler := WorkerPool{Pool: pool}
	app.Get("/cache/invalidate/workers", handler.GetStats)
	return handler
}

// GetStats returns real-time statistics of the delayed invalidation workers.
func (h *WorkerPool) GetStats(c *fiber.Ctx) error {
	if h.Pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Invalidation worker pool not initialized",
		})
	}
	return c.JSON(h.Pool.Stats())
}
