package rest

import (
	"runtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	Version  string
	Gatherer prometheus.Gatherer
}

// InitRestApp mounts /app/version and, when gatherer is not nil, /metrics.
func InitRestApp(app fiber.Router, version string, gatherer prometheus.Gatherer) App {
	rest := App{Version: version, Gatherer: gatherer}
	app.Get("/app/version", rest.GetVersion)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return rest
}

func (handler *App) GetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": handler.Version,
		"os":      runtime.GOOS,
	})
}
