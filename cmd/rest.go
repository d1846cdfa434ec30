package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-cache/core/config"
	"github.com/AzielCF/az-cache/ui/rest"
	"github.com/AzielCF/az-cache/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the cache governance API over http",
	Run:   restServer,
}

func init() {
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		coreconfig.Global.App.BasicAuth = strings.Split(baFlag, ",")
	}

	app := fiber.New(fiber.Config{
		Network:      "tcp",
		AppName:      "Az-Cache",
		ServerHeader: "Hidden",
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if coreconfig.Global.App.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(coreconfig.Global.App.BasePath + "/api")

	if len(coreconfig.Global.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range coreconfig.Global.App.BasicAuth {
			ba := strings.Split(basicAuth, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: account,
			Next: func(c *fiber.Ctx) bool {
				// Allow CORS preflight without credentials.
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH is not set, the API is public")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		StopApp()
	}()

	var gatherer prometheus.Gatherer
	if metricsRegistry != nil {
		gatherer = metricsRegistry
	}
	rest.InitRestApp(apiGroup, coreconfig.Global.App.Version, gatherer)
	rest.InitRestHealth(apiGroup, cacheRegistry)

	var history rest.HistoryLister
	if historyService != nil {
		history = historyService
	}
	rest.InitRestCache(apiGroup, cacheConfigUsecase, invalidationUsecase, history)
	rest.InitRestWorkerPool(apiGroup, delayedWorkers)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	if err := app.Listen(":" + coreconfig.Global.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
