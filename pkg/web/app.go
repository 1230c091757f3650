package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp routes every admin endpoint.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/health", handlers.HealthCheck)
	app.Get("/functions", handlers.GetFunctions)
	app.Get("/functions/:id", handlers.GetFunction)
	app.Get("/regions/:name", handlers.GetRegion)
	app.Get("/executions", handlers.GetExecutions)
	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/connections", handlers.GetConnections)

	return app
}
