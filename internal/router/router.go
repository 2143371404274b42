package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-edp-api/internal/config"
	"github.com/noah-isme/gema-edp-api/internal/handler"
	"github.com/noah-isme/gema-edp-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EdpHandler    *handler.EdpHandler
	Gate          handler.GateStats
	JWTMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Gate))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.EdpHandler != nil {
		edp := api.Group("/edp", jwtMiddleware)
		deps.EdpHandler.Register(edp)
	}
}
