package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-edp-api/internal/config"
	"github.com/noah-isme/gema-edp-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	AIProvider  string    `json:"ai_provider"`
	GateLimit   int       `json:"grading_concurrency"`
	GateInUse   int       `json:"grading_in_flight"`
}

// GateStats reports admission gate usage.
type GateStats interface {
	Capacity() int
	InFlight() int
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, gate GateStats) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			AIProvider:  cfg.AIProvider,
		}
		if gate != nil {
			payload.GateLimit = gate.Capacity()
			payload.GateInUse = gate.InFlight()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
