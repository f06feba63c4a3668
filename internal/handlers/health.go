package handlers

import (
	"context"
	"time"

	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	summarizer *services.SummarizerClient
}

func NewHealthHandler(summarizer *services.SummarizerClient) *HealthHandler {
	return &HealthHandler{summarizer: summarizer}
}

// Live is the liveness probe: the process is up
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// Ready is the readiness probe: dependencies are reachable. A degraded
// summarizer does not fail readiness because the API can still serve
// reads and usage checks while the AI service is down.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	sqlDB, err := database.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if database.Redis != nil {
		if err := database.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not configured"
	}

	checks["summarizer"] = h.summarizer.Breaker().Stats()

	status := fiber.StatusOK
	statusText := "ok"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		statusText = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": statusText,
		"checks": checks,
	})
}
