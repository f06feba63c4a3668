package handlers

import (
	"log"

	"github.com/clipdigest/backend/internal/middleware"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type UsageHandler struct {
	usage *services.UsageService
}

func NewUsageHandler(usage *services.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// Get reports the caller's usage against their plan entitlement. Works
// for both authenticated users and fingerprinted anonymous callers, so
// the frontend can show "2 of 3 used" before anyone hits the wall.
func (h *UsageHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var result *services.UsageLimitResult
	var err error
	if user != nil {
		result, err = h.usage.CheckUsageLimit(user.ID)
	} else {
		fingerprint := middleware.GetFingerprint(c)
		if fingerprint == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Anonymous requests require a client fingerprint",
			})
		}
		result, err = h.usage.CheckAnonymousUsage(fingerprint)
	}
	if err != nil {
		log.Printf("Usage: check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to check usage",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}
