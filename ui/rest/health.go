package rest

import (
	"github.com/wafilter/wafilter/config"
	"github.com/gofiber/fiber/v2"
)

// InitRestHealth registers the unauthenticated liveness probe.
func InitRestHealth(app fiber.Router) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"instance": config.AppInstanceName,
			"version":  config.AppVersion,
		})
	})
}
