package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Resonant-Projects/parkpick/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// Provider webhooks authenticate via signature, not API key.
	app.Post("/webhooks/billing", controllers.HandleBillingWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
