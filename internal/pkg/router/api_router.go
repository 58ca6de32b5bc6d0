package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/Resonant-Projects/parkpick/app/controllers"
	"github.com/Resonant-Projects/parkpick/app/repository"
	"github.com/Resonant-Projects/parkpick/internal/pkg/env"
	"github.com/Resonant-Projects/parkpick/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/stats", controllers.HandleGetStatistics)

	protected := v1.Group("", middleware.APIKeyAuthMiddleware(
		repository.GetGlobalFactory().GetUserRepository(),
		controllers.QuotaService(),
	))
	protected.Get("/account", controllers.HandleGetUserAccount)
	protected.Post("/account/api-key", controllers.HandleIssueAPIKey)

	protected.Get("/parks", controllers.HandleListParks)
	protected.Post("/parks", controllers.HandleCreatePark)
	protected.Put("/parks/:id", controllers.HandleUpdatePark)
	protected.Delete("/parks/:id", controllers.HandleDeletePark)
	protected.Post("/picks/random", controllers.HandleRandomPick)

	protected.Post("/referrals", controllers.HandleReferralSignup)
	protected.Get("/referrals", controllers.HandleGetMyReferrals)
}

// newLimiterStorage backs the rate limiter with redis so limits hold across
// instances.
func newLimiterStorage() fiber.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
