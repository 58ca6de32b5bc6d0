package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Resonant-Projects/parkpick/app/controllers"
	"github.com/Resonant-Projects/parkpick/app/repository"
	"github.com/Resonant-Projects/parkpick/internal/pkg/cache"
	"github.com/Resonant-Projects/parkpick/internal/pkg/database"
	"github.com/Resonant-Projects/parkpick/internal/pkg/env"
	"github.com/Resonant-Projects/parkpick/internal/pkg/router"
	"github.com/Resonant-Projects/parkpick/internal/pkg/scheduler"
)

func main() {
	app, tasks := NewApplication()

	// Graceful shutdown: stop background tasks before the listener.
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		tasks.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *scheduler.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		AppName: "parkpick",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	tasks := scheduler.NewManager(controllers.ReferralService(), controllers.RecoveryService())
	tasks.Start()

	return app, tasks
}
