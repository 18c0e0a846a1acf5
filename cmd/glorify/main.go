package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/glorifyai/glorify/internal/pkg/cache"
	"github.com/glorifyai/glorify/internal/pkg/database"
	"github.com/glorifyai/glorify/internal/pkg/env"
	"github.com/glorifyai/glorify/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "glorify",
		// Base64-encoded source images arrive in the request body.
		BodyLimit: 20 * 1024 * 1024,
	})

	app.Use(recover.New())
	if env.IsDev() {
		app.Use(logger.New())
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	router.InstallRouter(app)

	return app
}
