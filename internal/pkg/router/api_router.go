package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/glorifyai/glorify/app/controllers"
	"github.com/glorifyai/glorify/internal/pkg/env"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The webhook endpoint is registered outside the limiter group: the
	// payment provider controls its own delivery rate and throttling it
	// only delays reconciliation.
	app.Post("/api/v1/stripe/webhook", controllers.HandleStripeWebhook)

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

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Post("/checkout/sessions", controllers.HandleCreateCheckoutSession)
	v1.Get("/checkout/verify", controllers.HandleVerifySession)
	v1.Post("/generate", controllers.HandleGenerateImage)
	v1.Get("/generate/:id/status", controllers.HandleGetGenerationStatus)
	v1.Get("/credits/balance", controllers.HandleGetBalance)
	v1.Get("/stats", controllers.HandleStats)
	v1.Delete("/stats", controllers.HandleResetStats)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances.
func newLimiterStorage() *redisstorage.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Database: 1,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
