package controllers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/glorifyai/glorify/internal/pkg/billing"
	"github.com/glorifyai/glorify/internal/pkg/database"
	"github.com/glorifyai/glorify/internal/pkg/env"
)

var validate = validator.New()

// newBillingService is a variable so handler tests can substitute a service
// built on fakes.
var newBillingService = func() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB())
}

// requestOrigin resolves the base URL for redirect targets: the Origin
// header when the browser sends one, otherwise the configured public domain.
func requestOrigin(c *fiber.Ctx) string {
	if origin := strings.TrimSpace(c.Get("Origin")); origin != "" {
		return strings.TrimRight(origin, "/")
	}
	if domain := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"); domain != "" {
		return domain
	}
	return c.Protocol() + "://" + c.Hostname()
}
