// Package server assembles the Fiber application.
package server

import (
	"time"

	"tokopay/internal/handlers"
	"tokopay/internal/middleware"
	"tokopay/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	Auth     *services.AuthService
	Products *services.ProductService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Limiter  middleware.Limiter
	// RequestLog enables Fiber's access log.
	RequestLog bool
}

// New builds the application with all routes registered under /api/v1.
func New(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "tokopay",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	if deps.RequestLog {
		app.Use(logger.New())
	}

	auth := middleware.AuthRequired(deps.Auth)
	limit := middleware.RateLimit(deps.Limiter)

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(deps.Auth).RegisterRoutes(apiV1)
	handlers.NewProductHandler(deps.Products).RegisterRoutes(apiV1, auth)
	handlers.NewOrderHandler(deps.Orders).RegisterRoutes(apiV1, auth)
	handlers.NewPaymentHandler(deps.Payments).RegisterRoutes(apiV1, auth, limit)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return app
}
