package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/proctorly/exam-api/internal/config"
	"github.com/proctorly/exam-api/internal/handler"
	"github.com/proctorly/exam-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExamHandler    *handler.ExamHandler
	SessionHandler *handler.SessionHandler
	ResultHandler  *handler.ResultHandler
	JWTMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	authed := api.Group("", jwtMiddleware)

	if deps.ExamHandler != nil {
		deps.ExamHandler.Register(authed.Group("/tests"))
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(authed)
	}
	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(authed)
	}
}
