package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/config"
	"github.com/noah-isme/church-events-api/internal/handler"
	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/observability"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RequestHandler      *handler.RequestHandler
	NotificationHandler *handler.NotificationHandler
	AuditHandler        *handler.AuditHandler
	CalendarHandler     *handler.CalendarHandler
	Authorizer          authz.Authorizer
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.CalendarHandler != nil {
		deps.CalendarHandler.Register(api.Group("/events"))
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.RequestHandler != nil {
		requests := api.Group("/requests",
			jwtMiddleware,
			middleware.RequireKnownRole(),
			middleware.RateLimit("requests", cfg.RateLimitMax, rateWindow(cfg)),
		)
		deps.RequestHandler.Register(requests)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware, middleware.RequireKnownRole()))
	}

	if deps.AuditHandler != nil && deps.Authorizer != nil {
		audit := api.Group("/audit-logs", jwtMiddleware, middleware.RequireAction(deps.Authorizer, workflow.ActionAuditList))
		deps.AuditHandler.Register(audit)
	}
}

func rateWindow(cfg config.Config) time.Duration {
	if cfg.RateLimitWindow <= 0 {
		return time.Minute
	}
	return cfg.RateLimitWindow
}
