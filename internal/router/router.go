package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/handler"
	"github.com/noah-isme/kpi-ops-api/internal/middleware"
	"github.com/noah-isme/kpi-ops-api/internal/observability"
)

// ReviewerRoles may change scores and remediation records.
var ReviewerRoles = []string{middleware.RoleAdmin, middleware.RoleHOD, middleware.RoleManager}

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	KPIHandler          *handler.KPIHandler
	KPIConfigHandler    *handler.KPIConfigHandler
	TrainingHandler     *handler.TrainingHandler
	AuditHandler        *handler.AuditHandler
	NotificationHandler *handler.NotificationHandler
	EmailLogHandler     *handler.EmailLogHandler
	LifecycleHandler    *handler.LifecycleHandler
	ActivityHandler     *handler.ActivityHandler
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

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	reviewer := middleware.RequireRole(ReviewerRoles...)

	// The config group must precede /kpi/:id.
	if deps.KPIConfigHandler != nil {
		deps.KPIConfigHandler.Register(api.Group("/kpi/config", jwtMiddleware), middleware.RequireRole(middleware.RoleAdmin, middleware.RoleHOD))
	}
	if deps.KPIHandler != nil {
		kpiGroup := api.Group("/kpi", jwtMiddleware, middleware.RateLimit("kpi", cfg.RateLimitMax, cfg.RateLimitWindow))
		deps.KPIHandler.Register(kpiGroup, reviewer)
	}

	if deps.TrainingHandler != nil {
		deps.TrainingHandler.Register(api.Group("/trainings", jwtMiddleware), reviewer)
	}
	if deps.AuditHandler != nil {
		deps.AuditHandler.Register(api.Group("/audits", jwtMiddleware), reviewer)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware, middleware.RequireUser()), reviewer)
	}
	if deps.LifecycleHandler != nil {
		deps.LifecycleHandler.Register(api.Group("/lifecycle", jwtMiddleware, middleware.RequireUser()), reviewer)
	}

	if deps.EmailLogHandler != nil {
		deps.EmailLogHandler.Register(api.Group("/email-logs", jwtMiddleware, reviewer))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activity", jwtMiddleware, middleware.RequireRole(middleware.RoleAdmin)))
	}
}
