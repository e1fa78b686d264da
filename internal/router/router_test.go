package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/handler"
	"github.com/noah-isme/kpi-ops-api/internal/middleware"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
	"github.com/noah-isme/kpi-ops-api/internal/router"
	"github.com/noah-isme/kpi-ops-api/internal/service"
)

// headerAuth stands in for JWT validation: X-User and X-Role become the caller identity.
func headerAuth(c *fiber.Ctx) error {
	if c.Get("X-User") != "" {
		c.Locals(middleware.LocalUserID, uint(3))
	}
	if role := c.Get("X-Role"); role != "" {
		c.Locals(middleware.LocalUserRole, middleware.CanonicalRole(role))
	}
	return c.Next()
}

func newTestApp(t *testing.T, probes map[string]handler.HealthProbe) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:router_"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.KPIConfiguration{}))

	validate := validator.New()
	configService := service.NewKPIConfigService(repository.NewKPIConfigurationRepository(db), nil, 0, validate, nil, zerolog.Nop())

	app := fiber.New()
	router.Register(app, config.Config{AppName: "kpi-ops", AppEnv: "test", RateLimitMax: 100}, router.Dependencies{
		KPIConfigHandler: handler.NewKPIConfigHandler(configService, zerolog.Nop()),
		HealthProbes:     probes,
		JWTMiddleware:    headerAuth,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, role string, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-User", "3")
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHealthReportsProbeFailures(t *testing.T) {
	app := newTestApp(t, map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	resp := do(t, app, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "kpi-ops", resp.Header.Get("X-Application"))

	var payload struct {
		Details handler.HealthResponse `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "degraded", payload.Details.Status)
	require.Equal(t, "ok", payload.Details.Checks["database"])
	require.Equal(t, "connection refused", payload.Details.Checks["redis"])
}

func TestHealthOKWithoutProbes(t *testing.T) {
	app := newTestApp(t, nil)

	resp := do(t, app, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRuleTableRoutesAreGuarded(t *testing.T) {
	app := newTestApp(t, nil)

	resp := do(t, app, http.MethodGet, "/api/v1/kpi/config", "fe", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/v1/kpi/config", "manager", `{"name":"tightened"}`)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/v1/kpi/config", "hr", `{"name":""}`)
	require.NotEqual(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	app := newTestApp(t, nil)

	resp := do(t, app, http.MethodGet, "/metrics", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
