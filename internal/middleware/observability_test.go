package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestObservabilityLogsAPIRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Observability(logger))
	app.Get("/api/v1/kpi/:id", func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, uint(5))
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/kpi/17", nil)
	req.Header.Set(HeaderCorrelationID, "obs-1")
	_, err := app.Test(req, -1)
	require.NoError(t, err)

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "/api/v1/kpi/:id", entry["route"])
	require.Equal(t, "obs-1", entry["correlation_id"])
	require.Equal(t, float64(404), entry["status"])
	require.Equal(t, float64(5), entry["user_id"])
}
