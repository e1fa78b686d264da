package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesKPICollectors(t *testing.T) {
	KPITriggerRuns().WithLabelValues("success").Inc()
	KPIEmails().WithLabelValues("warning_letter", "sent").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `kpi_trigger_runs_total{outcome="success"}`)
	require.Contains(t, string(body), `kpi_emails_total{status="sent",template="warning_letter"}`)
}
