package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func correlationApp(fromContext *string) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		*fromContext = CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestCorrelationIDPropagatesIncomingHeader(t *testing.T) {
	var fromContext string
	app := correlationApp(&fromContext)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get(HeaderCorrelationID))
	require.Equal(t, "req-123", fromContext)
}

func TestCorrelationIDPrefersCorrelationHeader(t *testing.T) {
	var fromContext string
	app := correlationApp(&fromContext)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	req.Header.Set(HeaderCorrelationID, "kpi-run-9")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "kpi-run-9", resp.Header.Get(HeaderCorrelationID))
	require.Equal(t, "kpi-run-9", fromContext)
}

func TestCorrelationIDReplacesUnacceptableIDs(t *testing.T) {
	for name, incoming := range map[string]string{
		"missing":   "",
		"oversized": strings.Repeat("a", maxCorrelationIDLen+1),
		"non ascii": "kpi-run-é",
	} {
		t.Run(name, func(t *testing.T) {
			var fromContext string
			app := correlationApp(&fromContext)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if incoming != "" {
				req.Header.Set(HeaderCorrelationID, incoming)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)

			generated := resp.Header.Get(HeaderCorrelationID)
			require.NotEmpty(t, generated)
			require.NotEqual(t, incoming, generated)
			require.Equal(t, generated, fromContext)
		})
	}
}

func TestContextWithCorrelationIgnoresBlank(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), "  ")
	require.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelation(context.TODO(), " run-7 ")
	require.Equal(t, "run-7", CorrelationIDFromContext(ctx))
}
