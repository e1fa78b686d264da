package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func withLocals(userID interface{}, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals(LocalUserID, userID)
		}
		if role != "" {
			c.Locals(LocalUserRole, role)
		}
		return c.Next()
	}
}

func statusFor(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/kpi/config", nil), -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name   string
		role   string
		status int
	}{
		{name: "admin", role: "admin", status: fiber.StatusOK},
		{name: "hr alias", role: " HR ", status: fiber.StatusOK},
		{name: "hod", role: "HOD", status: fiber.StatusOK},
		{name: "field executive", role: "fe", status: fiber.StatusForbidden},
		{name: "coordinator", role: "coordinator", status: fiber.StatusForbidden},
		{name: "anonymous", role: "", status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(withLocals(uint(1), tc.role))
			app.Use(RequireRole(RoleAdmin, RoleHOD))
			app.Get("/api/v1/kpi/config", func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			require.Equal(t, tc.status, statusFor(t, app))
		})
	}
}

func TestRequireUser(t *testing.T) {
	handler := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	app := fiber.New()
	app.Use(withLocals(uint(12), RoleFE))
	app.Get("/api/v1/kpi/config", RequireUser(), handler)
	require.Equal(t, fiber.StatusOK, statusFor(t, app))

	anonymous := fiber.New()
	anonymous.Get("/api/v1/kpi/config", RequireUser(), handler)
	require.Equal(t, fiber.StatusUnauthorized, statusFor(t, anonymous))

	zero := fiber.New()
	zero.Use(withLocals(uint(0), RoleAdmin))
	zero.Get("/api/v1/kpi/config", RequireUser(), handler)
	require.Equal(t, fiber.StatusUnauthorized, statusFor(t, zero))
}

func TestCanonicalRole(t *testing.T) {
	require.Equal(t, RoleAdmin, CanonicalRole("HR"))
	require.Equal(t, RoleFE, CanonicalRole(" Field_Executive "))
	require.Equal(t, "auditor", CanonicalRole("Auditor"))
	require.Empty(t, CanonicalRole("  "))
}
