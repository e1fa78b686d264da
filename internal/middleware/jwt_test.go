package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "kpi-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func jwtApp(cfg JWTConfig, seen *map[string]interface{}) *fiber.App {
	app := fiber.New()
	app.Get("/me", JWTProtected(cfg), func(c *fiber.Ctx) error {
		*seen = map[string]interface{}{
			"id":       c.Locals(LocalUserID),
			"role":     c.Locals(LocalUserRole),
			"employee": c.Locals(LocalEmployeeID),
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func callWithToken(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestJWTProtectedPopulatesLocals(t *testing.T) {
	var seen map[string]interface{}
	app := jwtApp(JWTConfig{Secret: testSecret, Issuer: "hr-idp"}, &seen)

	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         "42",
		"iss":         "hr-idp",
		"roles":       []string{"", "HR"},
		"employee_id": "FE-042",
		"exp":         time.Now().Add(time.Hour).Unix(),
	})

	require.Equal(t, fiber.StatusOK, callWithToken(t, app, "bearer "+token))
	require.Equal(t, uint(42), seen["id"])
	require.Equal(t, RoleAdmin, seen["role"])
	require.Equal(t, "FE-042", seen["employee"])
}

func TestJWTProtectedFallsBackToUserIDClaim(t *testing.T) {
	var seen map[string]interface{}
	app := jwtApp(JWTConfig{Secret: testSecret}, &seen)

	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 7, "role": "Manager"})

	require.Equal(t, fiber.StatusOK, callWithToken(t, app, "Bearer "+token))
	require.Equal(t, uint(7), seen["id"])
	require.Equal(t, RoleManager, seen["role"])
}

func TestJWTProtectedRejects(t *testing.T) {
	var seen map[string]interface{}
	app := jwtApp(JWTConfig{Secret: testSecret, Issuer: "hr-idp"}, &seen)

	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "iss": "hr-idp", "exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongIssuer := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "iss": "elsewhere"})
	noSubject := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "hr-idp", "role": "admin"})
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "iss": "hr-idp"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"empty token":    "Bearer   ",
		"expired":        "Bearer " + expired,
		"wrong issuer":   "Bearer " + wrongIssuer,
		"no subject":     "Bearer " + noSubject,
		"alg none":       "Bearer " + unsigned,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, app, header))
		})
	}
}
