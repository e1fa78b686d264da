package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	Secret string
	// Issuer is checked against the iss claim when set.
	Issuer string
	Leeway time.Duration
}

// accessClaims is the token payload issued by the HR identity provider.
type accessClaims struct {
	UserID     interface{} `json:"user_id,omitempty"`
	EmployeeID string      `json:"employee_id,omitempty"`
	Role       string      `json:"role,omitempty"`
	Roles      []string    `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProtected validates HMAC bearer tokens and stores the caller's id and role in locals.
func JWTProtected(cfg JWTConfig) fiber.Handler {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(options...)
	secret := []byte(cfg.Secret)

	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing or malformed")
		}

		claims := &accessClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, err := claims.userID()
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}

		c.Locals(LocalUserID, userID)
		if role := claims.role(); role != "" {
			c.Locals(LocalUserRole, role)
		}
		if claims.EmployeeID != "" {
			c.Locals(LocalEmployeeID, strings.TrimSpace(claims.EmployeeID))
		}

		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (c *accessClaims) userID() (uint, error) {
	if c.Subject != "" {
		return parseUserID(c.Subject)
	}
	return parseUserID(c.UserID)
}

func (c *accessClaims) role() string {
	if role := CanonicalRole(c.Role); role != "" {
		return role
	}
	for _, candidate := range c.Roles {
		if role := CanonicalRole(candidate); role != "" {
			return role
		}
	}
	return ""
}

func parseUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v <= 0 || v != float64(uint(v)) {
			return 0, fmt.Errorf("invalid subject %v", v)
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed == 0 {
			return 0, fmt.Errorf("invalid subject %q", v)
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}
