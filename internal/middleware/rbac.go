package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID     = "user_id"
	LocalUserRole   = "user_role"
	LocalEmployeeID = "employee_id"
)

// Roles known to the KPI workflow.
const (
	RoleAdmin       = "admin"
	RoleHOD         = "hod"
	RoleManager     = "manager"
	RoleCoordinator = "coordinator"
	RoleFE          = "fe"
)

var roleAliases = map[string]string{
	"hr":                 RoleAdmin,
	"head_of_department": RoleHOD,
	"field_executive":    RoleFE,
}

// CanonicalRole lowercases a role and resolves known aliases.
func CanonicalRole(role string) string {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if alias, ok := roleAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if canonical := CanonicalRole(role); canonical != "" {
			allowed[canonical] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := CanonicalRole(localString(c.Locals(LocalUserRole)))
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireUser rejects requests that carry no authenticated user id.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(LocalUserID).(uint); !ok || id == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return c.Next()
	}
}

func localString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
