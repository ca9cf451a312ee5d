package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-results-api/internal/utils"
)

// Roles understood by WithAuth.
const (
	AuthRoleAny     = "any"
	AuthRoleStaff   = "staff"
	AuthRoleStudent = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with an authentication and role guard. Staff covers teachers
// and admins.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}
	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if requireUser && !ok {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		switch role {
		case AuthRoleAny:
		case AuthRoleStaff:
			if !IsStaff(identity.Role) {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		default:
			if identity.Role != role {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		return handler(c)
	}
}

// IsStaff reports whether role may manage results.
func IsStaff(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin", "teacher":
		return true
	default:
		return false
	}
}
