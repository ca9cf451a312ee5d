package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-results-api/internal/utils"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uint
	Role   string
}

// IdentityFrom returns the caller bound by JWTProtected. ok is false for anonymous requests.
func IdentityFrom(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(localUserID).(uint)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: id, Role: normalizeRoleValue(c.Locals(localUserRole))}, true
}

// JWTProtected validates HMAC signed bearer tokens and binds the caller identity.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authorization == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authorization header missing", nil)
		}

		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid authorization header", nil)
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(strings.TrimSpace(authorization[len(bearer):]), claims, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token", nil)
		}

		userID, err := subjectFromClaims(claims)
		if err != nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token claims", nil)
		}

		c.Locals(localUserID, userID)
		if role := roleFromClaims(claims); role != "" {
			c.Locals(localUserRole, role)
		}

		return c.Next()
	}
}

func subjectFromClaims(claims jwt.MapClaims) (uint, error) {
	for _, key := range []string{"sub", "user_id", "id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			if v > 0 {
				return uint(v), nil
			}
		case string:
			parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if err == nil && parsed > 0 {
				return uint(parsed), nil
			}
		}
	}
	return 0, fmt.Errorf("token has no usable subject")
}

func roleFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"role", "roles"} {
		switch v := claims[key].(type) {
		case string:
			if role := strings.ToLower(strings.TrimSpace(v)); role != "" {
				return role
			}
		case []interface{}:
			for _, item := range v {
				if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
					return strings.ToLower(strings.TrimSpace(str))
				}
			}
		}
	}
	return ""
}
