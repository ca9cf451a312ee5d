package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-results-api/internal/utils"
)

// ServiceTokenHeader carries the shared secret of internal callers such as the grading pipeline.
const ServiceTokenHeader = "X-Service-Token"

// ServiceToken guards internal endpoints. An empty token disables the endpoint entirely.
func ServiceToken(token string) fiber.Handler {
	expected := []byte(token)

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return utils.Fail(c, fiber.StatusServiceUnavailable, "internal endpoint disabled", nil)
		}
		if subtle.ConstantTimeCompare([]byte(c.Get(ServiceTokenHeader)), expected) != 1 {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid service token", nil)
		}
		return c.Next()
	}
}
