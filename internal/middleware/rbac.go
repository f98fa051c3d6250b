package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/neuroscreen/ndd-risk-api/internal/utils"
)

// RequireRole gates a route to tokens whose role claim matches one of the
// allowed values. The user_role local is written by JWTProtected; a request
// that never passed it carries no role and is rejected.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if _, ok := allowed[normalizeRole(role)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
