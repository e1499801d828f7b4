// middleware/auth.go
package middleware

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"omoide-album/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserEnsurer mirrors the gateway identity into the local users table.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, id, name, email string) (*models.User, error)
}

// UserContextMiddleware reads the identity headers set by the gateway and stores
// user_id, user and user_roles in Locals for handlers.
func UserContextMiddleware(users UserEnsurer, log *zap.Logger) fiber.Handler {
	log = log.Named("user_ctx")

	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Warn("X-User-ID missing on secured route", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through the gateway",
			})
		}
		if _, err := uuid.Parse(userID); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid X-User-ID",
			})
		}

		// Names may be percent-encoded so that Japanese survives header transport.
		name := c.Get("X-User-Name")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}

		user, err := users.EnsureUser(c.UserContext(), userID, strings.TrimSpace(name), strings.TrimSpace(c.Get("X-User-Email")))
		if err != nil {
			log.Error("ensure user failed", zap.String("user_id", userID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load user",
				"cause": err.Error(),
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals("user_id", user.ID)
		c.Locals("user", user)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}

// RequireRole rejects users lacking role. It must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		if !slices.Contains(roles, role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient role",
			})
		}
		return c.Next()
	}
}
