// handlers/user_routes.go
package handlers

import (
	"omoide-album/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(secured fiber.Router, userService *services.UserService) {
	// @mention completion
	secured.Get("/users/search", func(c *fiber.Ctx) error {
		users, err := userService.SearchUsers(c.UserContext(), c.Query("q"), queryInt(c, "limit", 50))
		if err != nil {
			return internalError(c, "user search failed", err)
		}
		return c.JSON(users)
	})

	secured.Get("/user/me", func(c *fiber.Ctx) error {
		return c.JSON(c.Locals("user"))
	})
}
