// handlers/badge_routes.go
package handlers

import (
	"errors"

	"omoide-album/middleware"
	"omoide-album/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBadgeRoutes(secured fiber.Router, badgeService *services.BadgeService) {
	// Whole catalogue with the caller's earned state
	secured.Get("/badges", func(c *fiber.Ctx) error {
		progress, err := badgeService.ListCatalogue(c.UserContext(), currentUserID(c))
		if err != nil {
			return internalError(c, "failed to load badges", err)
		}
		return c.JSON(progress)
	})

	secured.Get("/user/badges", func(c *fiber.Ctx) error {
		earned, err := badgeService.EarnedBadges(c.UserContext(), currentUserID(c))
		if err != nil {
			return internalError(c, "failed to get badges", err)
		}
		return c.JSON(earned)
	})

	// Synchronous evaluation, returns what was newly awarded
	secured.Post("/user/badges/evaluate", func(c *fiber.Ctx) error {
		awarded, err := badgeService.Evaluate(c.UserContext(), currentUserID(c))
		if err != nil && len(awarded) == 0 {
			return internalError(c, "badge evaluation failed", err)
		}
		return c.JSON(fiber.Map{"awarded": awarded})
	})

	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	admin.Post("/badges/award", func(c *fiber.Ctx) error {
		type Req struct {
			UserID  string `json:"user_id" validate:"required,uuid"`
			BadgeID string `json:"badge_id" validate:"required,uuid"`
		}
		var req Req
		if ok, err := parseBody(c, &req); !ok {
			return err
		}

		fresh, err := badgeService.AwardByID(c.UserContext(), req.UserID, req.BadgeID)
		if err != nil {
			if errors.Is(err, services.ErrBadgeNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
			}
			return internalError(c, "badge award failed", err)
		}
		return c.JSON(fiber.Map{
			"awarded":  fresh,
			"user_id":  req.UserID,
			"badge_id": req.BadgeID,
		})
	})
}
