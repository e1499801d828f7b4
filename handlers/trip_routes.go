// handlers/trip_routes.go
package handlers

import (
	"errors"

	"omoide-album/models"
	"omoide-album/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTripRoutes(secured fiber.Router, tripService *services.TripService, suggestionService *services.SuggestionService) {
	secured.Get("/trips", func(c *fiber.Ctx) error {
		trips, err := tripService.ListTrips(c.UserContext(), currentUserID(c))
		if err != nil {
			return internalError(c, "failed to list trips", err)
		}
		return c.JSON(trips)
	})

	secured.Post("/trips", func(c *fiber.Ctx) error {
		var in services.TripInput
		if ok, err := parseBody(c, &in); !ok {
			return err
		}
		trip, err := tripService.CreateTrip(c.UserContext(), currentUserID(c), in)
		if err != nil {
			return tripError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	secured.Put("/trips/:id", func(c *fiber.Ctx) error {
		var in services.TripInput
		if ok, err := parseBody(c, &in); !ok {
			return err
		}
		trip, err := tripService.UpdateTrip(c.UserContext(), currentUserID(c), c.Params("id"), in)
		if err != nil {
			return tripError(c, err)
		}
		return c.JSON(trip)
	})

	secured.Delete("/trips/:id", func(c *fiber.Ctx) error {
		if err := tripService.DeleteTrip(c.UserContext(), currentUserID(c), c.Params("id")); err != nil {
			return tripError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/trips/:id/photos", func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("photo")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "photo file is required",
				"cause": err.Error(),
			})
		}
		photo, err := tripService.AddPhoto(c.UserContext(), currentUserID(c), c.Params("id"), fileHeader, c.FormValue("caption"))
		if err != nil {
			return tripError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(photo)
	})

	secured.Get("/suggestions", func(c *fiber.Ctx) error {
		list, err := suggestionService.List(c.UserContext(), currentUserID(c))
		if err != nil {
			return internalError(c, "failed to list suggestions", err)
		}
		return c.JSON(list)
	})

	secured.Post("/suggestions", func(c *fiber.Ctx) error {
		type Req struct {
			Title   string `json:"title" validate:"required,max=255"`
			Content string `json:"content"`
			Source  string `json:"source" validate:"omitempty,oneof=ai manual"`
		}
		var req Req
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		sg, err := suggestionService.Create(c.UserContext(), currentUserID(c), req.Title, req.Content, models.SuggestionSource(req.Source))
		if err != nil {
			return internalError(c, "failed to save suggestion", err)
		}
		return c.Status(fiber.StatusCreated).JSON(sg)
	})

	secured.Patch("/suggestions/:id/visited", func(c *fiber.Ctx) error {
		type Req struct {
			Visited *bool `json:"visited" validate:"required"`
		}
		var req Req
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		sg, err := suggestionService.SetVisited(c.UserContext(), currentUserID(c), c.Params("id"), *req.Visited)
		if err != nil {
			if errors.Is(err, services.ErrSuggestionNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			}
			return internalError(c, "failed to update suggestion", err)
		}
		return c.JSON(sg)
	})
}

func tripError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrTripNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrStorageAbsent):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTripDates):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return internalError(c, "trip operation failed", err)
}
