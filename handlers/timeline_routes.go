// handlers/timeline_routes.go
package handlers

import (
	"errors"

	"omoide-album/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTimelineRoutes(secured fiber.Router, postService *services.PostService, badges services.EvaluationTrigger) {
	secured.Get("/timeline", func(c *fiber.Ctx) error {
		posts, err := postService.Timeline(c.UserContext(), queryInt(c, "limit", 20), queryInt(c, "offset", 0))
		if err != nil {
			return internalError(c, "failed to load timeline", err)
		}
		return c.JSON(posts)
	})

	type postReq struct {
		Content string `json:"content" validate:"required,max=2000"`
	}

	secured.Post("/posts", func(c *fiber.Ctx) error {
		var req postReq
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		post, err := postService.CreatePost(c.UserContext(), currentUserID(c), req.Content)
		if err != nil {
			return postError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	secured.Post("/posts/:id/replies", func(c *fiber.Ctx) error {
		var req postReq
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		userID := currentUserID(c)
		post, err := postService.Reply(c.UserContext(), userID, c.Params("id"), req.Content)
		if err != nil {
			return postError(c, err)
		}
		badges.Trigger(c.UserContext(), userID)
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	secured.Get("/posts/:id/thread", func(c *fiber.Ctx) error {
		posts, err := postService.Thread(c.UserContext(), c.Params("id"))
		if err != nil {
			return internalError(c, "failed to load thread", err)
		}
		return c.JSON(posts)
	})
}

func postError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrEmptyPost):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrPostNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return internalError(c, "failed to save post", err)
}
