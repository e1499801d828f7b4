// handlers/notification_routes.go
package handlers

import (
	"omoide-album/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(secured fiber.Router, notificationService *services.NotificationService) {
	notifications := secured.Group("/notifications")

	notifications.Get("/", notificationService.ListNotifications)
	notifications.Get("/stream", notificationService.StreamNotificationsSSE)
	notifications.Patch("/:id/read", notificationService.MarkNotificationAsRead)
	notifications.Post("/read-all", notificationService.MarkAllNotificationsAsRead)
}
