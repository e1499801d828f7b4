package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const streamKeepAlive = 15 * time.Second

// StreamNotificationsSSE pushes the authenticated user's notifications as server-sent events.
func (s *NotificationService) StreamNotificationsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	if s.Hub == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "push channel disabled"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	messages, unsubscribe := s.Hub.Subscribe(userID)
	log := s.log.With(zap.String("user_id", userID))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("encode push message failed", zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", msg.NotificationID, payload)
				if err := w.Flush(); err != nil {
					log.Debug("notification stream closed by client")
					return
				}
			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
