// services/notification.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"omoide-album/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BadgeAwardedEvent is the stored and pushed payload for a newly earned badge.
type BadgeAwardedEvent struct {
	BadgeID   string `json:"badge_id"`
	BadgeName string `json:"badge_name"`
	BadgeIcon string `json:"badge_icon"`
	Message   string `json:"message"`
	URL       string `json:"url"`
	Icon      string `json:"icon"`
}

func NewBadgeAwardedEvent(badge *models.Badge, url string) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BadgeID:   badge.ID,
		BadgeName: badge.Name,
		BadgeIcon: badge.IconPath,
		Message:   fmt.Sprintf("新しい称号「%s」を獲得しました！", badge.Name),
		URL:       url,
		Icon:      "🏆",
	}
}

// PushMessage is what subscribers of the push channel receive.
type PushMessage struct {
	NotificationID string          `json:"notification_id"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Data           json.RawMessage `json:"data"`
}

// Notifier delivers badge notifications to whatever channels the user has enabled.
type Notifier interface {
	NotifyBadgeEarned(ctx context.Context, user *models.User, badge *models.Badge) error
}

type NotificationService struct {
	DB         *gorm.DB
	Hub        *NotificationHub
	ProfileURL string
	log        *zap.Logger
}

func NewNotificationService(db *gorm.DB, hub *NotificationHub, profileURL string, log *zap.Logger) *NotificationService {
	return &NotificationService{DB: db, Hub: hub, ProfileURL: profileURL, log: log.Named("notifications")}
}

// NotifyBadgeEarned always stores the notification; the push channel honours the badge_earned preference.
func (s *NotificationService) NotifyBadgeEarned(ctx context.Context, user *models.User, badge *models.Badge) error {
	return s.deliver(ctx, user, models.NotificationBadgeEarned, models.PreferenceBadgeEarned,
		NewBadgeAwardedEvent(badge, s.ProfileURL),
		"🏆 新しい称号を獲得！",
		fmt.Sprintf("「%s」を獲得しました！\n%s", badge.Name, badge.Description))
}

// PostInteractedEvent is the payload for someone interacting with a user through a post.
type PostInteractedEvent struct {
	PostID      string `json:"post_id"`
	Interaction string `json:"interaction"`
	ActorID     string `json:"actor_id"`
	ActorName   string `json:"actor_name"`
	Message     string `json:"message"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
}

// NotifyMention tells mentioned that actor mentioned them in post.
func (s *NotificationService) NotifyMention(ctx context.Context, mentioned, actor *models.User, post *models.Post) error {
	event := PostInteractedEvent{
		PostID:      post.ID,
		Interaction: "mention",
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Message:     fmt.Sprintf("%sさんがあなたをメンションしました", actor.Name),
		URL:         "/timeline/" + post.ID,
		Icon:        "👋",
	}
	return s.deliver(ctx, mentioned, models.NotificationPostInteracted, models.PreferencePostInteracted,
		event, "新着通知", fmt.Sprintf("%sさんがメンションしました", actor.Name))
}

// TripUpdatedEvent is the payload sent to other members when a trip changes.
type TripUpdatedEvent struct {
	TripID    string `json:"trip_id"`
	TripTitle string `json:"trip_title"`
	UserName  string `json:"user_name"`
	Message   string `json:"message"`
	URL       string `json:"url"`
	Icon      string `json:"icon"`
}

// NotifyTripUpdated sends the update to every human user except actor. It returns how many were notified.
func (s *NotificationService) NotifyTripUpdated(ctx context.Context, actor *models.User, trip *models.Trip, message, icon string) (int, error) {
	var recipients []models.User
	if err := s.DB.WithContext(ctx).
		Where("id <> ? AND is_bot = ?", actor.ID, false).
		Find(&recipients).Error; err != nil {
		return 0, fmt.Errorf("load trip update recipients: %w", err)
	}

	event := TripUpdatedEvent{
		TripID:    trip.ID,
		TripTitle: trip.Title,
		UserName:  actor.Name,
		Message:   message,
		URL:       "/trips/" + trip.ID,
		Icon:      icon,
	}
	sent := 0
	for i := range recipients {
		if err := s.deliver(ctx, &recipients[i], models.NotificationTripUpdated, models.PreferenceTripUpdated,
			event, "旅行の更新", message); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// deliver stores the notification and, unless the user opted out of prefKey, pushes it.
func (s *NotificationService) deliver(ctx context.Context, user *models.User, typ models.NotificationType, prefKey string, event any, title, body string) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", typ, err)
	}

	n := models.Notification{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Type:   typ,
		Data:   data,
	}
	if err := s.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("store %s notification: %w", typ, err)
	}

	if !user.WantsNotification(prefKey) {
		s.log.Debug("push disabled by preference", zap.String("user_id", user.ID), zap.String("type", string(typ)))
		return nil
	}
	if s.Hub != nil {
		s.Hub.Publish(user.ID, PushMessage{
			NotificationID: n.ID,
			Type:           string(n.Type),
			Title:          title,
			Body:           body,
			Data:           data,
		})
	}
	return nil
}

type badgeNotificationJob struct {
	notifier Notifier
	user     models.User
	badge    models.Badge
}

func (j *badgeNotificationJob) Name() string { return "badge.notification" }

func (j *badgeNotificationJob) Run(ctx context.Context) error {
	return j.notifier.NotifyBadgeEarned(ctx, &j.user, &j.badge)
}

// --- User Handlers ---

// ListNotifications returns the latest notifications and the unread count for the authenticated user.
func (s *NotificationService) ListNotifications(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
	}

	var notifications []models.Notification
	if err := s.DB.WithContext(c.UserContext()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		s.log.Error("fetch notifications failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch notifications"})
	}

	var unread int64
	if err := s.DB.WithContext(c.UserContext()).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&unread).Error; err != nil {
		s.log.Error("count unread notifications failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count notifications"})
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkNotificationAsRead marks a single notification as read (idempotent)
func (s *NotificationService) MarkNotificationAsRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id := c.Params("id")

	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid notification ID"})
	}

	var n models.Notification
	if err := s.DB.WithContext(c.UserContext()).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found or not owned"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if n.ReadAt == nil {
		now := time.Now()
		n.ReadAt = &now
		if err := s.DB.WithContext(c.UserContext()).Model(&n).Update("read_at", now).Error; err != nil {
			s.log.Error("mark notification read failed", zap.String("id", id), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark as read"})
		}
	}

	return c.JSON(fiber.Map{"message": "OK", "notification_id": n.ID, "read_at": n.ReadAt})
}

// MarkAllNotificationsAsRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllNotificationsAsRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	result := s.DB.WithContext(c.UserContext()).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		s.log.Error("bulk mark read failed", zap.String("user_id", userID), zap.Error(result.Error))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update notifications"})
	}

	return c.JSON(fiber.Map{"message": "OK", "marked_count": result.RowsAffected})
}

// NotificationHub fans push messages out to live subscribers, per user.
type NotificationHub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan PushMessage]struct{}
	buffer int
	log    *zap.Logger
}

func NewNotificationHub(log *zap.Logger) *NotificationHub {
	return &NotificationHub{
		subs:   make(map[string]map[chan PushMessage]struct{}),
		buffer: 16,
		log:    log.Named("push_hub"),
	}
}

// Subscribe returns a channel of the user's push messages and a func that closes it.
func (h *NotificationHub) Subscribe(userID string) (<-chan PushMessage, func()) {
	ch := make(chan PushMessage, h.buffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan PushMessage]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the message.
func (h *NotificationHub) Publish(userID string, msg PushMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[userID] {
		select {
		case ch <- msg:
			delivered++
		default:
			h.log.Warn("push subscriber lagging, message dropped", zap.String("user_id", userID))
		}
	}
	return delivered
}
