package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationBadgeEarned    NotificationType = "badge_earned"
	NotificationPostInteracted NotificationType = "post_interacted"
	NotificationTripUpdated    NotificationType = "trip_updated"
)

// Notification is the database channel of an in-app notification.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string           `gorm:"type:uuid;index;not null" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Data      datatypes.JSON   `json:"data"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

// AllModels is the AutoMigrate set, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Badge{},
		&UserBadge{},
		&Tag{},
		&Trip{},
		&Photo{},
		&Post{},
		&Suggestion{},
		&Notification{},
	}
}
