package models

import (
	"time"

	"gorm.io/datatypes"
)

// Badge: catalogue entry, seeded once and read-only afterwards.
type Badge struct {
	ID             string         `gorm:"primaryKey;type:uuid" json:"id"`
	Code           string         `gorm:"uniqueIndex;not null" json:"code"` // slug of Name, e.g. "bei-lu-masuta"
	Name           string         `gorm:"uniqueIndex;not null" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	IconPath       string         `gorm:"type:text" json:"icon_path"` // emoji or asset path
	ConditionType  string         `gorm:"type:varchar(64);index;not null" json:"condition_type"`
	ConditionValue datatypes.JSON `json:"condition_value"` // e.g. {"nights": 1, "count": 10}
	Position       int            `gorm:"index;not null;default:0" json:"position"` // catalogue order
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge: earned instance. One row per (user, badge), enforced by idx_user_badge.
type UserBadge struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_badge;index" json:"badge_id"`
	ObtainedAt time.Time `gorm:"not null" json:"obtained_at"`

	User  *User  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Badge *Badge `gorm:"constraint:OnDelete:CASCADE" json:"badge,omitempty"`
}
