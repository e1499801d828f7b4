package models

import "gorm.io/datatypes"

// notification_preferences keys for push notifications.
const (
	PreferenceBadgeEarned    = "badge_earned"
	PreferencePostInteracted = "post_interacted"
	PreferenceTripUpdated    = "trip_updated"
)

type User struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Name  string `gorm:"not null;index" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	IsBot bool   `gorm:"not null;default:false" json:"is_bot"`

	// e.g. {"badge_earned": false}. Missing keys mean enabled.
	NotificationPreferences datatypes.JSONMap `json:"notification_preferences"`

	Timestamps
}

// WantsNotification reports whether the preference key is unset or truthy.
func (u *User) WantsNotification(key string) bool {
	if u == nil || u.NotificationPreferences == nil {
		return true
	}
	v, ok := u.NotificationPreferences[key]
	if !ok || v == nil {
		return true
	}
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		return b != "false" && b != "0" && b != ""
	}
	return true
}
