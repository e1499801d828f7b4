package models

import (
	"time"

	"gorm.io/datatypes"
)

type Trip struct {
	ID          string                      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string                      `gorm:"type:uuid;index;not null" json:"user_id"`
	Title       string                      `gorm:"not null" json:"title"`
	Description string                      `gorm:"type:text" json:"description"`
	Prefectures datatypes.JSONSlice[string] `json:"prefectures"` // e.g. ["石川県","富山県"]
	StartDate   time.Time                   `gorm:"type:date;index;not null" json:"start_date"`
	EndDate     *time.Time                  `gorm:"type:date" json:"end_date,omitempty"`
	Nights      int                         `gorm:"not null;default:0" json:"nights"`

	User   *User   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Tags   []Tag   `gorm:"many2many:tag_trip" json:"tags,omitempty"`
	Photos []Photo `gorm:"constraint:OnDelete:CASCADE" json:"photos,omitempty"`

	Timestamps
}

type Tag struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

type Photo struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	TripID    string    `gorm:"type:uuid;index;not null" json:"trip_id"`
	Path      string    `gorm:"type:text;not null" json:"path"` // object key
	URL       string    `gorm:"type:text" json:"url"`
	Caption   string    `gorm:"type:text" json:"caption"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
