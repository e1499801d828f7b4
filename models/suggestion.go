package models

type SuggestionSource string

const (
	SuggestionSourceAI     SuggestionSource = "ai"
	SuggestionSourceManual SuggestionSource = "manual"
)

type Suggestion struct {
	ID        string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string           `gorm:"type:uuid;index;not null" json:"user_id"`
	Title     string           `gorm:"not null" json:"title"`
	Content   string           `gorm:"type:text" json:"content"`
	Source    SuggestionSource `gorm:"type:varchar(16);not null;default:'manual'" json:"source"`
	IsVisited bool             `gorm:"not null;default:false" json:"is_visited"`

	Timestamps
}
