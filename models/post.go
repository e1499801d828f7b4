package models

type PostStatus string

const (
	PostStatusPublished PostStatus = "published"
	PostStatusDraft     PostStatus = "draft"
)

// AttachmentTrip marks a post that refers to a trip (on-this-day posts).
const AttachmentTrip = "trip"

type Post struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string     `gorm:"type:uuid;index;not null" json:"user_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Status         PostStatus `gorm:"type:varchar(16);not null;default:'published'" json:"status"`
	ParentPostID   *string    `gorm:"type:uuid;index" json:"parent_post_id,omitempty"`
	RootPostID     *string    `gorm:"type:uuid;index" json:"root_post_id,omitempty"`
	AttachmentType string     `gorm:"type:varchar(32);index:idx_post_attachment" json:"attachment_type,omitempty"`
	AttachmentID   *string    `gorm:"type:uuid;index:idx_post_attachment" json:"attachment_id,omitempty"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`

	Timestamps
}

// IsReply reports whether the post answers another post.
func (p Post) IsReply() bool {
	return p.ParentPostID != nil && *p.ParentPostID != ""
}
