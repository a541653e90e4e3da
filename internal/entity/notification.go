package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is the durable record of a fan-out to one recipient.
// At most one exists per (recipient, comment).
type Notification struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientUserID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_recipient_comment,priority:1;index:idx_notifications_inbox,priority:1" json:"recipient_user_id"`
	CommentID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_recipient_comment,priority:2;index" json:"comment_id"`
	Comment         *Comment   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CaseID          uuid.UUID  `gorm:"type:uuid;not null" json:"case_id"`
	CaseType        CaseType   `gorm:"size:20;not null" json:"case_type"`
	SenderName      string     `gorm:"size:100;not null" json:"sender_name"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Preview         string     `gorm:"type:text" json:"preview"`
	IsRead          bool       `gorm:"not null;default:false;index:idx_notifications_inbox,priority:2" json:"is_read"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}

// ReadReceipt records that a user has seen a comment.
type ReadReceipt struct {
	CommentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"comment_id"`
	Comment   *Comment  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
}
