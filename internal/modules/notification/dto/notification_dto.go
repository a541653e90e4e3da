package dto

import (
	"time"

	"anoa.com/casethreads/internal/entity"
	"github.com/google/uuid"
)

type NotificationFilter struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

type NotificationResponse struct {
	ID              uuid.UUID  `json:"id"`
	RecipientUserID uuid.UUID  `json:"recipient_user_id"`
	CommentID       uuid.UUID  `json:"comment_id"`
	CaseID          uuid.UUID  `json:"case_id"`
	CaseType        string     `json:"case_type"`
	SenderName      string     `json:"sender_name"`
	Title           string     `json:"title"`
	Preview         string     `json:"preview"`
	IsRead          bool       `json:"is_read"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func FromEntity(n *entity.Notification) NotificationResponse {
	return NotificationResponse{
		ID:              n.ID,
		RecipientUserID: n.RecipientUserID,
		CommentID:       n.CommentID,
		CaseID:          n.CaseID,
		CaseType:        string(n.CaseType),
		SenderName:      n.SenderName,
		Title:           n.Title,
		Preview:         n.Preview,
		IsRead:          n.IsRead,
		ReadAt:          n.ReadAt,
		CreatedAt:       n.CreatedAt,
	}
}
