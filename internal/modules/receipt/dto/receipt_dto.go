package dto

import (
	"time"

	"github.com/google/uuid"
)

type MarkReadRequest struct {
	CommentIDs []uuid.UUID `json:"comment_ids" binding:"required,min=1,max=200"`
}

type ReceiptResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	ReadAt   time.Time `json:"read_at"`
}
