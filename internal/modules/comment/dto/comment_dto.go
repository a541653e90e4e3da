package dto

import (
	"time"

	attachmentDto "anoa.com/casethreads/internal/modules/attachment/dto"
	"github.com/google/uuid"
)

type CreateCommentRequest struct {
	ParentID    *uuid.UUID                      `json:"parent_id"`
	Content     string                          `json:"content" binding:"max=10000"`
	Attachments []attachmentDto.AttachmentInput `json:"attachments" binding:"omitempty,max=10,dive"`
}

type UpdateCommentRequest struct {
	Content string `json:"content" binding:"max=10000"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=open resolved"`
}

type AddAttachmentsRequest struct {
	Attachments []attachmentDto.AttachmentInput `json:"attachments" binding:"required,min=1,max=10,dive"`
}

type CommentFilter struct {
	Q string `form:"q" binding:"max=200"`
}

type AuthorResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

type CommentResponse struct {
	ID               uuid.UUID                          `json:"id"`
	CaseID           uuid.UUID                          `json:"case_id"`
	CaseType         string                             `json:"case_type"`
	ParentID         *uuid.UUID                         `json:"parent_id,omitempty"`
	Author           AuthorResponse                     `json:"author"`
	Content          string                             `json:"content"`
	Attachments      []attachmentDto.AttachmentResponse `json:"attachments"`
	MentionedUserIDs []uuid.UUID                        `json:"mentioned_user_ids"`
	MentionedRoles   []string                           `json:"mentioned_roles"`
	MentionsAll      bool                               `json:"mentions_all"`
	Status           *string                            `json:"status,omitempty"`
	ResolvedAt       *time.Time                         `json:"resolved_at,omitempty"`
	ResolvedBy       *uuid.UUID                         `json:"resolved_by,omitempty"`
	IsSystemComment  bool                               `json:"is_system_comment"`
	IsEdited         bool                               `json:"is_edited"`
	CreatedAt        time.Time                          `json:"created_at"`
	UpdatedAt        time.Time                          `json:"updated_at"`
}

// CommentDeletedPayload is the realtime payload of comment.deleted.
type CommentDeletedPayload struct {
	CommentIDs []uuid.UUID `json:"comment_ids"`
}

// StatusChangedPayload is the realtime payload of ticket.status_changed.
type StatusChangedPayload struct {
	RootID     uuid.UUID  `json:"root_id"`
	Status     string     `json:"status"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	ChangedBy  uuid.UUID  `json:"changed_by"`
}
