package dto

import (
	"time"

	commentDto "anoa.com/casethreads/internal/modules/comment/dto"
)

const (
	ScopeMineActive   = "mine-active"
	ScopeMineArchived = "mine-archived"
)

type TicketFilter struct {
	Scope string `form:"scope" binding:"omitempty,oneof=mine-active mine-archived"`
}

type OutgoingQuestions struct {
	Total        int      `json:"total"`
	Answered     int      `json:"answered"`
	PendingNames []string `json:"pending_names"`
}

type TicketResponse struct {
	Root               commentDto.CommentResponse   `json:"root"`
	Replies            []commentDto.CommentResponse `json:"replies"`
	Status             string                       `json:"status"`
	UnansweredMentions int                          `json:"unanswered_mentions"`
	OutgoingQuestions  OutgoingQuestions            `json:"outgoing_questions"`
	UnreadCount        int                          `json:"unread_count"`
	LatestActivityAt   time.Time                    `json:"latest_activity_at"`
}
