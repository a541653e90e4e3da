// Package realtime carries live events to connected clients over per-case and
// per-user channels.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCommentCreated      EventType = "comment.created"
	EventCommentUpdated      EventType = "comment.updated"
	EventCommentDeleted      EventType = "comment.deleted"
	EventTicketStatusChanged EventType = "ticket.status_changed"
	EventNotificationCreated EventType = "notification.created"
)

type Event struct {
	Type    EventType       `json:"type"`
	CaseID  uuid.UUID       `json:"case_id"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEvent encodes payload once so every subscriber receives identical bytes.
func NewEvent(t EventType, caseID uuid.UUID, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{Type: t, CaseID: caseID, Payload: raw, SentAt: time.Now().UTC()}, nil
}

func CaseChannel(caseID uuid.UUID) string {
	return "case:" + caseID.String()
}

func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}
