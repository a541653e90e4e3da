package entity

import (
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"github.com/google/uuid"
)

type TicketStatus string

const (
	StatusOpen     TicketStatus = "open"
	StatusResolved TicketStatus = "resolved"
)

func (s TicketStatus) Valid() bool {
	return s == StatusOpen || s == StatusResolved
}

var ErrNotRootComment = apperror.ErrNotRootComment

// RootComment is the only handle through which ticket status can change, so a
// reply can never be given a status of its own.
type RootComment struct {
	c *Comment
}

func (r RootComment) Comment() *Comment {
	return r.c
}

func (r RootComment) Status() TicketStatus {
	if r.c.Status == nil {
		return StatusOpen
	}
	return *r.c.Status
}

// Resolve moves open -> resolved. It reports false when the ticket was already resolved.
func (r RootComment) Resolve(by uuid.UUID, at time.Time) bool {
	if r.Status() == StatusResolved {
		return false
	}
	s := StatusResolved
	r.c.Status = &s
	r.c.ResolvedAt = &at
	r.c.ResolvedBy = &by
	return true
}

// Reopen moves resolved -> open. It reports false when the ticket was already open.
func (r RootComment) Reopen() bool {
	if r.Status() == StatusOpen {
		return false
	}
	s := StatusOpen
	r.c.Status = &s
	r.c.ResolvedAt = nil
	r.c.ResolvedBy = nil
	return true
}

// Transition applies the transition that leads to target.
func (r RootComment) Transition(target TicketStatus, by uuid.UUID, at time.Time) bool {
	if target == StatusResolved {
		return r.Resolve(by, at)
	}
	return r.Reopen()
}
