package service

import (
	"bytes"
	"sort"
	"time"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/modules/mention"
	"github.com/google/uuid"
)

// Viewer is the user a ticket list is computed for. Role may be empty, in which
// case only explicit mentions count as mentions of the viewer.
type Viewer struct {
	ID   uuid.UUID
	Role string
}

// Ticket is a root comment with its whole reply subtree, seen by one viewer.
type Ticket struct {
	Root    *entity.Comment
	Replies []*entity.Comment

	UnansweredMentions int

	OutgoingQuestionsTotal    int
	OutgoingQuestionsAnswered int
	// PendingUsers are the mentioned users who have not replied yet, in order
	// of first mention. DisplayName is empty when the thread does not reveal it.
	PendingUsers []entity.UserRef

	UnreadCount      int
	LatestActivityAt time.Time
}

func (t *Ticket) Status() entity.TicketStatus {
	if t.Root.Status == nil {
		return entity.StatusOpen
	}
	return *t.Root.Status
}

// Involves reports whether the viewer wrote in the thread or was mentioned in it.
func (t *Ticket) Involves(v Viewer) bool {
	for _, c := range t.thread() {
		if c.AuthorID == v.ID || mentionsViewer(c, v) {
			return true
		}
	}
	return false
}

func (t *Ticket) thread() []*entity.Comment {
	return append([]*entity.Comment{t.Root}, t.Replies...)
}

// BuildTickets groups comments into tickets and computes the viewer's
// statistics for each. It does no I/O and the result depends only on its
// inputs. Comments whose parent chain does not reach a root in the input
// (missing parent or a cycle) are left out.
func BuildTickets(viewer Viewer, comments []entity.Comment, receipts []entity.ReadReceipt) []Ticket {
	byID := make(map[uuid.UUID]*entity.Comment, len(comments))
	for i := range comments {
		byID[comments[i].ID] = &comments[i]
	}

	roots := make(map[uuid.UUID]uuid.UUID, len(comments))
	var rootOf func(c *entity.Comment, depth int) (uuid.UUID, bool)
	rootOf = func(c *entity.Comment, depth int) (uuid.UUID, bool) {
		if id, ok := roots[c.ID]; ok {
			return id, id != uuid.Nil
		}
		if c.ParentID == nil {
			roots[c.ID] = c.ID
			return c.ID, true
		}
		parent, ok := byID[*c.ParentID]
		if !ok || depth > len(comments) {
			roots[c.ID] = uuid.Nil
			return uuid.Nil, false
		}
		id, ok := rootOf(parent, depth+1)
		roots[c.ID] = id
		return id, ok
	}

	grouped := make(map[uuid.UUID]*Ticket)
	for i := range comments {
		c := &comments[i]
		rootID, ok := rootOf(c, 0)
		if !ok {
			continue
		}
		t, exists := grouped[rootID]
		if !exists {
			t = &Ticket{Root: byID[rootID]}
			grouped[rootID] = t
		}
		if c.ID != rootID {
			t.Replies = append(t.Replies, c)
		}
	}

	read := make(map[uuid.UUID]bool, len(receipts))
	for _, r := range receipts {
		if r.UserID == viewer.ID {
			read[r.CommentID] = true
		}
	}

	tickets := make([]Ticket, 0, len(grouped))
	for _, t := range grouped {
		sort.SliceStable(t.Replies, func(i, j int) bool {
			return before(t.Replies[i], t.Replies[j])
		})
		t.compute(viewer, read)
		tickets = append(tickets, *t)
	}

	sort.Slice(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]
		if !a.LatestActivityAt.Equal(b.LatestActivityAt) {
			return a.LatestActivityAt.After(b.LatestActivityAt)
		}
		if !a.Root.CreatedAt.Equal(b.Root.CreatedAt) {
			return a.Root.CreatedAt.After(b.Root.CreatedAt)
		}
		return bytes.Compare(a.Root.ID[:], b.Root.ID[:]) > 0
	})

	return tickets
}

func (t *Ticket) compute(v Viewer, read map[uuid.UUID]bool) {
	thread := t.thread()

	lastOwn := -1
	lastBy := make(map[uuid.UUID]int)
	for i, c := range thread {
		if c.CreatedAt.After(t.LatestActivityAt) {
			t.LatestActivityAt = c.CreatedAt
		}
		if c.IsSystemComment {
			continue
		}
		lastBy[c.AuthorID] = i
		if c.AuthorID == v.ID {
			lastOwn = i
		}
	}

	// Outgoing questions: per mentioned user, only the latest mention counts.
	var (
		asked    []uuid.UUID
		askedAt  = make(map[uuid.UUID]int)
		names    = make(map[uuid.UUID]string)
		authored = make(map[uuid.UUID]string)
	)

	for i, c := range thread {
		if c.IsSystemComment {
			continue
		}
		authored[c.AuthorID] = c.AuthorName

		if c.AuthorID != v.ID {
			if !read[c.ID] {
				t.UnreadCount++
			}
			if mentionsViewer(c, v) && i > lastOwn {
				t.UnansweredMentions++
			}
			continue
		}

		markup := mention.DisplayNames(c.Content)
		for _, id := range c.MentionedUserIDs {
			if id == v.ID {
				continue
			}
			if _, seen := askedAt[id]; !seen {
				asked = append(asked, id)
			}
			askedAt[id] = i
			if name, ok := markup[id]; ok && names[id] == "" {
				names[id] = name
			}
		}
	}

	t.OutgoingQuestionsTotal = len(asked)
	for _, id := range asked {
		if last, ok := lastBy[id]; ok && last > askedAt[id] {
			t.OutgoingQuestionsAnswered++
			continue
		}
		name := names[id]
		if name == "" {
			name = authored[id]
		}
		t.PendingUsers = append(t.PendingUsers, entity.UserRef{ID: id, DisplayName: name})
	}
}

func mentionsViewer(c *entity.Comment, v Viewer) bool {
	if c.Mentions(v.ID) {
		return true
	}
	if v.Role == "" || !entity.IsInternalRole(v.Role) {
		return false
	}
	return c.MentionsRole(v.Role) || c.MentionsAll
}

func before(a, b *entity.Comment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
