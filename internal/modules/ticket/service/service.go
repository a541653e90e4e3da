package service

import (
	"context"
	"errors"
	"net/http"

	"anoa.com/casethreads/internal/entity"
	commentDto "anoa.com/casethreads/internal/modules/comment/dto"
	"anoa.com/casethreads/internal/modules/ticket/dto"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/dbretry"
	"github.com/google/uuid"
)

type CommentSource interface {
	ListByCase(ctx context.Context, caseID uuid.UUID, caseType entity.CaseType, q string) ([]entity.Comment, error)
	ListByCases(ctx context.Context, caseIDs []uuid.UUID) ([]entity.Comment, error)
	FindCaseIDsInvolving(ctx context.Context, userID uuid.UUID, role string) ([]uuid.UUID, error)
}

type ReceiptSource interface {
	ListForUser(ctx context.Context, commentIDs []uuid.UUID, userID uuid.UUID) ([]entity.ReadReceipt, error)
}

type UserDirectory interface {
	ResolveUser(ctx context.Context, id uuid.UUID) (*entity.UserProfile, error)
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type TicketService interface {
	ListTicketsForViewer(ctx context.Context, viewerID uuid.UUID, filter dto.TicketFilter) ([]dto.TicketResponse, error)
	ListCaseTickets(ctx context.Context, viewerID uuid.UUID, caseType entity.CaseType, caseID uuid.UUID) ([]dto.TicketResponse, error)
}

type ticketService struct {
	comments  CommentSource
	receipts  ReceiptSource
	directory UserDirectory
}

func NewTicketService(comments CommentSource, receipts ReceiptSource, directory UserDirectory) TicketService {
	return &ticketService{comments: comments, receipts: receipts, directory: directory}
}

// ListTicketsForViewer returns the tickets across all cases that the viewer wrote
// in or was mentioned in. mine-active keeps open tickets, mine-archived resolved ones.
func (s *ticketService) ListTicketsForViewer(ctx context.Context, viewerID uuid.UUID, filter dto.TicketFilter) ([]dto.TicketResponse, error) {
	want := entity.StatusOpen
	switch filter.Scope {
	case "", dto.ScopeMineActive:
	case dto.ScopeMineArchived:
		want = entity.StatusResolved
	default:
		return nil, apperror.New(http.StatusBadRequest, "unknown scope", apperror.ErrInvalidInput)
	}

	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	caseIDs, err := dbretry.Operation(ctx, func(ctx context.Context) ([]uuid.UUID, error) {
		return s.comments.FindCaseIDsInvolving(ctx, viewer.ID, viewer.Role)
	})
	if err != nil {
		return nil, err
	}
	if len(caseIDs) == 0 {
		return []dto.TicketResponse{}, nil
	}

	comments, err := dbretry.Operation(ctx, func(ctx context.Context) ([]entity.Comment, error) {
		return s.comments.ListByCases(ctx, caseIDs)
	})
	if err != nil {
		return nil, err
	}

	tickets, err := s.build(ctx, viewer, comments)
	if err != nil {
		return nil, err
	}

	kept := tickets[:0]
	for _, t := range tickets {
		if t.Status() == want && t.Involves(viewer) {
			kept = append(kept, t)
		}
	}
	return s.respond(ctx, kept)
}

func (s *ticketService) ListCaseTickets(ctx context.Context, viewerID uuid.UUID, caseType entity.CaseType, caseID uuid.UUID) ([]dto.TicketResponse, error) {
	if !caseType.Valid() {
		return nil, apperror.New(http.StatusBadRequest, "unknown case type", apperror.ErrInvalidInput)
	}

	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	comments, err := dbretry.Operation(ctx, func(ctx context.Context) ([]entity.Comment, error) {
		return s.comments.ListByCase(ctx, caseID, caseType, "")
	})
	if err != nil {
		return nil, err
	}

	tickets, err := s.build(ctx, viewer, comments)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, tickets)
}

func (s *ticketService) viewer(ctx context.Context, id uuid.UUID) (Viewer, error) {
	profile, err := dbretry.Operation(ctx, func(ctx context.Context) (*entity.UserProfile, error) {
		return s.directory.ResolveUser(ctx, id)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return Viewer{}, apperror.New(http.StatusForbidden, "unknown user", apperror.ErrForbidden)
		}
		return Viewer{}, err
	}
	return Viewer{ID: profile.ID, Role: profile.Role}, nil
}

func (s *ticketService) build(ctx context.Context, viewer Viewer, comments []entity.Comment) ([]Ticket, error) {
	ids := make([]uuid.UUID, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}

	receipts, err := dbretry.Operation(ctx, func(ctx context.Context) ([]entity.ReadReceipt, error) {
		return s.receipts.ListForUser(ctx, ids, viewer.ID)
	})
	if err != nil {
		return nil, err
	}

	return BuildTickets(viewer, comments, receipts), nil
}

// respond maps tickets to responses, looking up the names the threads did not reveal.
func (s *ticketService) respond(ctx context.Context, tickets []Ticket) ([]dto.TicketResponse, error) {
	var unnamed []uuid.UUID
	for _, t := range tickets {
		for _, u := range t.PendingUsers {
			if u.DisplayName == "" {
				unnamed = append(unnamed, u.ID)
			}
		}
	}

	names := map[uuid.UUID]string{}
	if len(unnamed) > 0 {
		var err error
		names, err = dbretry.Operation(ctx, func(ctx context.Context) (map[uuid.UUID]string, error) {
			return s.directory.DisplayNames(ctx, unnamed)
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, toResponse(&tickets[i], names))
	}
	return out, nil
}

func toResponse(t *Ticket, names map[uuid.UUID]string) dto.TicketResponse {
	replies := make([]commentDto.CommentResponse, 0, len(t.Replies))
	for _, r := range t.Replies {
		replies = append(replies, commentDto.FromEntity(r))
	}

	pending := make([]string, 0, len(t.PendingUsers))
	seen := make(map[string]bool, len(t.PendingUsers))
	for _, u := range t.PendingUsers {
		name := u.DisplayName
		if name == "" {
			name = names[u.ID]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		pending = append(pending, name)
	}

	return dto.TicketResponse{
		Root:               commentDto.FromEntity(t.Root),
		Replies:            replies,
		Status:             string(t.Status()),
		UnansweredMentions: t.UnansweredMentions,
		OutgoingQuestions: dto.OutgoingQuestions{
			Total:        t.OutgoingQuestionsTotal,
			Answered:     t.OutgoingQuestionsAnswered,
			PendingNames: pending,
		},
		UnreadCount:      t.UnreadCount,
		LatestActivityAt: t.LatestActivityAt,
	}
}
