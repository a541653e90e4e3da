package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"anoa.com/casethreads/internal/entity"
	attachmentService "anoa.com/casethreads/internal/modules/attachment/service"
	"anoa.com/casethreads/internal/modules/comment/dto"
	commentRepo "anoa.com/casethreads/internal/modules/comment/repository"
	"anoa.com/casethreads/internal/modules/mention"
	"anoa.com/casethreads/internal/realtime"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/authz"
	"anoa.com/casethreads/pkg/dbretry"
	"anoa.com/casethreads/pkg/storage"
	"github.com/google/uuid"
)

// DispatchQueue hands a committed comment to the notification dispatcher.
// Enqueue must not block on delivery.
type DispatchQueue interface {
	Enqueue(ctx context.Context, commentID uuid.UUID) error
}

type Authorizer interface {
	Can(role, obj, act string) (bool, error)
}

type CommentService interface {
	CreateComment(ctx context.Context, actorID uuid.UUID, caseType entity.CaseType, caseID uuid.UUID, req dto.CreateCommentRequest) (*dto.CommentResponse, error)
	ListComments(ctx context.Context, caseType entity.CaseType, caseID uuid.UUID, filter dto.CommentFilter) ([]dto.CommentResponse, error)
	EditComment(ctx context.Context, actorID, commentID uuid.UUID, req dto.UpdateCommentRequest) (*dto.CommentResponse, error)
	DeleteComment(ctx context.Context, actorID, commentID uuid.UUID) error
	SetStatus(ctx context.Context, actorID, commentID uuid.UUID, req dto.SetStatusRequest) (*dto.CommentResponse, error)
	AddAttachments(ctx context.Context, actorID, commentID uuid.UUID, req dto.AddAttachmentsRequest) (*dto.CommentResponse, error)
}

type commentService struct {
	repo        commentRepo.CommentRepository
	directory   mention.Directory
	resolver    *mention.Resolver
	queue       DispatchQueue
	authz       Authorizer
	broker      realtime.Broker
	fileStorage storage.BlobStore
	logger      *slog.Logger
	now         func() time.Time
}

func NewCommentService(
	repo commentRepo.CommentRepository,
	directory mention.Directory,
	queue DispatchQueue,
	authorizer Authorizer,
	broker realtime.Broker,
	fileStorage storage.BlobStore,
	logger *slog.Logger,
) CommentService {
	return &commentService{
		repo:        repo,
		directory:   directory,
		resolver:    mention.NewResolver(directory, logger),
		queue:       queue,
		authz:       authorizer,
		broker:      broker,
		fileStorage: fileStorage,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *commentService) CreateComment(ctx context.Context, actorID uuid.UUID, caseType entity.CaseType, caseID uuid.UUID, req dto.CreateCommentRequest) (*dto.CommentResponse, error) {
	if !caseType.Valid() {
		return nil, apperror.New(http.StatusBadRequest, "unknown case type", apperror.ErrInvalidInput)
	}

	// All validation happens before the first store call.
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, apperror.ErrEmptyContent
	}
	if err := attachmentService.ValidateAll(req.Attachments); err != nil {
		return nil, err
	}

	author, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		parent, err := s.find(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.CaseID != caseID || parent.CaseType != caseType {
			return nil, apperror.New(http.StatusBadRequest, "parent comment belongs to another case", apperror.ErrInvalidInput)
		}
	}

	mentions, err := dbretry.Operation(ctx, func(ctx context.Context) (mention.Mentions, error) {
		return s.resolver.Resolve(ctx, author.ID, caseID, mention.Parse(req.Content))
	})
	if err != nil {
		return nil, err
	}

	comment := &entity.Comment{
		CaseID:           caseID,
		CaseType:         caseType,
		ParentID:         req.ParentID,
		AuthorID:         author.ID,
		AuthorName:       author.DisplayName,
		AuthorRole:       author.Role,
		Content:          req.Content,
		Attachments:      attachmentService.ToEntities(req.Attachments),
		MentionedUserIDs: mentions.UserIDs,
		MentionedRoles:   mentions.Roles,
		MentionsAll:      mentions.All,
	}
	if comment.IsRoot() {
		open := entity.StatusOpen
		comment.Status = &open
	}

	stored, err := s.insert(ctx, comment)
	if err != nil {
		if req.ParentID != nil && errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(http.StatusNotFound, "parent comment not found", err)
		}
		return nil, err
	}
	comment = stored

	s.enqueue(ctx, comment.ID)

	resp := dto.FromEntity(comment)
	return &resp, nil
}

func (s *commentService) ListComments(ctx context.Context, caseType entity.CaseType, caseID uuid.UUID, filter dto.CommentFilter) ([]dto.CommentResponse, error) {
	if !caseType.Valid() {
		return nil, apperror.New(http.StatusBadRequest, "unknown case type", apperror.ErrInvalidInput)
	}

	comments, err := s.repo.ListByCase(ctx, caseID, caseType, filter.Q)
	if err != nil {
		return nil, err
	}

	out := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, dto.FromEntity(&comments[i]))
	}
	return out, nil
}

// EditComment replaces the content only. Mentions keep their create-time value.
func (s *commentService) EditComment(ctx context.Context, actorID, commentID uuid.UUID, req dto.UpdateCommentRequest) (*dto.CommentResponse, error) {
	comment, err := s.find(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if comment.AuthorID != actorID || comment.IsSystemComment {
		return nil, apperror.New(http.StatusForbidden, "you can only edit your own comments", apperror.ErrForbidden)
	}
	if strings.TrimSpace(req.Content) == "" && len(comment.Attachments) == 0 {
		return nil, apperror.ErrEmptyContent
	}

	if err := s.repo.UpdateContent(ctx, commentID, req.Content); err != nil {
		return nil, err
	}

	updated, err := s.find(ctx, commentID)
	if err != nil {
		return nil, err
	}

	resp := dto.FromEntity(updated)
	s.publish(ctx, realtime.EventCommentUpdated, updated, resp)
	return &resp, nil
}

func (s *commentService) DeleteComment(ctx context.Context, actorID, commentID uuid.UUID) error {
	comment, err := s.find(ctx, commentID)
	if err != nil {
		return err
	}

	if comment.AuthorID != actorID {
		actor, err := s.actor(ctx, actorID)
		if err != nil {
			return err
		}
		allowed, err := s.authz.Can(actor.Role, authz.ObjectComment, authz.ActionDeleteAny)
		if err != nil {
			return err
		}
		if !allowed {
			return apperror.New(http.StatusForbidden, "you can only delete your own comments", apperror.ErrForbidden)
		}
	}

	result, err := dbretry.Operation(ctx, func(ctx context.Context) (*commentRepo.DeleteResult, error) {
		return s.repo.DeleteCascade(ctx, commentID)
	})
	if err != nil {
		return err
	}

	for _, url := range result.BlobURLs {
		if err := s.fileStorage.Delete(ctx, url); err != nil {
			s.logger.Warn("deleting attachment blob", "url", url, "error", err)
		}
	}

	s.publish(ctx, realtime.EventCommentDeleted, comment, dto.CommentDeletedPayload{CommentIDs: result.CommentIDs})
	return nil
}

// SetStatus moves a ticket between open and resolved and records the change as a
// system reply. Asking for the current status changes nothing.
func (s *commentService) SetStatus(ctx context.Context, actorID, commentID uuid.UUID, req dto.SetStatusRequest) (*dto.CommentResponse, error) {
	target := entity.TicketStatus(req.Status)
	if !target.Valid() {
		return nil, apperror.New(http.StatusBadRequest, "unknown status", apperror.ErrInvalidInput)
	}

	comment, err := s.find(ctx, commentID)
	if err != nil {
		return nil, err
	}

	root, err := comment.AsRoot()
	if err != nil {
		return nil, err
	}

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.authz.Can(actor.Role, authz.ObjectTicket, authz.ActionSetStatus)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(http.StatusForbidden, "your role cannot change ticket status", apperror.ErrForbidden)
	}

	now := s.now().UTC()
	if !root.Transition(target, actor.ID, now) {
		resp := dto.FromEntity(comment)
		return &resp, nil
	}

	verb := "reopened"
	if target == entity.StatusResolved {
		verb = "resolved"
	}
	system := &entity.Comment{
		CaseID:          comment.CaseID,
		CaseType:        comment.CaseType,
		ParentID:        &comment.ID,
		AuthorID:        actor.ID,
		AuthorName:      actor.DisplayName,
		AuthorRole:      actor.Role,
		Content:         fmt.Sprintf("%s marked the ticket as %s", actor.DisplayName, verb),
		IsSystemComment: true,
	}

	if err := dbretry.Do(ctx, func(ctx context.Context) error {
		return s.repo.UpdateStatus(ctx, comment, system)
	}); err != nil {
		return nil, err
	}

	updated, err := s.find(ctx, commentID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.EventTicketStatusChanged, updated, dto.StatusChangedPayload{
		RootID:     updated.ID,
		Status:     string(target),
		ResolvedAt: updated.ResolvedAt,
		ResolvedBy: updated.ResolvedBy,
		ChangedBy:  actor.ID,
	})
	s.enqueue(ctx, system.ID)

	resp := dto.FromEntity(updated)
	return &resp, nil
}

// AddAttachments appends files to an existing comment. Only the author may do it.
func (s *commentService) AddAttachments(ctx context.Context, actorID, commentID uuid.UUID, req dto.AddAttachmentsRequest) (*dto.CommentResponse, error) {
	if len(req.Attachments) == 0 {
		return nil, apperror.New(http.StatusBadRequest, "no attachments given", apperror.ErrInvalidInput)
	}
	if err := attachmentService.ValidateAll(req.Attachments); err != nil {
		return nil, err
	}

	comment, err := s.find(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != actorID || comment.IsSystemComment {
		return nil, apperror.New(http.StatusForbidden, "you can only add attachments to your own comments", apperror.ErrForbidden)
	}

	if _, err := s.repo.AddAttachments(ctx, commentID, actorID, attachmentService.ToEntities(req.Attachments)); err != nil {
		return nil, err
	}

	updated, err := s.find(ctx, commentID)
	if err != nil {
		return nil, err
	}

	resp := dto.FromEntity(updated)
	s.publish(ctx, realtime.EventCommentUpdated, updated, resp)
	return &resp, nil
}

// insert writes comment, retrying once on a transient failure. The id is
// assigned on the first attempt, so when that attempt did commit the retry hits
// a duplicate key and the stored row is returned instead.
func (s *commentService) insert(ctx context.Context, comment *entity.Comment) (*entity.Comment, error) {
	attempts := 0
	err := dbretry.Do(ctx, func(ctx context.Context) error {
		attempts++
		return s.repo.Create(ctx, comment)
	})
	if err == nil {
		return comment, nil
	}
	if attempts < 2 || !errors.Is(err, apperror.ErrConflict) {
		return nil, err
	}

	stored, findErr := dbretry.Operation(ctx, func(ctx context.Context) (*entity.Comment, error) {
		return s.repo.FindByID(ctx, comment.ID)
	})
	if findErr != nil {
		return nil, err
	}
	s.logger.Info("comment committed on an earlier attempt", "comment_id", comment.ID)
	return stored, nil
}

func (s *commentService) find(ctx context.Context, id uuid.UUID) (*entity.Comment, error) {
	comment, err := dbretry.Operation(ctx, func(ctx context.Context) (*entity.Comment, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(http.StatusNotFound, "comment not found", err)
		}
		return nil, err
	}
	return comment, nil
}

// actor resolves the acting user. Only active internal staff may write.
func (s *commentService) actor(ctx context.Context, id uuid.UUID) (*entity.UserProfile, error) {
	profile, err := dbretry.Operation(ctx, func(ctx context.Context) (*entity.UserProfile, error) {
		return s.directory.ResolveUser(ctx, id)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(http.StatusForbidden, "unknown user", apperror.ErrForbidden)
		}
		return nil, err
	}
	if !profile.IsActive || !entity.IsInternalRole(profile.Role) {
		return nil, apperror.New(http.StatusForbidden, "only active staff can do this", apperror.ErrForbidden)
	}
	return profile, nil
}

func (s *commentService) enqueue(ctx context.Context, commentID uuid.UUID) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), commentID); err != nil {
		s.logger.Error("enqueue dispatch failed", "comment_id", commentID, "error", err)
	}
}
