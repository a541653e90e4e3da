package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"anoa.com/casethreads/internal/entity"
	commentDto "anoa.com/casethreads/internal/modules/comment/dto"
	"anoa.com/casethreads/internal/modules/mention"
	"anoa.com/casethreads/internal/modules/notification/dto"
	notifRepo "anoa.com/casethreads/internal/modules/notification/repository"
	"anoa.com/casethreads/internal/realtime"
	"anoa.com/casethreads/pkg/apperror"
	"github.com/google/uuid"
)

// CommentFinder loads a committed comment by id.
type CommentFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error)
}

// Dispatcher fans a committed comment out to its case channel and to the
// notification inbox of every recipient.
type Dispatcher struct {
	comments  CommentFinder
	directory mention.Directory
	resolver  *mention.Resolver
	repo      notifRepo.NotificationRepository
	broker    realtime.Broker
	logger    *slog.Logger
}

func NewDispatcher(
	comments CommentFinder,
	directory mention.Directory,
	repo notifRepo.NotificationRepository,
	broker realtime.Broker,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		comments:  comments,
		directory: directory,
		resolver:  mention.NewResolver(directory, logger),
		repo:      repo,
		broker:    broker,
		logger:    logger,
	}
}

type recipient struct {
	id    uuid.UUID
	title string
}

// DispatchByID loads the comment and dispatches it. A comment deleted before
// its turn counts as done.
func (d *Dispatcher) DispatchByID(ctx context.Context, commentID uuid.UUID) error {
	c, err := d.comments.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			d.logger.Debug("comment gone before dispatch", "comment_id", commentID)
			return nil
		}
		return err
	}
	return d.Dispatch(ctx, c)
}

// Dispatch may run more than once for the same comment. Each recipient still
// ends up with exactly one notification.
func (d *Dispatcher) Dispatch(ctx context.Context, c *entity.Comment) error {
	d.publishCase(ctx, c)

	if c.IsSystemComment {
		return nil
	}

	recipients, err := d.recipients(ctx, c)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	preview := Preview(c.Content)

	var errs []error
	for _, r := range recipients {
		n := &entity.Notification{
			RecipientUserID: r.id,
			CommentID:       c.ID,
			CaseID:          c.CaseID,
			CaseType:        c.CaseType,
			SenderName:      c.AuthorName,
			Title:           r.title,
			Preview:         preview,
		}

		inserted, err := d.repo.InsertIfAbsent(ctx, n)
		if errors.Is(err, apperror.ErrNotFound) {
			// The comment was deleted mid-dispatch; its notifications went with it.
			d.logger.Debug("comment gone during dispatch", "comment_id", c.ID)
			return errors.Join(errs...)
		}
		if err != nil {
			d.logger.Error("notification insert failed", "comment_id", c.ID, "recipient_id", r.id, "error", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", r.id, err))
			continue
		}
		if !inserted {
			continue
		}

		d.publishUser(ctx, c, n)
	}

	return errors.Join(errs...)
}

// recipients lists mention recipients first, then the parent author when they
// were not already mentioned.
func (d *Dispatcher) recipients(ctx context.Context, c *entity.Comment) ([]recipient, error) {
	ids, err := d.resolver.Recipients(ctx, c.AuthorID, mention.FromComment(c))
	if err != nil {
		return nil, err
	}

	out := make([]recipient, 0, len(ids)+1)
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
		out = append(out, recipient{id: id, title: fmt.Sprintf("%s mentioned you", c.AuthorName)})
	}

	if c.ParentID == nil {
		return out, nil
	}

	parent, err := d.comments.FindByID(ctx, *c.ParentID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return out, nil
		}
		return nil, fmt.Errorf("load parent %s: %w", *c.ParentID, err)
	}
	if parent.IsSystemComment || parent.AuthorID == c.AuthorID || seen[parent.AuthorID] {
		return out, nil
	}

	profile, err := d.directory.ResolveUser(ctx, parent.AuthorID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return out, nil
		}
		return nil, fmt.Errorf("resolve parent author %s: %w", parent.AuthorID, err)
	}
	if profile.IsActive {
		out = append(out, recipient{id: parent.AuthorID, title: fmt.Sprintf("%s replied", c.AuthorName)})
	}

	return out, nil
}

func (d *Dispatcher) publishCase(ctx context.Context, c *entity.Comment) {
	ev, err := realtime.NewEvent(realtime.EventCommentCreated, c.CaseID, commentDto.FromEntity(c))
	if err == nil {
		err = realtime.PublishCase(ctx, d.broker, ev)
	}
	if err != nil {
		d.logger.Warn("case publish failed", "comment_id", c.ID, "case_id", c.CaseID, "error", err)
	}
}

func (d *Dispatcher) publishUser(ctx context.Context, c *entity.Comment, n *entity.Notification) {
	ev, err := realtime.NewEvent(realtime.EventNotificationCreated, c.CaseID, dto.FromEntity(n))
	if err == nil {
		err = realtime.PublishUser(ctx, d.broker, n.RecipientUserID, ev)
	}
	if err != nil {
		d.logger.Warn("notification push failed",
			"recipient_id", n.RecipientUserID,
			"notification_id", n.ID,
			"error", errors.Join(apperror.ErrDeliveryFailed, err),
		)
	}
}
