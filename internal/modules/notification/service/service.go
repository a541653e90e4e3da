package service

import (
	"context"
	"errors"
	"net/http"

	"anoa.com/casethreads/internal/modules/notification/dto"
	notifRepo "anoa.com/casethreads/internal/modules/notification/repository"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/dbretry"
	"github.com/google/uuid"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type NotificationService interface {
	GetNotifications(ctx context.Context, userID uuid.UUID, filter dto.NotificationFilter) ([]dto.NotificationResponse, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo notifRepo.NotificationRepository
}

func NewNotificationService(repo notifRepo.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, filter dto.NotificationFilter) ([]dto.NotificationResponse, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset := max(filter.Offset, 0)

	rows, err := dbretry.Operation(ctx, func(ctx context.Context) ([]dto.NotificationResponse, error) {
		notifications, err := s.repo.GetByUserID(ctx, userID, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]dto.NotificationResponse, 0, len(notifications))
		for i := range notifications {
			out = append(out, dto.FromEntity(&notifications[i]))
		}
		return out, nil
	})
	return rows, err
}

// MarkAsRead is scoped to the caller: someone else's notification reads as not found.
func (s *notificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	err := dbretry.Do(ctx, func(ctx context.Context) error {
		return s.repo.MarkAsRead(ctx, id, userID)
	})
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.New(http.StatusNotFound, "notification not found", err)
	}
	return err
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.MarkAllAsRead(ctx, userID)
	})
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.CountUnread(ctx, userID)
	})
}
