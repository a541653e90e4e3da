package repository

import (
	"context"
	"time"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/pkg/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	// InsertIfAbsent reports whether a new row was written. An existing row for the
	// same (recipient, comment) is left untouched.
	InsertIfAbsent(ctx context.Context, notification *entity.Notification) (bool, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	CountByComment(ctx context.Context, commentID uuid.UUID) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) InsertIfAbsent(ctx context.Context, notification *entity.Notification) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_user_id"}, {Name: "comment_id"}},
			DoNothing: true,
		}).
		Create(notification)
	if res.Error != nil {
		return false, database.Translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *notificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var notifications []entity.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	return notifications, database.Translate(err)
}

// MarkAsRead only touches the row when it belongs to userID.
func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var n entity.Notification
	if err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_user_id = ?", id, userID).
		First(&n).Error; err != nil {
		return database.Translate(err)
	}
	if n.IsRead {
		return nil
	}

	now := time.Now().UTC()
	return database.Translate(r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error)
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	return res.RowsAffected, database.Translate(res.Error)
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, database.Translate(err)
}

func (r *notificationRepository) CountByComment(ctx context.Context, commentID uuid.UUID) (int64, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("comment_id = ?", commentID).
		Count(&count).Error
	return count, database.Translate(err)
}
