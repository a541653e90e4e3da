package repository

import (
	"context"
	"time"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/pkg/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *entity.Attachment) error
	FindOrphans(ctx context.Context, cutoffTime time.Time) ([]entity.Attachment, error)
	Delete(ctx context.Context, id uint) error
}

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *entity.Attachment) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	return database.Translate(r.db.WithContext(ctx).Create(attachment).Error)
}

// FindOrphans returns uploads never claimed by a comment before cutoffTime.
func (r *attachmentRepository) FindOrphans(ctx context.Context, cutoffTime time.Time) ([]entity.Attachment, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var attachments []entity.Attachment
	err := r.db.WithContext(ctx).
		Where("comment_id IS NULL AND created_at < ?", cutoffTime).
		Find(&attachments).Error
	return attachments, database.Translate(err)
}

func (r *attachmentRepository) Delete(ctx context.Context, id uint) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	return database.Translate(r.db.WithContext(ctx).Delete(&entity.Attachment{}, id).Error)
}

// Claim binds items to commentID inside tx, in order, starting at position next.
// An unclaimed upload by the same owner with the same URL is reused and keeps
// the mime type and size detected at upload; anything else gets a fresh row.
func Claim(tx *gorm.DB, commentID, ownerID uuid.UUID, next int, items []entity.Attachment) ([]entity.Attachment, error) {
	out := make([]entity.Attachment, 0, len(items))

	for i, item := range items {
		item.CommentID = &commentID
		item.UserID = ownerID
		item.Position = next + i

		var upload entity.Attachment
		err := tx.Where("file_url = ? AND user_id = ? AND comment_id IS NULL", item.FileURL, ownerID).
			Order("id ASC").
			Limit(1).
			Find(&upload).Error
		if err != nil {
			return nil, err
		}

		if upload.ID != 0 {
			item.ID = upload.ID
			item.CreatedAt = upload.CreatedAt
			item.MimeType = upload.MimeType
			item.Size = upload.Size
			if err := tx.Model(&entity.Attachment{}).Where("id = ?", upload.ID).Updates(map[string]any{
				"comment_id": commentID,
				"position":   item.Position,
				"file_name":  item.FileName,
			}).Error; err != nil {
				return nil, err
			}
		} else {
			item.ID = 0
			if err := tx.Create(&item).Error; err != nil {
				return nil, err
			}
		}

		out = append(out, item)
	}

	return out, nil
}

// NextPosition returns the position the next appended attachment of commentID takes.
func NextPosition(tx *gorm.DB, commentID uuid.UUID) (int, error) {
	var count int64
	if err := tx.Model(&entity.Attachment{}).Where("comment_id = ?", commentID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
