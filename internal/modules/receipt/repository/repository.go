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

// Reader is a receipt joined with the reader's current display name.
type Reader struct {
	UserID   uuid.UUID
	UserName string
	ReadAt   time.Time
}

type ReceiptRepository interface {
	// InsertIfAbsent reports whether a new receipt was written.
	InsertIfAbsent(ctx context.Context, receipt *entity.ReadReceipt) (bool, error)
	ListByComment(ctx context.Context, commentID uuid.UUID) ([]Reader, error)
	// ListForUser returns userID's receipts among commentIDs.
	ListForUser(ctx context.Context, commentIDs []uuid.UUID, userID uuid.UUID) ([]entity.ReadReceipt, error)
}

type receiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) InsertIfAbsent(ctx context.Context, receipt *entity.ReadReceipt) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(receipt)
	if res.Error != nil {
		return false, database.Translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *receiptRepository) ListByComment(ctx context.Context, commentID uuid.UUID) ([]Reader, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var readers []Reader
	err := r.db.WithContext(ctx).
		Table("read_receipts").
		Select("read_receipts.user_id AS user_id, COALESCE(NULLIF(profiles.full_name, ''), users.username) AS user_name, read_receipts.read_at AS read_at").
		Joins("JOIN users ON users.id = read_receipts.user_id").
		Joins("LEFT JOIN profiles ON profiles.user_id = users.id").
		Where("read_receipts.comment_id = ?", commentID).
		Order("read_receipts.read_at ASC").
		Scan(&readers).Error
	return readers, database.Translate(err)
}

func (r *receiptRepository) ListForUser(ctx context.Context, commentIDs []uuid.UUID, userID uuid.UUID) ([]entity.ReadReceipt, error) {
	if len(commentIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var receipts []entity.ReadReceipt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND comment_id IN ?", userID, commentIDs).
		Find(&receipts).Error
	return receipts, database.Translate(err)
}
