package repository

import (
	"context"
	"strings"
	"time"

	"anoa.com/casethreads/internal/entity"
	attachmentRepo "anoa.com/casethreads/internal/modules/attachment/repository"
	"anoa.com/casethreads/pkg/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeleteResult lists everything a cascading delete removed.
type DeleteResult struct {
	CommentIDs []uuid.UUID
	BlobURLs   []string
}

type CommentRepository interface {
	// Create inserts the comment and claims its attachments in one transaction.
	Create(ctx context.Context, comment *entity.Comment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error)
	ListByCase(ctx context.Context, caseID uuid.UUID, caseType entity.CaseType, q string) ([]entity.Comment, error)
	ListByCases(ctx context.Context, caseIDs []uuid.UUID) ([]entity.Comment, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
	// UpdateStatus writes the root's status fields and appends the system comment atomically.
	UpdateStatus(ctx context.Context, root *entity.Comment, system *entity.Comment) error
	AddAttachments(ctx context.Context, commentID, ownerID uuid.UUID, items []entity.Attachment) ([]entity.Attachment, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) (*DeleteResult, error)
	// FindCaseIDsInvolving returns the cases where userID wrote or was mentioned,
	// directly, through role or through an "all" mention.
	FindCaseIDsInvolving(ctx context.Context, userID uuid.UUID, role string) ([]uuid.UUID, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func preloadAttachments(db *gorm.DB) *gorm.DB {
	return db.Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	})
}

func (r *commentRepository) Create(ctx context.Context, comment *entity.Comment) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	items := comment.Attachments
	comment.Attachments = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		claimed, err := attachmentRepo.Claim(tx, comment.ID, comment.AuthorID, 0, items)
		if err != nil {
			return err
		}
		comment.Attachments = claimed
		return nil
	})
	if err != nil {
		comment.Attachments = items
	}
	return database.Translate(err)
}

func (r *commentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var comment entity.Comment
	if err := r.db.WithContext(ctx).
		Scopes(preloadAttachments).
		Where("id = ?", id).
		First(&comment).Error; err != nil {
		return nil, database.Translate(err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByCase(ctx context.Context, caseID uuid.UUID, caseType entity.CaseType, q string) ([]entity.Comment, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	query := r.db.WithContext(ctx).
		Scopes(preloadAttachments).
		Where("case_id = ? AND case_type = ?", caseID, caseType)

	if q = strings.TrimSpace(q); q != "" {
		query = query.Where(`LOWER(content) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(q))+"%")
	}

	var comments []entity.Comment
	if err := query.Order("created_at ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, database.Translate(err)
	}
	return comments, nil
}

func (r *commentRepository) ListByCases(ctx context.Context, caseIDs []uuid.UUID) ([]entity.Comment, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var comments []entity.Comment
	if err := r.db.WithContext(ctx).
		Scopes(preloadAttachments).
		Where("case_id IN ?", caseIDs).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		return nil, database.Translate(err)
	}
	return comments, nil
}

func (r *commentRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&entity.Comment{}).
		Where("id = ?", id).
		Updates(map[string]any{"content": content, "is_edited": true})
	if res.Error != nil {
		return database.Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return database.Translate(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *commentRepository) UpdateStatus(ctx context.Context, root *entity.Comment, system *entity.Comment) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.Comment{}).
			Where("id = ? AND parent_id IS NULL", root.ID).
			Updates(map[string]any{
				"status":      root.Status,
				"resolved_at": root.ResolvedAt,
				"resolved_by": root.ResolvedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if system != nil {
			return tx.Create(system).Error
		}
		return nil
	})
	return database.Translate(err)
}

func (r *commentRepository) AddAttachments(ctx context.Context, commentID, ownerID uuid.UUID, items []entity.Attachment) ([]entity.Attachment, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var claimed []entity.Attachment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, err := attachmentRepo.NextPosition(tx, commentID)
		if err != nil {
			return err
		}
		claimed, err = attachmentRepo.Claim(tx, commentID, ownerID, next, items)
		if err != nil {
			return err
		}
		return tx.Model(&entity.Comment{}).Where("id = ?", commentID).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return claimed, nil
}

// DeleteCascade removes the comment, every descendant reply, and their
// notifications, read receipts and attachment rows. Blob URLs are returned so
// the caller can remove the files once the transaction has committed.
func (r *commentRepository) DeleteCascade(ctx context.Context, id uuid.UUID) (*DeleteResult, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	result := &DeleteResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&entity.Comment{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return gorm.ErrRecordNotFound
		}

		ids := []uuid.UUID{id}
		frontier := []uuid.UUID{id}
		seen := map[uuid.UUID]bool{id: true}
		for len(frontier) > 0 {
			var children []uuid.UUID
			if err := tx.Model(&entity.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
				return err
			}
			frontier = frontier[:0]
			for _, child := range children {
				if !seen[child] {
					seen[child] = true
					ids = append(ids, child)
					frontier = append(frontier, child)
				}
			}
		}

		if err := tx.Model(&entity.Attachment{}).Where("comment_id IN ?", ids).Pluck("file_url", &result.BlobURLs).Error; err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", ids).Delete(&entity.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", ids).Delete(&entity.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", ids).Delete(&entity.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", ids).Delete(&entity.Comment{}).Error; err != nil {
			return err
		}

		result.CommentIDs = ids
		return nil
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return result, nil
}

func (r *commentRepository) FindCaseIDsInvolving(ctx context.Context, userID uuid.UUID, role string) ([]uuid.UUID, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	// mentioned_* columns hold JSON arrays, so a quoted substring match is exact.
	query := r.db.WithContext(ctx).Model(&entity.Comment{}).
		Where("author_id = ? OR mentioned_user_ids LIKE ?", userID, `%"`+userID.String()+`"%`)
	if entity.IsInternalRole(role) {
		query = query.Or("mentioned_roles LIKE ?", `%"`+role+`"%`).Or("mentions_all = ?", true)
	}

	var ids []uuid.UUID
	if err := query.Distinct().Pluck("case_id", &ids).Error; err != nil {
		return nil, database.Translate(err)
	}
	return ids, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
