package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/modules/receipt/dto"
	receiptRepo "anoa.com/casethreads/internal/modules/receipt/repository"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/dbretry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// seenTTL bounds how long a recorded read is remembered in redis. Inside that
// window repeated reads skip the database.
const seenTTL = time.Hour

type CommentFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error)
}

type ReceiptService interface {
	MarkRead(ctx context.Context, commentID, userID uuid.UUID) error
	MarkReadAsync(commentIDs []uuid.UUID, userID uuid.UUID)
	GetReceipts(ctx context.Context, commentID uuid.UUID) ([]dto.ReceiptResponse, error)
	// Wait blocks until every pending MarkReadAsync batch has finished.
	Wait()
}

type receiptService struct {
	repo        receiptRepo.ReceiptRepository
	comments    CommentFinder
	redisClient *redis.Client
	logger      *slog.Logger
	now         func() time.Time
	wg          sync.WaitGroup
}

// NewReceiptService accepts a nil redis client.
func NewReceiptService(repo receiptRepo.ReceiptRepository, comments CommentFinder, redisClient *redis.Client, logger *slog.Logger) ReceiptService {
	return &receiptService{
		repo:        repo,
		comments:    comments,
		redisClient: redisClient,
		logger:      logger,
		now:         time.Now,
	}
}

// MarkRead records that userID has seen the comment. Reading your own comment or a
// system comment records nothing, and so does reading one twice.
func (s *receiptService) MarkRead(ctx context.Context, commentID, userID uuid.UUID) error {
	key := fmt.Sprintf("receipt:seen:%s:%s", commentID, userID)
	if s.seen(ctx, key) {
		return nil
	}

	comment, err := dbretry.Operation(ctx, func(ctx context.Context) (*entity.Comment, error) {
		return s.comments.FindByID(ctx, commentID)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.New(http.StatusNotFound, "comment not found", err)
		}
		return err
	}
	if comment.AuthorID == userID || comment.IsSystemComment {
		return nil
	}

	receipt := &entity.ReadReceipt{CommentID: commentID, UserID: userID, ReadAt: s.now().UTC()}
	if err := dbretry.Do(ctx, func(ctx context.Context) error {
		_, err := s.repo.InsertIfAbsent(ctx, receipt)
		return err
	}); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.New(http.StatusNotFound, "comment not found", err)
		}
		return err
	}

	s.remember(ctx, key)
	return nil
}

// MarkReadAsync records a batch in the background. Each receipt gets one retry,
// after which it is dropped.
func (s *receiptService) MarkReadAsync(commentIDs []uuid.UUID, userID uuid.UUID) {
	ids := append([]uuid.UUID(nil), commentIDs...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, id := range ids {
			if err := s.MarkRead(ctx, id, userID); err != nil {
				s.logger.Debug("dropping read receipt", "comment_id", id, "user_id", userID, "error", err)
			}
		}
	}()
}

func (s *receiptService) Wait() {
	s.wg.Wait()
}

func (s *receiptService) GetReceipts(ctx context.Context, commentID uuid.UUID) ([]dto.ReceiptResponse, error) {
	readers, err := dbretry.Operation(ctx, func(ctx context.Context) ([]receiptRepo.Reader, error) {
		return s.repo.ListByComment(ctx, commentID)
	})
	if err != nil {
		return nil, err
	}

	out := make([]dto.ReceiptResponse, 0, len(readers))
	for _, r := range readers {
		out = append(out, dto.ReceiptResponse{UserID: r.UserID, UserName: r.UserName, ReadAt: r.ReadAt})
	}
	return out, nil
}

func (s *receiptService) seen(ctx context.Context, key string) bool {
	if s.redisClient == nil {
		return false
	}
	n, err := s.redisClient.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Debug("receipt cache lookup failed", "key", key, "error", err)
		return false
	}
	return n == 1
}

func (s *receiptService) remember(ctx context.Context, key string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.SetEx(ctx, key, "1", seenTTL).Err(); err != nil {
		s.logger.Debug("receipt cache write failed", "key", key, "error", err)
	}
}
