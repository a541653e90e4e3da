package service

import (
	"context"
	"errors"
	"testing"

	"anoa.com/casethreads/internal/entity"
	commentRepo "anoa.com/casethreads/internal/modules/comment/repository"
	receiptRepo "anoa.com/casethreads/internal/modules/receipt/repository"
	"anoa.com/casethreads/internal/testutil"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type receiptFixture struct {
	db       *gorm.DB
	comments commentRepo.CommentRepository
	repo     receiptRepo.ReceiptRepository
	svc      ReceiptService
	mr       *miniredis.Miniredis

	author, reader *entity.User
}

func newReceiptFixture(t *testing.T, withRedis bool) *receiptFixture {
	t.Helper()

	db := testutil.NewDB(t)
	f := &receiptFixture{
		db:       db,
		comments: commentRepo.NewCommentRepository(db),
		repo:     receiptRepo.NewReceiptRepository(db),
		author:   testutil.CreateUser(t, db, "Kim Koord", "kim", entity.RoleKoordinator),
		reader:   testutil.CreateUser(t, db, "Tech One", "tech1", entity.RoleTechnician),
	}

	var client *redis.Client
	if withRedis {
		f.mr = miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
	}
	f.svc = NewReceiptService(f.repo, f.comments, client, logger.Discard())
	return f
}

func (f *receiptFixture) comment(t *testing.T, system bool) *entity.Comment {
	t.Helper()
	c := &entity.Comment{
		CaseID:          uuid.New(),
		CaseType:        entity.CaseTypePrivate,
		AuthorID:        f.author.ID,
		AuthorName:      "Kim Koord",
		AuthorRole:      entity.RoleKoordinator,
		Content:         "Check the loft",
		IsSystemComment: system,
	}
	require.NoError(t, f.comments.Create(context.Background(), c))
	return c
}

func (f *receiptFixture) count(t *testing.T, commentID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&entity.ReadReceipt{}).Where("comment_id = ?", commentID).Count(&n).Error)
	return n
}

func TestMarkRead_RecordsOncePerUser(t *testing.T) {
	for name, withRedis := range map[string]bool{"db only": false, "redis cache": true} {
		t.Run(name, func(t *testing.T) {
			f := newReceiptFixture(t, withRedis)
			ctx := context.Background()
			c := f.comment(t, false)

			require.NoError(t, f.svc.MarkRead(ctx, c.ID, f.reader.ID))
			require.NoError(t, f.svc.MarkRead(ctx, c.ID, f.reader.ID))
			assert.EqualValues(t, 1, f.count(t, c.ID))

			receipts, err := f.svc.GetReceipts(ctx, c.ID)
			require.NoError(t, err)
			require.Len(t, receipts, 1)
			assert.Equal(t, f.reader.ID, receipts[0].UserID)
			assert.Equal(t, "Tech One", receipts[0].UserName)
			assert.False(t, receipts[0].ReadAt.IsZero())
		})
	}
}

func TestMarkRead_OwnAndSystemCommentsAreNoOps(t *testing.T) {
	f := newReceiptFixture(t, false)
	ctx := context.Background()

	own := f.comment(t, false)
	require.NoError(t, f.svc.MarkRead(ctx, own.ID, f.author.ID))
	assert.Zero(t, f.count(t, own.ID))

	system := f.comment(t, true)
	require.NoError(t, f.svc.MarkRead(ctx, system.ID, f.reader.ID))
	assert.Zero(t, f.count(t, system.ID))
}

func TestMarkRead_UnknownComment(t *testing.T) {
	f := newReceiptFixture(t, false)

	err := f.svc.MarkRead(context.Background(), uuid.New(), f.reader.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestMarkReadAsync_WritesBatchAndDropsFailures(t *testing.T) {
	f := newReceiptFixture(t, true)
	a, b := f.comment(t, false), f.comment(t, false)

	f.svc.MarkReadAsync([]uuid.UUID{a.ID, uuid.New(), b.ID}, f.reader.ID)
	f.svc.Wait()

	assert.EqualValues(t, 1, f.count(t, a.ID))
	assert.EqualValues(t, 1, f.count(t, b.ID))
	assert.True(t, f.mr.Exists("receipt:seen:"+a.ID.String()+":"+f.reader.ID.String()))
}

func TestListForUser(t *testing.T) {
	f := newReceiptFixture(t, false)
	ctx := context.Background()
	a, b := f.comment(t, false), f.comment(t, false)

	require.NoError(t, f.svc.MarkRead(ctx, a.ID, f.reader.ID))

	receipts, err := f.repo.ListForUser(ctx, []uuid.UUID{a.ID, b.ID}, f.reader.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, a.ID, receipts[0].CommentID)

	none, err := f.repo.ListForUser(ctx, nil, f.reader.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// vanishingFinder returns the comment and then deletes it, as a concurrent
// delete landing between the lookup and the insert would.
type vanishingFinder struct {
	commentRepo.CommentRepository
}

func (f vanishingFinder) FindByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error) {
	c, err := f.CommentRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := f.CommentRepository.DeleteCascade(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func TestMarkRead_CommentDeletedConcurrently(t *testing.T) {
	f := newReceiptFixture(t, false)
	c := f.comment(t, false)

	svc := NewReceiptService(f.repo, vanishingFinder{CommentRepository: f.comments}, nil, logger.Discard())
	err := svc.MarkRead(context.Background(), c.ID, f.reader.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
	assert.Equal(t, 404, apperror.MapErrorToStatus(err))
	assert.Zero(t, f.count(t, c.ID))
}
