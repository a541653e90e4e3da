package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, Translate(nil))
	assert.ErrorIs(t, Translate(gorm.ErrRecordNotFound), apperror.ErrNotFound)
	assert.ErrorIs(t, Translate(fmt.Errorf("query: %w", context.DeadlineExceeded)), apperror.ErrStoreUnavailable)
	assert.ErrorIs(t, Translate(errors.New("dial tcp: connection refused")), apperror.ErrStoreUnavailable)

	assert.ErrorIs(t, Translate(gorm.ErrForeignKeyViolated), apperror.ErrNotFound)
	assert.ErrorIs(t, Translate(errors.New("FOREIGN KEY constraint failed")), apperror.ErrNotFound)
	assert.ErrorIs(t, Translate(gorm.ErrDuplicatedKey), apperror.ErrConflict)
	assert.ErrorIs(t, Translate(errors.New(`ERROR: duplicate key value violates unique constraint "comments_pkey" (SQLSTATE 23505)`)), apperror.ErrConflict)

	plain := errors.New("syntax error at or near")
	assert.Equal(t, plain, Translate(plain))
}

func TestWithTimeout(t *testing.T) {
	SetQueryTimeout(50 * time.Millisecond)
	defer SetQueryTimeout(DefaultQueryTimeout)

	ctx, cancel := WithTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)

	SetQueryTimeout(0)
	assert.Equal(t, 50*time.Millisecond, queryTimeout)
}
