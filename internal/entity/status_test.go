package entity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsRoot_RejectsReplies(t *testing.T) {
	parent := uuid.New()
	reply := &Comment{ParentID: &parent}

	_, err := reply.AsRoot()
	assert.ErrorIs(t, err, ErrNotRootComment)
	assert.Nil(t, reply.Status)
}

func TestRootComment_Lifecycle(t *testing.T) {
	open := StatusOpen
	c := &Comment{Status: &open}
	root, err := c.AsRoot()
	require.NoError(t, err)

	by := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.False(t, root.Reopen(), "reopening an open ticket is a no-op")

	assert.True(t, root.Resolve(by, at))
	assert.Equal(t, StatusResolved, root.Status())
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, at, *c.ResolvedAt)
	assert.Equal(t, by, *c.ResolvedBy)

	assert.False(t, root.Resolve(uuid.New(), at.Add(time.Hour)), "second resolve keeps the first resolver")
	assert.Equal(t, by, *c.ResolvedBy)

	assert.True(t, root.Transition(StatusOpen, by, at))
	assert.Equal(t, StatusOpen, root.Status())
	assert.Nil(t, c.ResolvedAt)
	assert.Nil(t, c.ResolvedBy)
}

func TestTicketStatus_Valid(t *testing.T) {
	assert.True(t, StatusOpen.Valid())
	assert.True(t, StatusResolved.Valid())
	assert.False(t, TicketStatus("closed").Valid())
	assert.True(t, CaseTypeContract.Valid())
	assert.False(t, CaseType("public").Valid())
}
