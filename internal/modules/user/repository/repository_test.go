package repository

import (
	"context"
	"testing"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/testutil"
	"anoa.com/casethreads/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_ResolveUser(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tech := testutil.CreateUser(t, db, "Tech One", "tech1", entity.RoleTechnician)

	t.Run("existing user", func(t *testing.T) {
		p, err := repo.ResolveUser(ctx, tech.ID)
		require.NoError(t, err)
		assert.Equal(t, "Tech One", p.DisplayName)
		assert.Equal(t, entity.RoleTechnician, p.Role)
		assert.True(t, p.IsActive)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := repo.ResolveUser(ctx, uuid.New())
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("inactive user still resolves", func(t *testing.T) {
		old := testutil.CreateUser(t, db, "Old Timer", "old", entity.RoleTechnician)
		testutil.Deactivate(t, db, old.ID)

		p, err := repo.ResolveUser(ctx, old.ID)
		require.NoError(t, err)
		assert.False(t, p.IsActive)
	})
}

func TestUserRepository_ListByRole(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t1 := testutil.CreateUser(t, db, "Tech One", "tech1", entity.RoleTechnician)
	t2 := testutil.CreateUser(t, db, "Tech Two", "tech2", entity.RoleTechnician)
	gone := testutil.CreateUser(t, db, "Tech Gone", "tech3", entity.RoleTechnician)
	testutil.Deactivate(t, db, gone.ID)
	admin := testutil.CreateUser(t, db, "Ada Admin", "ada", entity.RoleAdmin)
	testutil.CreateUser(t, db, "Carl Customer", "carl", "customer")

	techs, err := repo.ListUsersByRole(ctx, entity.RoleTechnician)
	require.NoError(t, err)
	assert.Equal(t, []entity.UserRef{
		{ID: t1.ID, DisplayName: "Tech One"},
		{ID: t2.ID, DisplayName: "Tech Two"},
	}, techs)

	internal, err := repo.ListActiveInternalUsers(ctx)
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, ref := range internal {
		ids = append(ids, ref.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{t1.ID, t2.ID, admin.ID}, ids)
}

func TestUserRepository_FindActiveByDisplayName(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	anna := testutil.CreateUser(t, db, "Anna Berg", "anna", entity.RoleKoordinator)
	old := testutil.CreateUser(t, db, "Old Timer", "old", entity.RoleTechnician)
	testutil.Deactivate(t, db, old.ID)

	ref, err := repo.FindActiveByDisplayName(ctx, "anna berg")
	require.NoError(t, err)
	assert.Equal(t, anna.ID, ref.ID)

	ref, err = repo.FindActiveByDisplayName(ctx, "ANNA")
	require.NoError(t, err)
	assert.Equal(t, anna.ID, ref.ID)

	_, err = repo.FindActiveByDisplayName(ctx, "Old Timer")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = repo.FindActiveByDisplayName(ctx, "  ")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUserRepository_CreateInactive(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	role, err := repo.FindRoleByName(ctx, entity.RoleTechnician)
	require.NoError(t, err)

	u := &entity.User{Username: "ghost", Email: "ghost@example.com", RoleID: &role.ID, IsActive: false}
	require.NoError(t, repo.Create(ctx, u, &entity.Profile{FullName: "Ghost"}))

	found, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
	assert.Equal(t, "Ghost", found.DisplayName())
}

func TestUserRepository_DisplayNames(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)

	a := testutil.CreateUser(t, db, "Anna Berg", "anna", entity.RoleKoordinator)

	names, err := repo.DisplayNames(context.Background(), []uuid.UUID{a.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{a.ID: "Anna Berg"}, names)
}
