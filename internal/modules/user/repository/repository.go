package repository

import (
	"context"
	"strings"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/pkg/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository is the identity/profile store. It also serves as the mention
// directory, so every lookup here is read-only and bounded by the query timeout.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User, profile *entity.Profile) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindRoleByName(ctx context.Context, name string) (*entity.Role, error)

	ResolveUser(ctx context.Context, id uuid.UUID) (*entity.UserProfile, error)
	ListUsersByRole(ctx context.Context, role string) ([]entity.UserRef, error)
	ListActiveInternalUsers(ctx context.Context) ([]entity.UserRef, error)
	FindActiveByDisplayName(ctx context.Context, name string) (*entity.UserRef, error)
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User, profile *entity.Profile) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active := user.IsActive
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		// is_active has a column default, so an explicit false must be written separately.
		if !active {
			if err := tx.Model(user).Update("is_active", false).Error; err != nil {
				return err
			}
		}

		if profile != nil {
			profile.UserID = user.ID
			if err := tx.Create(profile).Error; err != nil {
				return err
			}
		}

		return nil
	})
	return database.Translate(err)
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var user entity.User
	if err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("Profile").
		Where("id = ?", id).
		First(&user).Error; err != nil {
		return nil, database.Translate(err)
	}

	return &user, nil
}

func (r *userRepository) FindRoleByName(ctx context.Context, name string) (*entity.Role, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var role entity.Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, database.Translate(err)
	}

	return &role, nil
}

func (r *userRepository) ResolveUser(ctx context.Context, id uuid.UUID) (*entity.UserProfile, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &entity.UserProfile{
		ID:          user.ID,
		DisplayName: user.DisplayName(),
		Role:        user.Role.Name,
		IsActive:    user.IsActive,
	}, nil
}

func (r *userRepository) ListUsersByRole(ctx context.Context, role string) ([]entity.UserRef, error) {
	return r.listActive(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("roles.name = ?", role)
	})
}

func (r *userRepository) ListActiveInternalUsers(ctx context.Context) ([]entity.UserRef, error) {
	return r.listActive(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("roles.name IN ?", entity.InternalRoles)
	})
}

func (r *userRepository) listActive(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]entity.UserRef, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var users []entity.User
	if err := r.db.WithContext(ctx).
		Joins("JOIN roles ON roles.id = users.role_id").
		Preload("Profile").
		Scopes(scope).
		Where("users.is_active = ?", true).
		Order("users.username ASC").
		Find(&users).Error; err != nil {
		return nil, database.Translate(err)
	}

	refs := make([]entity.UserRef, 0, len(users))
	for i := range users {
		refs = append(refs, entity.UserRef{ID: users[i].ID, DisplayName: users[i].DisplayName()})
	}
	return refs, nil
}

// FindActiveByDisplayName matches case-insensitively on the profile name first,
// then on the username. The oldest account wins when several share a name.
func (r *userRepository) FindActiveByDisplayName(ctx context.Context, name string) (*entity.UserRef, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, database.Translate(gorm.ErrRecordNotFound)
	}

	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var users []entity.User
	if err := r.db.WithContext(ctx).
		Joins("LEFT JOIN profiles ON profiles.user_id = users.id").
		Preload("Profile").
		Where("users.is_active = ?", true).
		Where("LOWER(profiles.full_name) = ? OR LOWER(users.username) = ?", name, name).
		Order("users.created_at ASC").
		Limit(10).
		Find(&users).Error; err != nil {
		return nil, database.Translate(err)
	}
	if len(users) == 0 {
		return nil, database.Translate(gorm.ErrRecordNotFound)
	}

	best := &users[0]
	for i := range users {
		if users[i].Profile != nil && strings.ToLower(users[i].Profile.FullName) == name {
			best = &users[i]
			break
		}
	}

	return &entity.UserRef{ID: best.ID, DisplayName: best.DisplayName()}, nil
}

// DisplayNames returns the current display name of each id that exists.
func (r *userRepository) DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var users []entity.User
	if err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return nil, database.Translate(err)
	}

	for i := range users {
		names[users[i].ID] = users[i].DisplayName()
	}
	return names, nil
}
