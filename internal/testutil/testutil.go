// Package testutil builds throwaway stores for package tests.
package testutil

import (
	"testing"

	"anoa.com/casethreads/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database with every model migrated and
// the internal roles seeded.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Each new connection would see an empty :memory: database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)

	require.NoError(t, db.AutoMigrate(entity.Models()...))

	for _, name := range append([]string{"customer"}, entity.InternalRoles...) {
		require.NoError(t, db.Create(&entity.Role{Name: name}).Error)
	}

	return db
}

// CreateUser inserts an active user with a profile and returns it with Role loaded.
func CreateUser(t *testing.T, db *gorm.DB, fullName, username, role string) *entity.User {
	t.Helper()

	var r entity.Role
	require.NoError(t, db.Where("name = ?", role).First(&r).Error)

	user := &entity.User{
		Username: username,
		Email:    username + "@example.com",
		RoleID:   &r.ID,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&entity.Profile{UserID: user.ID, FullName: fullName}).Error)

	user.Role = r
	user.Profile = &entity.Profile{UserID: user.ID, FullName: fullName}
	return user
}

// Deactivate marks a user inactive.
func Deactivate(t *testing.T, db *gorm.DB, id uuid.UUID) {
	t.Helper()
	require.NoError(t, db.Model(&entity.User{}).Where("id = ?", id).Update("is_active", false).Error)
}

// CreateComment inserts an open root comment on caseID and returns it.
func CreateComment(t *testing.T, db *gorm.DB, caseID, authorID uuid.UUID) *entity.Comment {
	t.Helper()

	open := entity.StatusOpen
	c := &entity.Comment{
		CaseID:     caseID,
		CaseType:   entity.CaseTypeContract,
		AuthorID:   authorID,
		AuthorName: "Someone",
		AuthorRole: entity.RoleTechnician,
		Content:    "text",
		Status:     &open,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}
