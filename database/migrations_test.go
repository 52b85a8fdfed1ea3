package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/accounts"
	"microblog/models"
)

func setupTestDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db, path
}

func TestRunMigrations(t *testing.T) {
	db, _ := setupTestDB(t)

	assert.NoError(t, RunMigrations(db, zap.NewNop()))
	for _, table := range []string{"users", "blogs", "comments", "follows", "sessions"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestSeedAdmin(t *testing.T) {
	db, _ := setupTestDB(t)
	require.NoError(t, RunMigrations(db, zap.NewNop()))
	store := accounts.NewStore(db, accounts.SHA1Hasher{}, zap.NewNop())

	err := SeedAdmin(context.Background(), db, store, "root", "rootpw", zap.NewNop())
	assert.NoError(t, err)

	var admin models.User
	require.NoError(t, db.Where("username = ?", "root").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	// a second run leaves the populated table alone
	err = SeedAdmin(context.Background(), db, store, "other", "otherpw", zap.NewNop())
	assert.NoError(t, err)
	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSeedAdmin_NoUsername(t *testing.T) {
	db, _ := setupTestDB(t)
	require.NoError(t, RunMigrations(db, zap.NewNop()))
	store := accounts.NewStore(db, accounts.SHA1Hasher{}, zap.NewNop())

	assert.NoError(t, SeedAdmin(context.Background(), db, store, "", "", zap.NewNop()))
	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRebuild(t *testing.T) {
	db, path := setupTestDB(t)
	require.NoError(t, RunMigrations(db, zap.NewNop()))
	db.Create(&models.Blog{UserID: 1, Title: "old"})

	require.NoError(t, Rebuild(db, path, zap.NewNop()))

	var count int64
	db.Model(&models.Blog{}).Count(&count)
	assert.Equal(t, int64(0), count)

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.test.db"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	info, err := os.Stat(backups[0])
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
