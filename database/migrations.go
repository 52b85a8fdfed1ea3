package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"microblog/accounts"
	"microblog/models"
)

func RunMigrations(db *gorm.DB, l *zap.Logger) error {
	l.Info("running database migrations")

	if err := db.AutoMigrate(models.All()...); err != nil {
		l.Error("error running migrations", zap.Error(err))
		return err
	}

	l.Info("migrations completed")
	return nil
}

// SeedAdmin creates the admin account when the users table is empty. It does
// nothing when username is unset.
func SeedAdmin(ctx context.Context, db *gorm.DB, store *accounts.Store, username, password string, l *zap.Logger) error {
	if username == "" {
		return nil
	}

	var counter int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&counter).Error; err != nil {
		return fmt.Errorf("failed to get user count: %w", err)
	}
	if counter > 0 {
		return nil
	}

	user, err := store.CreateAdmin(ctx, models.Form{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	l.Info("seeded admin user", zap.Int("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

// Backup copies a sqlite database file next to itself, prefixed with the
// current unix time, and returns the backup path.
func Backup(dbFile string) (string, error) {
	src, err := os.Open(dbFile)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", dbFile, err)
	}
	defer src.Close()

	backup := filepath.Join(filepath.Dir(dbFile),
		fmt.Sprintf("%d.%s", time.Now().Unix(), filepath.Base(dbFile)))
	dst, err := os.Create(backup)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", backup, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copying to %s: %w", backup, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return backup, nil
}

// Rebuild drops every table and migrates again. Pass the sqlite file to back
// it up first; other drivers pass "".
func Rebuild(db *gorm.DB, dbFile string, l *zap.Logger) error {
	if dbFile != "" {
		backup, err := Backup(dbFile)
		if err != nil {
			return err
		}
		l.Info("database backed up", zap.String("path", backup))
	}

	if err := db.Migrator().DropTable(models.All()...); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	if err := RunMigrations(db, l); err != nil {
		return err
	}
	l.Info("rebuilt database")
	return nil
}
