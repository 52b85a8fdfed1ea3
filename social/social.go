// Package social owns follow edges and the follow/fan counters they derive.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"microblog/apperror"
	"microblog/models"
)

type Graph struct {
	db  *gorm.DB
	l   *zap.Logger
	now func() time.Time
}

func NewGraph(db *gorm.DB, l *zap.Logger) *Graph {
	return &Graph{db: db, l: l, now: time.Now}
}

// Recount rewrites follow_count and fan_count of userID from the follows
// table in a single statement. A missing user is not an error.
func Recount(tx *gorm.DB, userID int) error {
	err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"follow_count": gorm.Expr("(SELECT COUNT(*) FROM follows WHERE follows.user_id = ?)", userID),
		"fan_count":    gorm.Expr("(SELECT COUNT(*) FROM follows WHERE follows.followed_id = ?)", userID),
	}).Error
	if err != nil {
		return fmt.Errorf("social: recounting user %d: %w", userID, err)
	}
	return nil
}

// Follow adds an edge from follower to followee. Repeated follows add
// repeated edges; each one counts.
func (g *Graph) Follow(ctx context.Context, followerID, followeeID int) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mustExist(tx, followerID); err != nil {
			return err
		}
		if err := mustExist(tx, followeeID); err != nil {
			return err
		}

		now := g.now()
		edge := models.Follow{
			UserID:      followerID,
			FollowedID:  followeeID,
			CreatedTime: now,
			ReleaseTime: models.ReleaseTime(now),
		}
		if err := tx.Create(&edge).Error; err != nil {
			return fmt.Errorf("social: creating follow %d->%d: %w", followerID, followeeID, err)
		}
		return recountPair(tx, followerID, followeeID)
	})
	if err != nil {
		return err
	}

	g.l.Info("followed", zap.Int("user_id", followerID), zap.Int("followed_id", followeeID))
	return nil
}

// Unfollow removes the oldest edge from follower to followee.
func (g *Graph) Unfollow(ctx context.Context, followerID, followeeID int) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var edge models.Follow
		err := tx.Where("user_id = ? AND followed_id = ?", followerID, followeeID).
			Order("id ASC").
			First(&edge).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("follow", fmt.Sprintf("%d->%d", followerID, followeeID))
			}
			return fmt.Errorf("social: finding follow %d->%d: %w", followerID, followeeID, err)
		}
		if err := tx.Delete(&edge).Error; err != nil {
			return fmt.Errorf("social: deleting follow %d: %w", edge.ID, err)
		}
		return recountPair(tx, followerID, followeeID)
	})
	if err != nil {
		return err
	}

	g.l.Info("unfollowed", zap.Int("user_id", followerID), zap.Int("followed_id", followeeID))
	return nil
}

func recountPair(tx *gorm.DB, a, b int) error {
	if err := Recount(tx, a); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	return Recount(tx, b)
}

// ListFollowing returns the users userID follows, most recent edge first.
func (g *Graph) ListFollowing(ctx context.Context, userID int) ([]models.User, error) {
	return g.list(ctx, userID, "follows.followed_id = users.id", "follows.user_id = ?")
}

// ListFollowers returns the users following userID, most recent edge first.
func (g *Graph) ListFollowers(ctx context.Context, userID int) ([]models.User, error) {
	return g.list(ctx, userID, "follows.user_id = users.id", "follows.followed_id = ?")
}

func (g *Graph) list(ctx context.Context, userID int, join, where string) ([]models.User, error) {
	db := g.db.WithContext(ctx)
	if err := mustExist(db, userID); err != nil {
		return nil, err
	}

	var users []models.User
	err := db.Model(&models.User{}).
		Select("users.*").
		Joins("INNER JOIN follows ON "+join).
		Where(where, userID).
		Order("follows.created_time DESC, follows.id DESC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("social: listing graph of %d: %w", userID, err)
	}
	return users, nil
}

// FollowingIDs returns the ids userID follows, one per edge.
func (g *Graph) FollowingIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := g.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("followed_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("social: listing followed ids of %d: %w", userID, err)
	}
	return ids, nil
}

func (g *Graph) RecomputeCounts(ctx context.Context, userID int) (*models.User, error) {
	var user models.User
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mustExist(tx, userID); err != nil {
			return err
		}
		if err := Recount(tx, userID); err != nil {
			return err
		}
		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RecomputeAll repairs the counters of every user.
func (g *Graph) RecomputeAll(ctx context.Context) error {
	var ids []int
	if err := g.db.WithContext(ctx).Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("social: listing users: %w", err)
	}
	for _, id := range ids {
		if err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return Recount(tx, id)
		}); err != nil {
			return err
		}
	}
	g.l.Info("recomputed follow counters", zap.Int("users", len(ids)))
	return nil
}

func mustExist(tx *gorm.DB, userID int) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("social: checking user %d: %w", userID, err)
	}
	if count == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}
