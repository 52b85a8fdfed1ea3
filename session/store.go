package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"microblog/models"
)

// Store maps session tokens to user ids.
type Store interface {
	// Get returns ok=false for unknown or expired tokens.
	Get(ctx context.Context, token string) (userID int, ok bool, err error)
	Set(ctx context.Context, token string, userID int) error
	Delete(ctx context.Context, token string) error
}

// GormStore keeps sessions in the sessions table.
type GormStore struct {
	db     *gorm.DB
	maxAge time.Duration
	now    func() time.Time
}

func NewGormStore(db *gorm.DB, maxAge time.Duration) *GormStore {
	return &GormStore{db: db, maxAge: maxAge, now: time.Now}
}

func (s *GormStore) Get(ctx context.Context, token string) (int, bool, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, s.now()).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("session: loading token: %w", err)
	}
	return sess.UserID, true, nil
}

func (s *GormStore) Set(ctx context.Context, token string, userID int) error {
	now := s.now()
	sess := models.Session{
		Token:       token,
		UserID:      userID,
		CreatedTime: now,
		ExpiresAt:   now.Add(s.maxAge),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "created_time", "expires_at"}),
	}).Create(&sess).Error
	if err != nil {
		return fmt.Errorf("session: saving token for user %d: %w", userID, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("session: deleting token: %w", err)
	}
	return nil
}

// Purge drops expired sessions.
func (s *GormStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("session: purging: %w", res.Error)
	}
	return res.RowsAffected, nil
}

const redisKeyPrefix = "microblog:session:"

// RedisStore keeps sessions in redis with a TTL.
type RedisStore struct {
	rdb    *redis.Client
	maxAge time.Duration
}

func NewRedisStore(rdb *redis.Client, maxAge time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, maxAge: maxAge}
}

// ConnectRedis parses a redis:// url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session: connecting to redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (int, bool, error) {
	v, err := s.rdb.Get(ctx, redisKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("session: loading token: %w", err)
	}
	userID, err := strconv.Atoi(v)
	if err != nil {
		// unreadable entry, drop it
		s.rdb.Del(ctx, redisKeyPrefix+token)
		return 0, false, nil
	}
	return userID, true, nil
}

func (s *RedisStore) Set(ctx context.Context, token string, userID int) error {
	if err := s.rdb.Set(ctx, redisKeyPrefix+token, strconv.Itoa(userID), s.maxAge).Err(); err != nil {
		return fmt.Errorf("session: saving token for user %d: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("session: deleting token: %w", err)
	}
	return nil
}
