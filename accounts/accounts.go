// Package accounts owns user records: registration, credential checks,
// administrative edits and deletion.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"microblog/apperror"
	"microblog/models"
	"microblog/social"
)

const MinUsernameLength = 3

// Availability is the result of a pre-submit field check.
type Availability string

const (
	Available Availability = "ok"
	Empty     Availability = "empty"
	Taken     Availability = "taken"
)

type Store struct {
	db     *gorm.DB
	hasher Hasher
	l      *zap.Logger
	now    func() time.Time
}

func NewStore(db *gorm.DB, hasher Hasher, l *zap.Logger) *Store {
	return &Store{db: db, hasher: hasher, l: l, now: time.Now}
}

// NewUser builds an unsaved user from submitted fields.
func (s *Store) NewUser(form models.Form) (*models.User, error) {
	password, err := s.hasher.Hash(form.Get("password"))
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.User{
		Username:    form.Get("username"),
		Password:    password,
		Sex:         form.Get("sex"),
		Note:        form.Get("note"),
		Role:        models.RoleRegular,
		CreatedTime: now,
		ReleaseTime: models.ReleaseTime(now),
	}, nil
}

func (s *Store) Register(ctx context.Context, form models.Form) (*models.User, error) {
	user, err := s.NewUser(form)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, user); err != nil {
		return nil, err
	}
	s.l.Info("user registered", zap.Int("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// CreateAdmin persists an admin user. Used to seed an empty database.
func (s *Store) CreateAdmin(ctx context.Context, form models.Form) (*models.User, error) {
	user, err := s.NewUser(form)
	if err != nil {
		return nil, err
	}
	user.Role = models.RoleAdmin
	if err := s.create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) create(ctx context.Context, user *models.User) error {
	if utf8.RuneCountInString(user.Username) < MinUsernameLength {
		return apperror.ValidationFailed("username", "username must be at least 3 characters")
	}
	if user.Password == TooShort {
		return apperror.ValidationFailed("password", "password must be at least 3 characters")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := usernameTaken(tx, user.Username, 0)
		if err != nil {
			return err
		}
		if taken {
			return errUsernameTaken()
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("accounts: creating user %q: %w", user.Username, err)
		}
		return nil
	})
	return s.lostRace(ctx, err, user.Username, 0)
}

func errUsernameTaken() error {
	return apperror.ValidationFailed("username", "username already taken")
}

// lostRace turns a failed write into a validation error when a concurrent
// writer claimed the username between the check and the write.
func (s *Store) lostRace(ctx context.Context, err error, username string, exceptID int) error {
	if err == nil || apperror.Kind(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errUsernameTaken()
	}
	if taken, checkErr := usernameTaken(s.db.WithContext(ctx), username, exceptID); checkErr == nil && taken {
		s.l.Debug("username claimed concurrently", zap.String("username", username))
		return errUsernameTaken()
	}
	return err
}

func usernameTaken(tx *gorm.DB, username string, exceptID int) (bool, error) {
	var count int64
	q := tx.Model(&models.User{}).Where("username = ?", username)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("accounts: checking username %q: %w", username, err)
	}
	return count > 0, nil
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.l.Debug("login failed", zap.String("username", username))
			return nil, apperror.AuthFailed()
		}
		return nil, fmt.Errorf("accounts: looking up %q: %w", username, err)
	}

	if !s.hasher.Verify(password, user.Password) {
		s.l.Debug("login failed", zap.String("username", username))
		return nil, apperror.AuthFailed()
	}

	s.l.Info("user logged in", zap.Int("user_id", user.ID))
	return &user, nil
}

// UpdateCredentials replaces username and password together. It reports false
// and changes nothing when either field is empty.
func (s *Store) UpdateCredentials(ctx context.Context, userID int, form models.Form) (bool, error) {
	username := form.Get("username")
	password := form.Get("password")
	if username == "" || password == "" {
		return false, nil
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return false, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		taken, err := usernameTaken(tx, username, userID)
		if err != nil {
			return err
		}
		if taken {
			return errUsernameTaken()
		}
		return tx.Model(&user).Updates(map[string]interface{}{
			"username": username,
			"password": hashed,
		}).Error
	})
	if err = s.lostRace(ctx, err, username, userID); err != nil {
		return false, err
	}

	s.l.Info("user credentials updated", zap.Int("user_id", userID))
	return true, nil
}

// Delete removes the user together with their blogs, the comments on those
// blogs, their sessions and every follow edge touching them. Users on the
// other end of a removed edge get their counts recomputed.
func (s *Store) Delete(ctx context.Context, userID int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}

		var edges []models.Follow
		if err := tx.Where("user_id = ? OR followed_id = ?", userID, userID).Find(&edges).Error; err != nil {
			return fmt.Errorf("accounts: listing follow edges of %d: %w", userID, err)
		}
		counterparts := make([]int, 0, len(edges))
		for _, e := range edges {
			if e.UserID == userID {
				counterparts = append(counterparts, e.FollowedID)
			} else {
				counterparts = append(counterparts, e.UserID)
			}
		}
		if err := tx.Where("user_id = ? OR followed_id = ?", userID, userID).Delete(&models.Follow{}).Error; err != nil {
			return fmt.Errorf("accounts: deleting follow edges of %d: %w", userID, err)
		}

		blogIDs := tx.Model(&models.Blog{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("blog_id IN (?)", blogIDs).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("accounts: deleting comments on blogs of %d: %w", userID, err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Blog{}).Error; err != nil {
			return fmt.Errorf("accounts: deleting blogs of %d: %w", userID, err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("accounts: deleting sessions of %d: %w", userID, err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("accounts: deleting user %d: %w", userID, err)
		}

		seen := map[int]bool{userID: true}
		for _, id := range counterparts {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := social.Recount(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.l.Info("user deleted", zap.Int("user_id", userID))
	return nil
}

func (s *Store) CheckUsername(ctx context.Context, candidate string) (Availability, error) {
	if candidate == "" {
		return Empty, nil
	}
	taken, err := usernameTaken(s.db.WithContext(ctx), candidate, 0)
	if err != nil {
		return "", err
	}
	if taken {
		return Taken, nil
	}
	return Available, nil
}

func (s *Store) CheckPassword(candidate string) Availability {
	if candidate == "" {
		return Empty
	}
	return Available
}

func (s *Store) Get(ctx context.Context, id int) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &user, nil
}

func (s *Store) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_time DESC, id DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("accounts: listing users: %w", err)
	}
	return users, nil
}

func notFound(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("accounts: loading %s %v: %w", resource, id, err)
}
