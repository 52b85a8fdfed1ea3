// Package session resolves opaque session tokens to the users they belong to.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"microblog/apperror"
	"microblog/models"
)

// UserLookup loads a user by id, returning an apperror.ErrNotFound error for
// missing users.
type UserLookup interface {
	Get(ctx context.Context, id int) (*models.User, error)
}

type Manager struct {
	store Store
	users UserLookup
	l     *zap.Logger
}

func NewManager(store Store, users UserLookup, l *zap.Logger) *Manager {
	return &Manager{store: store, users: users, l: l}
}

func NewToken() string {
	return uuid.NewString()
}

// Resolve returns the user bound to token, or nil when the token is empty,
// unknown, expired or bound to a user that no longer exists.
func (m *Manager) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	userID, ok, err := m.store.Get(ctx, token)
	if err != nil || !ok {
		return nil, err
	}

	user, err := m.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			m.l.Debug("clearing session of deleted user", zap.Int("user_id", userID))
			return nil, m.store.Delete(ctx, token)
		}
		return nil, err
	}
	return user, nil
}

func (m *Manager) Establish(ctx context.Context, token string, userID int) error {
	return m.store.Set(ctx, token, userID)
}

func (m *Manager) Clear(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}
