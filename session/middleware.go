package session

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"microblog/models"
)

const (
	cookieTokenKey = "token"
	ctxTokenKey    = "session_token"
	ctxUserKey     = "current_user"
)

// Middleware resolves the request's session token, taken from a bearer token
// or from the session cookie, and stores the current user (if any) in the gin
// context. It never rejects a request; access checks happen in the core.
func Middleware(m *Manager, signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c, signer, m.l)
		user, err := m.Resolve(c.Request.Context(), token)
		if err != nil {
			m.l.Error("resolving session", zap.Error(err))
		}

		c.Set(ctxTokenKey, token)
		if user != nil {
			c.Set(ctxUserKey, user)
		}
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context, signer *Signer, l *zap.Logger) string {
	if auth := c.GetHeader("Authorization"); auth != "" && signer != nil {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token, err := signer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				l.Debug("rejected bearer token", zap.Error(err))
				return ""
			}
			return token
		}
	}

	if token, ok := sessions.Default(c).Get(cookieTokenKey).(string); ok {
		return token
	}
	return ""
}

// CurrentUser returns the user resolved by Middleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ctxUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func Token(c *gin.Context) string {
	return c.GetString(ctxTokenKey)
}

// Login binds a fresh token to userID and stores it in the session cookie.
// Any previous session of this client is dropped first.
func Login(c *gin.Context, m *Manager, userID int) (string, error) {
	ctx := c.Request.Context()
	if err := m.Clear(ctx, Token(c)); err != nil {
		return "", err
	}

	token := NewToken()
	if err := m.Establish(ctx, token, userID); err != nil {
		return "", err
	}

	s := sessions.Default(c)
	s.Set(cookieTokenKey, token)
	if err := s.Save(); err != nil {
		return "", err
	}
	c.Set(ctxTokenKey, token)
	return token, nil
}

func Logout(c *gin.Context, m *Manager) error {
	if err := m.Clear(c.Request.Context(), Token(c)); err != nil {
		return err
	}
	s := sessions.Default(c)
	s.Clear()
	return s.Save()
}
