package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "microblog"

// Signer wraps a session token in a signed bearer token for API clients. The
// session itself stays server-side; clearing it revokes the bearer token too.
type Signer struct {
	key    []byte
	maxAge time.Duration
}

func NewSigner(key string, maxAge time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("session: signing key is empty")
	}
	return &Signer{key: []byte(key), maxAge: maxAge}, nil
}

func (s *Signer) Sign(token string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   token,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("session: signing bearer token: %w", err)
	}
	return signed, nil
}

// Parse verifies a bearer token and returns the session token it carries.
func (s *Signer) Parse(bearer string) (string, error) {
	if bearer == "" {
		return "", errors.New("session: bearer token is empty")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("session: parsing bearer token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("session: bearer token has no subject")
	}
	return claims.Subject, nil
}
