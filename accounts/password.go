package accounts

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// TooShort is stored in place of a hash when the raw password has fewer than
// MinPasswordLength characters. Registration rejects it and no scheme ever
// verifies a password against it.
const TooShort = "too-short!"

const MinPasswordLength = 3

// Hasher turns raw passwords into stored credentials and checks them.
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(raw, stored string) bool
}

// NewHasher returns the hasher for a configured scheme name.
func NewHasher(scheme string) (Hasher, error) {
	switch scheme {
	case "", "bcrypt":
		return NewBcryptHasher(bcrypt.DefaultCost), nil
	case "argon2id":
		return NewArgon2Hasher(), nil
	case "sha1":
		return SHA1Hasher{}, nil
	}
	return nil, fmt.Errorf("unknown password scheme %q", scheme)
}

func tooShort(raw string) bool {
	return utf8.RuneCountInString(raw) < MinPasswordLength
}

// SHA1Hasher is the legacy deterministic, unsalted scheme. Databases created
// with it keep working when PASSWORD_SCHEME=sha1.
type SHA1Hasher struct{}

func (SHA1Hasher) Hash(raw string) (string, error) {
	if tooShort(raw) {
		return TooShort, nil
	}
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA1Hasher) Verify(raw, stored string) bool {
	if stored == TooShort {
		return false
	}
	hashed, _ := h.Hash(raw)
	return subtle.ConstantTimeCompare([]byte(hashed), []byte(stored)) == 1
}

// bcrypt reads at most 72 bytes of input.
const bcryptMaxInput = 72

type BcryptHasher struct {
	cost int
}

// bcryptInput folds passwords longer than bcrypt's input limit into a fixed
// length digest so every byte of them counts.
func bcryptInput(raw string) []byte {
	if len(raw) <= bcryptMaxInput {
		return []byte(raw)
	}
	sum := sha256.Sum256([]byte(raw))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	if tooShort(raw) {
		return TooShort, nil
	}
	hashed, err := bcrypt.GenerateFromPassword(bcryptInput(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("accounts: hashing password: %w", err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(raw, stored string) bool {
	if stored == TooShort || tooShort(raw) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), bcryptInput(raw)) == nil
}

type Argon2Hasher struct {
	params *argon2id.Params
}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{params: argon2id.DefaultParams}
}

func (h *Argon2Hasher) Hash(raw string) (string, error) {
	if tooShort(raw) {
		return TooShort, nil
	}
	hashed, err := argon2id.CreateHash(raw, h.params)
	if err != nil {
		return "", fmt.Errorf("accounts: hashing password: %w", err)
	}
	return hashed, nil
}

func (h *Argon2Hasher) Verify(raw, stored string) bool {
	if stored == TooShort || tooShort(raw) {
		return false
	}
	match, _, err := argon2id.CheckHash(raw, stored)
	return err == nil && match
}
