package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"NotFound wraps ErrNotFound", NotFound("blog", 7), ErrNotFound, true},
		{"ValidationFailed wraps ErrValidation", ValidationFailed("username", "too short"), ErrValidation, true},
		{"AuthFailed wraps ErrAuth", AuthFailed(), ErrAuth, true},
		{"AuthRequired wraps ErrAuthRequired", AuthRequired(), ErrAuthRequired, true},
		{"Forbidden wraps ErrForbidden", Forbidden("admin only"), ErrForbidden, true},
		{"NotFound does not match ErrValidation", NotFound("blog", 7), ErrValidation, false},
		{"AuthFailed does not match ErrAuthRequired", AuthFailed(), ErrAuthRequired, false},
		{"wrapped NotFound still matches", fmt.Errorf("content: %w", NotFound("comment", 3)), ErrNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMatch, errors.Is(tt.err, tt.target))
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("accounts: %w", ValidationFailed("password", "password too short"))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "password", appErr.Field)
	assert.Equal(t, "password too short", appErr.Message)
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "user not found with id 42", NotFound("user", 42).Error())
}

func TestKind(t *testing.T) {
	assert.Equal(t, ErrForbidden, Kind(fmt.Errorf("x: %w", Forbidden("no"))))
	assert.Equal(t, ErrAuth, Kind(AuthFailed()))
	assert.Nil(t, Kind(errors.New("disk on fire")))
}
