package s2s_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-s2s"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsRichError(t *testing.T) {
	assert.Nil(t, s2s.AsRichError(nil))

	rich := s2s.AsRichError(s2s.ErrDuplicateEmail)
	assert.Same(t, s2s.ErrDuplicateEmail, rich)

	wrapped := fmt.Errorf("signup: %w", s2s.ErrDuplicateEmail)
	assert.Same(t, s2s.ErrDuplicateEmail, s2s.AsRichError(wrapped))

	plain := s2s.AsRichError(errors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, goerrors.CategoryInternal, plain.Category)
	assert.Equal(t, s2s.TextCodeInternal, plain.TextCode)
	assert.Equal(t, s2s.ErrInternal.Message, plain.Message)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *goerrors.Error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"explicit code", s2s.ErrForbidden, http.StatusForbidden},
		{"bad input", goerrors.New("x", goerrors.CategoryBadInput), http.StatusBadRequest},
		{"conflict", goerrors.New("x", goerrors.CategoryConflict), http.StatusConflict},
		{"not found", goerrors.New("x", goerrors.CategoryNotFound), http.StatusNotFound},
		{"auth", goerrors.New("x", goerrors.CategoryAuth), http.StatusUnauthorized},
		{"authz", goerrors.New("x", goerrors.CategoryAuthz), http.StatusForbidden},
		{"rate limit", goerrors.New("x", goerrors.CategoryRateLimit), http.StatusTooManyRequests},
		{"internal", goerrors.New("x", goerrors.CategoryInternal), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s2s.StatusCode(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), true},
		{"postgres", errors.New(`ERROR: duplicate key value violates unique constraint "users_email_key"`), true},
		{"sqlstate", errors.New("pgx: SQLSTATE 23505"), true},
		{"mapped duplicate", goerrors.New("duplicate", repository.CategoryDatabaseDuplicate), true},
		{"other", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s2s.IsUniqueViolation(tt.err))
		})
	}
}

func TestErrorsCarryTextCodes(t *testing.T) {
	assert.Equal(t, s2s.TextCodeAlreadyRegistered, s2s.ErrDuplicateEmail.TextCode)
	assert.Equal(t, s2s.TextCodeIncorrectCredentials, s2s.ErrInvalidCredentials.TextCode)
	assert.Equal(t, s2s.TextCodeBadConfirmToken, s2s.ErrBadConfirmToken.TextCode)
	assert.Equal(t, s2s.TextCodeBadResetToken, s2s.ErrBadResetToken.TextCode)
	assert.Equal(t, s2s.TextCodeUserNotFound, s2s.ErrUserNotFound.TextCode)
}
