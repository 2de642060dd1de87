package s2s

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeAlreadyRegistered    = "ALREADY_REGISTERED"
	TextCodeIncorrectCredentials = "INCORRECT_CREDENTIALS"
	TextCodeUnauthorized         = "UNAUTHORIZED"
	TextCodeBadConfirmToken      = "BAD_CONFIRM_TOKEN"
	TextCodeBadResetToken        = "BAD_RESET_TOKEN"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeDocumentNotFound     = "DOCUMENT_NOT_FOUND"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeValidation           = "VALIDATION_ERROR"
	TextCodeInvalidLanguage      = "INVALID_LANGUAGE"
	TextCodeIDTokenNotRetrieved  = "ID_TOKEN_NOT_RETRIEVED"
	TextCodeBadIDToken           = "BAD_ID_TOKEN"
	TextCodeTooManyRequests      = "TOO_MANY_REQUESTS"
	TextCodeBadRequest           = "BAD_REQUEST"
	TextCodeInternal             = "INTERNAL_SERVER_ERROR"
)

// ErrDuplicateEmail is returned when signing up with an email that is already taken.
var ErrDuplicateEmail = errors.New("User with the specified email already exists.", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyRegistered).
	WithCode(errors.CodeConflict)

// ErrInvalidCredentials is returned by login for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = errors.New("The password or email you entered is incorrect.", errors.CategoryAuth).
	WithTextCode(TextCodeIncorrectCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthorized is returned for missing, invalid, revoked or reused refresh tokens.
var ErrUnauthorized = errors.New("The requested URL requires user authorization.", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrBadConfirmToken is returned when an email confirmation token can not be used.
var ErrBadConfirmToken = errors.New("The confirm token is invalid.", errors.CategoryBadInput).
	WithTextCode(TextCodeBadConfirmToken).
	WithCode(errors.CodeBadRequest)

// ErrBadResetToken is returned when a password reset token can not be used.
var ErrBadResetToken = errors.New("The reset token is invalid.", errors.CategoryBadInput).
	WithTextCode(TextCodeBadResetToken).
	WithCode(errors.CodeBadRequest)

// ErrForbidden is returned when the caller roles do not allow the action.
var ErrForbidden = errors.New("You do not have permission to perform this action.", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrNotFound is the generic missing record error.
var ErrNotFound = errors.New("The requested document was not found.", errors.CategoryNotFound).
	WithTextCode(TextCodeDocumentNotFound).
	WithCode(errors.CodeNotFound)

// ErrUserNotFound is returned by the user directory for unknown ids.
var ErrUserNotFound = errors.New("User with the specified ID was not found.", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

var ErrValidation = errors.New("The request payload is invalid.", errors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(http.StatusUnprocessableEntity)

var ErrInvalidLanguage = errors.New("Invalid language.", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidLanguage).
	WithCode(errors.CodeBadRequest)

var ErrIDTokenNotRetrieved = errors.New("ID token was not retrieved.", errors.CategoryBadInput).
	WithTextCode(TextCodeIDTokenNotRetrieved).
	WithCode(errors.CodeBadRequest)

var ErrBadIDToken = errors.New("Invalid ID token.", errors.CategoryAuth).
	WithTextCode(TextCodeBadIDToken).
	WithCode(errors.CodeUnauthorized)

var ErrTooManyRequests = errors.New("Too many requests, try again later.", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests).
	WithCode(http.StatusTooManyRequests)

// ErrInternal is the generic answer for anything we did not anticipate.
var ErrInternal = errors.New("An unexpected server error occurred.", errors.CategoryInternal).
	WithTextCode(TextCodeInternal).
	WithCode(errors.CodeInternal)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeIncorrectCredentials).
	WithCode(errors.CodeUnauthorized)

// IsUniqueViolation reports whether err comes from a unique constraint in
// either sqlite or postgres.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if repository.IsDuplicatedKey(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505")
}

// AsRichError returns err as a rich error, wrapping unknown errors as internal.
func AsRichError(err error) *errors.Error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	return errors.Wrap(err, errors.CategoryInternal, ErrInternal.Message).
		WithTextCode(TextCodeInternal).
		WithCode(errors.CodeInternal)
}

// StatusCode resolves the HTTP status for a rich error, falling back to
// its category when no code was set.
func StatusCode(richErr *errors.Error) int {
	if richErr == nil {
		return http.StatusOK
	}
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryBadInput:
		return errors.CodeBadRequest
	case errors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case errors.CategoryConflict:
		return errors.CodeConflict
	case errors.CategoryNotFound:
		return errors.CodeNotFound
	case errors.CategoryAuth:
		return errors.CodeUnauthorized
	case errors.CategoryAuthz:
		return errors.CodeForbidden
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return errors.CodeInternal
	}
}
