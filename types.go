package s2s

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is satisfied by glog loggers, args are key/value pairs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// PasswordHasher hashes and verifies user passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenCodec signs and verifies the four token kinds.
type TokenCodec interface {
	Generate(kind TokenKind, payload TokenPayload) (string, error)
	GeneratePair(payload TokenPayload) (TokenPair, error)
	// Validate returns nil for any invalid token
	Validate(kind TokenKind, token string) *Claims
}

// TokenStore keeps the single live token per kind for each user.
type TokenStore interface {
	SaveToken(ctx context.Context, userID string, value string, kind TokenKind) (*TokenRecord, error)
	FindToken(ctx context.Context, query TokenQuery) (*TokenRecord, error)
	FindTokensWithUsers(ctx context.Context, query TokenQuery) ([]*TokenRecord, error)
	RemoveRefreshToken(ctx context.Context, value string) error
	RemoveResetToken(ctx context.Context, userID string) error
	RemoveConfirmToken(ctx context.Context, userID string) error
}

// EmailDispatcher sends transactional email. Rendering and delivery belong
// to the implementation.
type EmailDispatcher interface {
	SendEmail(ctx context.Context, to string, subject EmailSubject, language string, data map[string]any) error
}

// IDTokenVerifier checks third party identity tokens, e.g. google sign in.
type IDTokenVerifier interface {
	Verify(ctx context.Context, credential string) (*ExternalIdentity, error)
}

// ExternalIdentity is what we keep from a verified third party token
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
}

// RateLimiter counts hits per key inside a window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds the auth options the services need
type Config interface {
	GetIssuer() string
	GetTokenSecret(kind TokenKind) string
	GetTokenTTL(kind TokenKind) time.Duration
	GetClientURL() string
	GetCookieDomain() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Print("[ERR] S2S " + line(format, args))
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Print("[WRN] S2S " + line(format, args))
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Print("[INF] S2S " + line(format, args))
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Print("[DBG] S2S " + line(format, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteString("\n")
	return b.String()
}

func defaultLogger() Logger {
	return defLogger{}
}
