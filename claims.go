package s2s

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPayload is what we mint into every token
type TokenPayload struct {
	UserID       string
	Roles        Roles
	IsFirstLogin bool
}

// TokenPair is the result of login and refresh
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims is the JWT body for all token kinds
type Claims struct {
	jwt.RegisteredClaims
	UID          string    `json:"id"`
	Kind         TokenKind `json:"kind"`
	UserRoles    Roles     `json:"role,omitempty"`
	IsFirstLogin bool      `json:"isFirstLogin,omitempty"`
}

// Subject returns the subject claim
func (c *Claims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *Claims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

func (c *Claims) Roles() []string {
	return c.UserRoles.Strings()
}

// HasRole checks if the user has a specific role
func (c *Claims) HasRole(role string) bool {
	return c.UserRoles.Has(Role(role))
}

// Expires returns the expiration time
func (c *Claims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued at time
func (c *Claims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
