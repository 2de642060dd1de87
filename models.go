package s2s

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the marketplace account
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk" json:"_id"`
	Roles            Roles      `bun:"roles,notnull" json:"role"`
	FirstName        string     `bun:"first_name,notnull" json:"firstName"`
	LastName         string     `bun:"last_name,notnull" json:"lastName"`
	Email            string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash     string     `bun:"password_hash" json:"-"`
	NativeLanguage   string     `bun:"native_language" json:"nativeLanguage,omitempty"`
	AppLanguage      string     `bun:"app_language" json:"appLanguage,omitempty"`
	IsEmailConfirmed bool       `bun:"is_email_confirmed,notnull" json:"isEmailConfirmed"`
	IsFirstLogin     bool       `bun:"is_first_login,notnull" json:"isFirstLogin"`
	Status           UserStatus `bun:"status,notnull" json:"status"`
	Photo            *string    `bun:"photo" json:"photo"`
	LastLoginAs      Role       `bun:"last_login_as" json:"lastLoginAs,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// TokenPayload builds the claims payload for this user
func (u *User) TokenPayload() TokenPayload {
	return TokenPayload{
		UserID:       u.ID.String(),
		Roles:        u.Roles,
		IsFirstLogin: u.IsFirstLogin,
	}
}

// TokenKind names one of the four token kinds
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
	TokenConfirm TokenKind = "confirm"
	TokenReset   TokenKind = "reset"
)

// Column returns the token store column for kind, access tokens are never stored
func (k TokenKind) Column() string {
	switch k {
	case TokenRefresh:
		return "refresh_token"
	case TokenConfirm:
		return "confirm_token"
	case TokenReset:
		return "reset_token"
	default:
		return ""
	}
}

// TokenRecord holds the live refresh/confirm/reset token of one user
type TokenRecord struct {
	bun.BaseModel `bun:"table:tokens,alias:tkn"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,unique" json:"user"`
	User          *User     `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	ConfirmToken  string    `bun:"confirm_token,nullzero" json:"confirmToken,omitempty"`
	ResetToken    string    `bun:"reset_token,nullzero" json:"resetToken,omitempty"`
	RefreshToken  string    `bun:"refresh_token,nullzero" json:"refreshToken,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Token returns the stored value for kind
func (t *TokenRecord) Token(kind TokenKind) string {
	if t == nil {
		return ""
	}
	switch kind {
	case TokenRefresh:
		return t.RefreshToken
	case TokenConfirm:
		return t.ConfirmToken
	case TokenReset:
		return t.ResetToken
	default:
		return ""
	}
}

func (t *TokenRecord) setToken(kind TokenKind, value string) {
	switch kind {
	case TokenRefresh:
		t.RefreshToken = value
	case TokenConfirm:
		t.ConfirmToken = value
	case TokenReset:
		t.ResetToken = value
	}
}

// TokenQuery matches token records, empty fields are ignored
type TokenQuery struct {
	UserID       string
	ConfirmToken string
	ResetToken   string
	RefreshToken string
}

func (q TokenQuery) IsZero() bool {
	return q.UserID == "" && q.ConfirmToken == "" && q.ResetToken == "" && q.RefreshToken == ""
}

// AdminInvitation is an invitation sent to a future admin
type AdminInvitation struct {
	bun.BaseModel    `bun:"table:admin_invitations,alias:adm"`
	ID               uuid.UUID `bun:"id,pk" json:"_id"`
	Email            string    `bun:"email,notnull,unique" json:"email"`
	DateOfInvitation time.Time `bun:"date_of_invitation,notnull" json:"dateOfInvitation"`
}

// NormalizeEmail is applied to every email before it hits storage
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
