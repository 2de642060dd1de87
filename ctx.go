package s2s

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var langCtxKey = &contextKey{"lang"}

type contextKey struct {
	name string
}

const (
	// ClaimsLocalsKey is where the auth middleware stores the access claims
	ClaimsLocalsKey = "user"
	// LanguageLocalsKey is where the language middleware stores the request language
	LanguageLocalsKey = "lang"
)

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the access claims in the given context
func WithClaimsContext(r context.Context, claims *Claims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the access claims from the standard context
func GetClaims(ctx context.Context) (*Claims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*Claims)
	return raw, ok && raw != nil
}

// GetRouterClaims extracts the access claims from the router context
func GetRouterClaims(ctx router.Context, key string) (*Claims, bool) {
	if key == "" {
		key = ClaimsLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(*Claims)
	return claims, ok && claims != nil
}

func WithLanguage(r context.Context, lang string) context.Context {
	return context.WithValue(r, langCtxKey, lang)
}

// LanguageFromContext returns the negotiated language or LanguageEN
func LanguageFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langCtxKey).(string); ok && lang != "" {
		return lang
	}
	return LanguageEN
}

// RequestLanguage reads the language stored by LanguageMiddleware
func RequestLanguage(ctx router.Context) string {
	if lang, ok := ctx.Locals(LanguageLocalsKey).(string); ok && lang != "" {
		return lang
	}
	return LanguageEN
}

// ActorFromClaims builds the activity actor for an authenticated request
func ActorFromClaims(claims *Claims) ActorRef {
	if claims == nil {
		return ActorRef{Type: "anonymous"}
	}
	actorType := "user"
	if claims.UserRoles.Has(RoleAdmin) {
		actorType = string(RoleAdmin)
	}
	return ActorRef{ID: claims.UserID(), Type: actorType}
}
