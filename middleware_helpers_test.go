package s2s_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-s2s"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func passErr(_ router.Context, err error) error { return err }

func authCtx(authorization string) *router.MockContext {
	ctx := router.NewMockContext()
	if authorization != "" {
		ctx.HeadersM["Authorization"] = authorization
	}
	ctx.On("Header", "Authorization").Return(authorization).Maybe()
	ctx.On("Cookies", mock.Anything).Return("").Maybe()
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	return ctx
}

func accessToken(t *testing.T, tokens *s2s.TokenService, roles ...s2s.Role) string {
	t.Helper()
	token, err := tokens.Generate(s2s.TokenAccess, s2s.TokenPayload{
		UserID: "user-1",
		Roles:  s2s.NewRoles(roles...),
	})
	require.NoError(t, err)
	return token
}

func TestProtectedRouteAcceptsAccessToken(t *testing.T) {
	tokens := newTestTokenService()
	mw := s2s.ProtectedRoute(tokens, passErr)

	called := false
	handler := mw(func(c router.Context) error {
		called = true
		return nil
	})

	ctx := authCtx("Bearer " + accessToken(t, tokens, s2s.RoleStudent))
	require.NoError(t, handler(ctx))
	assert.True(t, called)
	ctx.AssertCalled(t, "Locals", s2s.ClaimsLocalsKey, mock.AnythingOfType("*s2s.Claims"))
}

func TestProtectedRouteRejectsOtherTokenKinds(t *testing.T) {
	tokens := newTestTokenService()
	mw := s2s.ProtectedRoute(tokens, passErr)
	handler := mw(func(c router.Context) error {
		t.Fatal("handler must not run")
		return nil
	})

	refresh, err := tokens.Generate(s2s.TokenRefresh, s2s.TokenPayload{UserID: "user-1"})
	require.NoError(t, err)

	assert.ErrorIs(t, handler(authCtx("Bearer "+refresh)), s2s.ErrUnauthorized)
	assert.ErrorIs(t, handler(authCtx("")), s2s.ErrUnauthorized)
}

func TestProtectedRouteRoles(t *testing.T) {
	tokens := newTestTokenService()
	mw := s2s.ProtectedRoute(tokens, passErr, s2s.RoleAdmin)
	handler := mw(func(c router.Context) error { return nil })

	err := handler(authCtx("Bearer " + accessToken(t, tokens, s2s.RoleStudent)))
	assert.ErrorIs(t, err, s2s.ErrForbidden)

	require.NoError(t, handler(authCtx("Bearer "+accessToken(t, tokens, s2s.RoleAdmin))))
}

func langCtx(header string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.HeadersM["Accept-Language"] = header
	ctx.On("Header", "Accept-Language").Return(header).Maybe()
	ctx.On("Locals", s2s.LanguageLocalsKey, mock.Anything).Return(nil).Maybe()
	return ctx
}

func TestLanguageMiddleware(t *testing.T) {
	mw := s2s.LanguageMiddleware(s2s.NewLanguageResolver(), passErr)
	handler := mw(func(c router.Context) error { return nil })

	ctx := langCtx("uk-UA,uk;q=0.9")
	require.NoError(t, handler(ctx))
	ctx.AssertCalled(t, "Locals", s2s.LanguageLocalsKey, s2s.LanguageUA)

	ctx = langCtx("")
	require.NoError(t, handler(ctx))
	ctx.AssertCalled(t, "Locals", s2s.LanguageLocalsKey, s2s.LanguageEN)
}

func TestLanguageMiddlewareRejectsUnsupported(t *testing.T) {
	mw := s2s.LanguageMiddleware(nil, passErr)
	handler := mw(func(c router.Context) error {
		t.Fatal("handler must not run")
		return nil
	})

	ctx := langCtx("fr")
	assert.ErrorIs(t, handler(ctx), s2s.ErrInvalidLanguage)
	ctx.AssertNotCalled(t, "Locals", s2s.LanguageLocalsKey, mock.Anything)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func limitCtx() *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("IP").Return("10.0.0.1").Maybe()
	ctx.On("Path").Return("/auth/login").Maybe()
	ctx.On("Context").Return(context.Background()).Maybe()
	return ctx
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	calls := 0
	next := func(c router.Context) error {
		calls++
		return nil
	}

	byIP := func(c router.Context) string { return "login:" + c.IP() }

	handler := s2s.RateLimitMiddleware(limiter, byIP, passErr, nil)(next)
	require.NoError(t, handler(limitCtx()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"login:10.0.0.1"}, limiter.keys)

	limiter.allow = false
	assert.ErrorIs(t, handler(limitCtx()), s2s.ErrTooManyRequests)
	assert.Equal(t, 1, calls)
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	calls := 0
	next := func(c router.Context) error {
		calls++
		return nil
	}

	broken := &fakeLimiter{err: errors.New("redis down")}
	require.NoError(t, s2s.RateLimitMiddleware(broken, nil, passErr, nil)(next)(limitCtx()))

	require.NoError(t, s2s.RateLimitMiddleware(nil, nil, passErr, nil)(next)(limitCtx()))
	assert.Equal(t, 2, calls)
}

func TestRateLimitMiddlewareCustomKey(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	key := func(router.Context) string { return "fixed" }

	handler := s2s.RateLimitMiddleware(limiter, key, passErr, nil)(func(router.Context) error { return nil })
	require.NoError(t, handler(limitCtx()))
	assert.Equal(t, []string{"fixed"}, limiter.keys)
}
