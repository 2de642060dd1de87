package jwtware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-s2s/middleware/jwtware"
)

type testClaims struct {
	sub   string
	roles []string
}

func (c testClaims) Subject() string { return c.sub }
func (c testClaims) UserID() string  { return c.sub }
func (c testClaims) Roles() []string { return c.roles }

func (c testClaims) HasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

var errBadToken = errors.New("token is invalid")

func stubValidator(valid map[string]testClaims) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
		claims, ok := valid[token]
		if !ok {
			return nil, errBadToken
		}
		return claims, nil
	})
}

func passErr(c router.Context, err error) error {
	return err
}

// newCtx builds a mock request carrying the given Authorization header
func newCtx(authorization string) *router.MockContext {
	ctx := router.NewMockContext()
	if authorization != "" {
		ctx.HeadersM["Authorization"] = authorization
	}
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	ctx.On("Header", "Authorization").Return(authorization).Maybe()
	ctx.On("Cookies", mock.Anything).Return("").Maybe()
	return ctx
}

func TestJWTWare_HeaderToken(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(map[string]testClaims{
			"good": {sub: "user-1", roles: []string{"student"}},
		}),
		ErrorHandler: passErr,
	})

	called := false
	handler := mw(func(c router.Context) error {
		called = true
		return nil
	})

	ctx := newCtx("Bearer good")

	require.NoError(t, handler(ctx))
	require.True(t, called)
}

func TestJWTWare_MissingToken(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(nil),
		ErrorHandler:   passErr,
	})

	handler := mw(func(c router.Context) error {
		t.Fatal("handler must not run")
		return nil
	})

	err := handler(newCtx(""))
	require.ErrorIs(t, err, jwtware.ErrJWTMissingOrMalformed)
}

func TestJWTWare_InvalidToken(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(map[string]testClaims{}),
		ErrorHandler:   passErr,
	})

	handler := mw(func(c router.Context) error {
		t.Fatal("handler must not run")
		return nil
	})

	ctx := newCtx("Bearer forged")

	require.ErrorIs(t, handler(ctx), errBadToken)
}

func TestJWTWare_WrongScheme(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(map[string]testClaims{"good": {sub: "u"}}),
		ErrorHandler:   passErr,
	})

	handler := mw(func(c router.Context) error { return nil })

	ctx := newCtx("Basic good")

	require.ErrorIs(t, handler(ctx), jwtware.ErrJWTMissingOrMalformed)
}

func TestJWTWare_AnyRole(t *testing.T) {
	validator := stubValidator(map[string]testClaims{
		"student": {sub: "s", roles: []string{"student"}},
		"admin":   {sub: "a", roles: []string{"student", "admin"}},
	})

	mw := jwtware.New(jwtware.Config{
		TokenValidator: validator,
		ErrorHandler:   passErr,
		AnyRole:        []string{"admin"},
	})
	handler := mw(func(c router.Context) error { return nil })

	ctx := newCtx("Bearer student")
	require.ErrorIs(t, handler(ctx), jwtware.ErrRoleDenied)

	ctx = newCtx("Bearer admin")
	require.NoError(t, handler(ctx))
}

func TestJWTWare_RoleChecker(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(map[string]testClaims{"t": {sub: "t"}}),
		ErrorHandler:   passErr,
		AnyRole:        []string{"tutor"},
		RoleChecker: func(c jwtware.AuthClaims, roles []string) bool {
			return c.Subject() == "t"
		},
	})
	handler := mw(func(c router.Context) error { return nil })

	ctx := newCtx("Bearer t")
	require.NoError(t, handler(ctx))
}

func TestJWTWare_ValidationListenerCanReject(t *testing.T) {
	blocked := errors.New("blocked")
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(map[string]testClaims{"good": {sub: "u"}}),
		ErrorHandler:   passErr,
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(ctx router.Context, claims jwtware.AuthClaims) error {
				return blocked
			},
		},
	})
	handler := mw(func(c router.Context) error { return nil })

	ctx := newCtx("Bearer good")
	require.ErrorIs(t, handler(ctx), blocked)
}

type ctxKey struct{}

func TestJWTWare_ContextEnricher(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(map[string]testClaims{"good": {sub: "user-9"}}),
		ErrorHandler:   passErr,
		ContextEnricher: func(c context.Context, claims jwtware.AuthClaims) context.Context {
			return context.WithValue(c, ctxKey{}, claims.UserID())
		},
	})
	handler := mw(func(c router.Context) error { return nil })

	ctx := newCtx("Bearer good")
	ctx.On("Context").Return(context.Background())

	var enriched context.Context
	ctx.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
		enriched = args.Get(0).(context.Context)
	}).Return().Maybe()

	require.NoError(t, handler(ctx))
	if enriched != nil {
		require.Equal(t, "user-9", enriched.Value(ctxKey{}))
	}
}

func TestJWTWare_Filter(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: stubValidator(nil),
		ErrorHandler:   passErr,
		Filter: func(c router.Context) bool {
			return true
		},
	})

	called := false
	handler := mw(func(c router.Context) error {
		called = true
		return nil
	})

	require.NoError(t, handler(newCtx("")))
	require.True(t, called)
}

func TestJWTWare_CookieAndQueryExtractors(t *testing.T) {
	validator := stubValidator(map[string]testClaims{"good": {sub: "u"}})

	t.Run("cookie", func(t *testing.T) {
		mw := jwtware.New(jwtware.Config{
			TokenValidator: validator,
			ErrorHandler:   passErr,
			TokenLookup:    "header:Authorization,cookie:ACCESS_TOKEN",
		})
		handler := mw(func(c router.Context) error { return nil })

		ctx := router.NewMockContext()
		ctx.CookiesM["ACCESS_TOKEN"] = "good"
		ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
		ctx.On("Header", mock.Anything).Return("").Maybe()
		ctx.On("Cookies", "ACCESS_TOKEN").Return("good").Maybe()

		require.NoError(t, handler(ctx))
	})

	t.Run("query", func(t *testing.T) {
		mw := jwtware.New(jwtware.Config{
			TokenValidator: validator,
			ErrorHandler:   passErr,
			TokenLookup:    "query:token",
		})
		handler := mw(func(c router.Context) error { return nil })

		ctx := router.NewMockContext()
		ctx.QueriesM["token"] = "good"
		ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
		ctx.On("Query", "token", "").Return("good").Maybe()

		require.NoError(t, handler(ctx))
	})
}

func TestGetExtractors(t *testing.T) {
	require.Len(t, jwtware.GetExtractors("header:Authorization,cookie:ACCESS_TOKEN,query:t,param:p"), 4)
	require.Len(t, jwtware.GetExtractors("bogus,header:Authorization"), 1)
	require.Empty(t, jwtware.GetExtractors(""))
}

func TestGetDefaultConfigRequiresValidator(t *testing.T) {
	require.Panics(t, func() {
		jwtware.GetDefaultConfig(jwtware.Config{})
	})

	cfg := jwtware.GetDefaultConfig(jwtware.Config{TokenValidator: stubValidator(nil)})
	require.Equal(t, "user", cfg.ContextKey)
	require.Equal(t, "Bearer", cfg.AuthScheme)
	require.NotNil(t, cfg.ErrorHandler)
}
