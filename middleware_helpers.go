package s2s

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-s2s/middleware/jwtware"
)

// DefaultTokenLookup accepts a bearer header or the access cookie
var DefaultTokenLookup = "header:" + router.HeaderAuthorization + ",cookie:" + AccessTokenCookie

// ValidationListener aliases the jwtware listener so consumers can use helpers directly.
type ValidationListener = jwtware.ValidationListener

// AccessTokenValidator adapts the codec to jwtware, only access tokens pass
func AccessTokenValidator(codec TokenCodec) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
		claims := codec.Validate(TokenAccess, token)
		if claims == nil {
			return nil, ErrUnauthorized
		}
		return claims, nil
	})
}

// ContextEnricherAdapter stores the access claims in the standard context
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(*Claims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// ProtectedRoute requires a valid access token, and one of roles when given.
// Failures go through errHandler as ErrUnauthorized or ErrForbidden.
func ProtectedRoute(codec TokenCodec, errHandler router.ErrorHandler, roles ...Role) router.MiddlewareFunc {
	if errHandler == nil {
		errHandler = ErrorHandler(nil)
	}

	anyRole := make([]string, 0, len(roles))
	for _, r := range roles {
		anyRole = append(anyRole, string(r))
	}

	return jwtware.New(jwtware.Config{
		TokenValidator:  AccessTokenValidator(codec),
		TokenLookup:     DefaultTokenLookup,
		ContextKey:      ClaimsLocalsKey,
		AnyRole:         anyRole,
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c router.Context, err error) error {
			if errors.Is(err, jwtware.ErrRoleDenied) {
				return errHandler(c, ErrForbidden)
			}
			return errHandler(c, ErrUnauthorized)
		},
	})
}

// LanguageMiddleware negotiates Accept-Language and stores the result under
// LanguageLocalsKey. Unsupported languages are rejected with ErrInvalidLanguage.
func LanguageMiddleware(resolver *LanguageResolver, errHandler router.ErrorHandler) router.MiddlewareFunc {
	if resolver == nil {
		resolver = NewLanguageResolver()
	}
	if errHandler == nil {
		errHandler = ErrorHandler(nil)
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			lang, err := resolver.Resolve(c.Header("Accept-Language"))
			if err != nil {
				return errHandler(c, err)
			}
			c.Locals(LanguageLocalsKey, lang)
			return next(c)
		}
	}
}

// RateLimitKeyFunc picks the bucket a request counts against
type RateLimitKeyFunc func(c router.Context) string

// ClientIPKey buckets requests by route and client address
func ClientIPKey(c router.Context) string {
	ip := strings.TrimSpace(c.IP())
	if ip == "" {
		ip = "unknown"
	}
	return c.Path() + ":" + ip
}

// RateLimitMiddleware rejects requests once the limiter says so. Limiter
// failures let the request through, they are only logged.
func RateLimitMiddleware(limiter RateLimiter, keyFn RateLimitKeyFunc, errHandler router.ErrorHandler, logger Logger) router.MiddlewareFunc {
	if keyFn == nil {
		keyFn = ClientIPKey
	}
	if errHandler == nil {
		errHandler = ErrorHandler(logger)
	}
	if logger == nil {
		logger = defaultLogger()
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if limiter == nil {
				return next(c)
			}

			key := keyFn(c)
			allowed, err := limiter.Allow(c.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", "key", key, "error", err)
				return next(c)
			}

			if !allowed {
				logger.Info("rate limit exceeded", "key", key)
				return errHandler(c, ErrTooManyRequests)
			}

			return next(c)
		}
	}
}
