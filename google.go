package s2s

import (
	"context"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type googleClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// GoogleVerifier checks google sign in ID tokens against the google JWKS
type GoogleVerifier struct {
	clientID string
	keyFunc  jwt.Keyfunc
	logger   Logger
	now      func() time.Time
}

var _ IDTokenVerifier = (*GoogleVerifier)(nil)

// NewGoogleVerifier fetches the JWKS and keeps it refreshed in the background
func NewGoogleVerifier(clientID string, logger Logger) (*GoogleVerifier, error) {
	if logger == nil {
		logger = defaultLogger()
	}

	jwks, err := keyfunc.Get(GoogleJWKSURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Error("failed to refresh google JWKS", "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load google JWKS")
	}

	return NewGoogleVerifierWithKeyFunc(clientID, jwks.Keyfunc, logger), nil
}

// NewGoogleVerifierWithKeyFunc is used with a static key set
func NewGoogleVerifierWithKeyFunc(clientID string, keyFunc jwt.Keyfunc, logger Logger) *GoogleVerifier {
	if logger == nil {
		logger = defaultLogger()
	}
	return &GoogleVerifier{
		clientID: clientID,
		keyFunc:  keyFunc,
		logger:   logger,
		now:      time.Now,
	}
}

func (g *GoogleVerifier) Verify(ctx context.Context, credential string) (*ExternalIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrIDTokenNotRetrieved
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(g.now),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	}
	if g.clientID != "" {
		opts = append(opts, jwt.WithAudience(g.clientID))
	}

	token, err := jwt.ParseWithClaims(credential, &googleClaims{}, g.keyFunc, opts...)
	if err != nil {
		g.logger.Debug("google id token rejected", "error", err)
		return nil, ErrBadIDToken
	}

	claims, ok := token.Claims.(*googleClaims)
	if !ok || !token.Valid || !isGoogleIssuer(claims.Issuer) || claims.Email == "" {
		return nil, ErrBadIDToken
	}

	return &ExternalIdentity{
		Subject:       claims.Subject,
		Email:         NormalizeEmail(claims.Email),
		EmailVerified: claims.EmailVerified,
		FirstName:     claims.GivenName,
		LastName:      claims.FamilyName,
		Picture:       claims.Picture,
	}, nil
}

func isGoogleIssuer(iss string) bool {
	for _, v := range googleIssuers {
		if v == iss {
			return true
		}
	}
	return false
}
