package s2s

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenSettings is the secret and lifetime of one token kind
type TokenSettings struct {
	Secret []byte
	TTL    time.Duration
}

// TokenService implements TokenCodec with one HMAC secret per kind
type TokenService struct {
	issuer   string
	settings map[TokenKind]TokenSettings
	logger   Logger
	now      func() time.Time
}

var _ TokenCodec = (*TokenService)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(issuer string, settings map[TokenKind]TokenSettings, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}

	cp := make(map[TokenKind]TokenSettings, len(settings))
	for k, v := range settings {
		cp[k] = v
	}

	return &TokenService{
		issuer:   issuer,
		settings: cp,
		logger:   logger,
		now:      time.Now,
	}
}

// NewTokenServiceFromConfig reads secrets and TTLs for every kind from cfg
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	settings := map[TokenKind]TokenSettings{}
	for _, kind := range []TokenKind{TokenAccess, TokenRefresh, TokenConfirm, TokenReset} {
		settings[kind] = TokenSettings{
			Secret: []byte(cfg.GetTokenSecret(kind)),
			TTL:    cfg.GetTokenTTL(kind),
		}
	}
	return NewTokenService(cfg.GetIssuer(), settings, logger)
}

// WithClock overrides time.Now, used to mint already expired tokens in tests
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// TTL returns the lifetime configured for kind
func (ts *TokenService) TTL(kind TokenKind) time.Duration {
	return ts.settings[kind].TTL
}

// Generate signs a token of the given kind
func (ts *TokenService) Generate(kind TokenKind, payload TokenPayload) (string, error) {
	cfg, ok := ts.settings[kind]
	if !ok || len(cfg.Secret) == 0 {
		return "", errors.New("token kind is not configured", errors.CategoryInternal).
			WithMetadata(map[string]any{"kind": kind})
	}

	now := ts.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   payload.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
		UID:          payload.UserID,
		Kind:         kind,
		UserRoles:    payload.Roles,
		IsFirstLogin: payload.IsFirstLogin,
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// GeneratePair mints an access and a refresh token for the same payload
func (ts *TokenService) GeneratePair(payload TokenPayload) (TokenPair, error) {
	access, err := ts.Generate(TokenAccess, payload)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := ts.Generate(TokenRefresh, payload)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Validate returns the claims of a valid token or nil.
func (ts *TokenService) Validate(kind TokenKind, tokenString string) *Claims {
	if tokenString == "" {
		return nil
	}

	cfg, ok := ts.settings[kind]
	if !ok || len(cfg.Secret) == 0 {
		return nil
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cfg.Secret, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("token validation failed", "kind", kind, "error", err)
		return nil
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil
	}

	if claims.Kind != kind || claims.UserID() == "" {
		ts.logger.Debug("token kind mismatch", "expected", kind, "got", claims.Kind)
		return nil
	}

	return claims
}
