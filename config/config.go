// Package config holds the server configuration. Values come from
// config/app.json through go-config, then from .env and the environment.
package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"

	s2s "github.com/goliatone/go-s2s"
)

type Server struct {
	Address      string `json:"address" koanf:"address"`
	ClientURL    string `json:"client_url" koanf:"client_url"`
	CookieDomain string `json:"cookie_domain" koanf:"cookie_domain"`
}

type Token struct {
	Secret              string `json:"secret" koanf:"secret"`
	ExpiresInExpression string `json:"expires_in" koanf:"expires_in"`
}

// GetTTL returns 0 for a malformed expression, Validate rejects those
func (t Token) GetTTL() time.Duration {
	d, err := time.ParseDuration(t.ExpiresInExpression)
	if err != nil {
		return 0
	}
	return d
}

type Auth struct {
	Issuer         string `json:"issuer" koanf:"issuer"`
	GoogleClientID string `json:"google_client_id" koanf:"google_client_id"`
	Access         Token  `json:"access" koanf:"access"`
	Refresh        Token  `json:"refresh" koanf:"refresh"`
	Confirm        Token  `json:"confirm" koanf:"confirm"`
	Reset          Token  `json:"reset" koanf:"reset"`
}

type Persistence struct {
	Driver       string `json:"driver" koanf:"driver"`
	DSN          string `json:"dsn" koanf:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" koanf:"max_open_conns"`
}

func (p Persistence) GetDriver() string    { return p.Driver }
func (p Persistence) GetDSN() string       { return p.DSN }
func (p Persistence) GetMaxOpenConns() int { return p.MaxOpenConns }

type Redis struct {
	Address  string `json:"address" koanf:"address"`
	Password string `json:"password" koanf:"password"`
	DB       int    `json:"db" koanf:"db"`
}

type RateLimit struct {
	Limit            int    `json:"limit" koanf:"limit"`
	WindowExpression string `json:"window" koanf:"window"`
}

func (r RateLimit) GetWindow() time.Duration {
	d, err := time.ParseDuration(r.WindowExpression)
	if err != nil {
		return time.Minute
	}
	return d
}

type Storage struct {
	Bucket      string `json:"bucket" koanf:"bucket"`
	Credentials string `json:"credentials" koanf:"credentials"`
	LocalDir    string `json:"local_dir" koanf:"local_dir"`
	PublicURL   string `json:"public_url" koanf:"public_url"`
}

type Metrics struct {
	Address string `json:"address" koanf:"address"`
}

// BaseConfig is the root of the configuration tree
type BaseConfig struct {
	Debug       bool        `json:"debug" koanf:"debug"`
	Server      Server      `json:"server" koanf:"server"`
	Auth        Auth        `json:"auth" koanf:"auth"`
	Persistence Persistence `json:"persistence" koanf:"persistence"`
	Redis       Redis       `json:"redis" koanf:"redis"`
	RateLimit   RateLimit   `json:"rate_limit" koanf:"rate_limit"`
	Storage     Storage     `json:"storage" koanf:"storage"`
	Metrics     Metrics     `json:"metrics" koanf:"metrics"`
	Languages   []string    `json:"languages" koanf:"languages"`
	EmailSender string      `json:"email_sender" koanf:"email_sender"`
}

var _ s2s.Config = (*BaseConfig)(nil)

func Defaults() *BaseConfig {
	return &BaseConfig{
		Server: Server{
			Address:      ":8080",
			ClientURL:    "http://localhost:3000",
			CookieDomain: "localhost",
		},
		Auth: Auth{
			Issuer:  "space2study",
			Access:  Token{ExpiresInExpression: "15m"},
			Refresh: Token{ExpiresInExpression: "24h"},
			Confirm: Token{ExpiresInExpression: "72h"},
			Reset:   Token{ExpiresInExpression: "1h"},
		},
		Persistence: Persistence{
			Driver: "sqlite",
			DSN:    "file:s2s.db?cache=shared",
		},
		RateLimit: RateLimit{
			Limit:            10,
			WindowExpression: "1m",
		},
		Storage: Storage{
			LocalDir:  "./uploads",
			PublicURL: "/uploads",
		},
		Metrics:     Metrics{Address: ":9090"},
		Languages:   []string{"en", "ua"},
		EmailSender: "no-reply@space2study.com",
	}
}

func (c *BaseConfig) GetIssuer() string { return c.Auth.Issuer }

func (c *BaseConfig) token(kind s2s.TokenKind) Token {
	switch kind {
	case s2s.TokenAccess:
		return c.Auth.Access
	case s2s.TokenRefresh:
		return c.Auth.Refresh
	case s2s.TokenConfirm:
		return c.Auth.Confirm
	case s2s.TokenReset:
		return c.Auth.Reset
	}
	return Token{}
}

func (c *BaseConfig) GetTokenSecret(kind s2s.TokenKind) string {
	return c.token(kind).Secret
}

func (c *BaseConfig) GetTokenTTL(kind s2s.TokenKind) time.Duration {
	return c.token(kind).GetTTL()
}

func (c *BaseConfig) GetClientURL() string    { return c.Server.ClientURL }
func (c *BaseConfig) GetCookieDomain() string { return c.Server.CookieDomain }

func validDuration(value any) error {
	s, _ := value.(string)
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 15m or 24h")
	}
	if d <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func tokenRules(t *Token) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&t.Secret, validation.Required),
		validation.Field(&t.ExpiresInExpression, validation.Required, validation.By(validDuration)),
	}
}

// Validate checks that every secret is set and every ttl parses
func (c BaseConfig) Validate() error {
	verr := errors.ValidateWithOzzo(func() error {
		return validation.Errors{
			"server": validation.ValidateStruct(&c.Server,
				validation.Field(&c.Server.Address, validation.Required),
				validation.Field(&c.Server.ClientURL, validation.Required),
			),
			"auth.issuer":  validation.Validate(c.Auth.Issuer, validation.Required),
			"auth.access":  validation.ValidateStruct(&c.Auth.Access, tokenRules(&c.Auth.Access)...),
			"auth.refresh": validation.ValidateStruct(&c.Auth.Refresh, tokenRules(&c.Auth.Refresh)...),
			"auth.confirm": validation.ValidateStruct(&c.Auth.Confirm, tokenRules(&c.Auth.Confirm)...),
			"auth.reset":   validation.ValidateStruct(&c.Auth.Reset, tokenRules(&c.Auth.Reset)...),
			"persistence": validation.ValidateStruct(&c.Persistence,
				validation.Field(&c.Persistence.Driver, validation.Required, validation.In("sqlite", "postgres")),
				validation.Field(&c.Persistence.DSN, validation.Required),
			),
			"languages": validation.Validate(c.Languages, validation.Required),
		}.Filter()
	}, "invalid configuration")

	if verr != nil {
		return verr
	}
	return nil
}

// EnvPrefix selects the nested overrides read by go-config, for example
// S2S_AUTH__ACCESS__EXPIRES_IN=30m sets auth.access.expires_in
const EnvPrefix = "S2S_"

// DefaultConfigPath is read when present
const DefaultConfigPath = "config/app.json"

// Loader wraps the go-config container
type Loader struct {
	logger     glog.Logger
	envFiles   []string
	configPath string
	lookup     func(string) (string, bool)
}

type Option func(*Loader)

// WithEnvFiles loads dotenv files before reading the environment,
// missing files are skipped
func WithEnvFiles(files ...string) Option {
	return func(l *Loader) {
		l.envFiles = append(l.envFiles, files...)
	}
}

// WithConfigPath replaces config/app.json
func WithConfigPath(path string) Option {
	return func(l *Loader) {
		l.configPath = path
	}
}

// WithLookup replaces os.LookupEnv
func WithLookup(fn func(string) (string, bool)) Option {
	return func(l *Loader) {
		if fn != nil {
			l.lookup = fn
		}
	}
}

func NewLoader(logger glog.Logger, opts ...Option) *Loader {
	l := &Loader{
		lookup:     os.LookupEnv,
		configPath: DefaultConfigPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger
	return l
}

// Load reads the config file, applies env overrides and validates the result.
// Precedence from low to high: defaults, config file, S2S_ prefixed env,
// the documented flat env names.
func (l *Loader) Load(ctx context.Context) (*BaseConfig, error) {
	for _, f := range l.envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load env file").
				WithMetadata(map[string]any{"file": f})
		}
	}

	container, err := gconfig.New(Defaults(),
		gconfig.WithValidation[*BaseConfig](false),
		gconfig.WithConfigPath[*BaseConfig](l.configPath),
		gconfig.WithLoader(
			gconfig.OptionalProvider(
				gconfig.FileProvider[*BaseConfig](l.configPath),
				gconfig.DefaultErrorFilter(fs.ErrNotExist),
			),
			gconfig.EnvProvider[*BaseConfig](EnvPrefix, "__", gconfig.DefaultOrderFlag),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create configuration container")
	}

	if err := container.Load(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load configuration").
			WithMetadata(map[string]any{"path": l.configPath})
	}

	cfg := container.Raw()
	ApplyEnv(cfg, l.lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Debug("configuration loaded", "path", l.configPath, "driver", cfg.Persistence.Driver)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with the documented environment variables
func ApplyEnv(cfg *BaseConfig, lookup func(string) (string, bool)) {
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && v != "" {
			*target = v
		}
	}

	str("SERVER_ADDRESS", &cfg.Server.Address)
	str("CLIENT_URL", &cfg.Server.ClientURL)
	str("COOKIE_DOMAIN", &cfg.Server.CookieDomain)

	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_ACCESS_SECRET", &cfg.Auth.Access.Secret)
	str("JWT_ACCESS_EXPIRES_IN", &cfg.Auth.Access.ExpiresInExpression)
	str("JWT_REFRESH_SECRET", &cfg.Auth.Refresh.Secret)
	str("JWT_REFRESH_EXPIRES_IN", &cfg.Auth.Refresh.ExpiresInExpression)
	str("JWT_CONFIRM_SECRET", &cfg.Auth.Confirm.Secret)
	str("JWT_CONFIRM_EXPIRES_IN", &cfg.Auth.Confirm.ExpiresInExpression)
	str("JWT_RESET_SECRET", &cfg.Auth.Reset.Secret)
	str("JWT_RESET_EXPIRES_IN", &cfg.Auth.Reset.ExpiresInExpression)
	str("GOOGLE_CLIENT_ID", &cfg.Auth.GoogleClientID)

	str("DB_DRIVER", &cfg.Persistence.Driver)
	str("DB_DSN", &cfg.Persistence.DSN)

	str("REDIS_ADDRESS", &cfg.Redis.Address)
	str("REDIS_PASSWORD", &cfg.Redis.Password)

	str("STORAGE_BUCKET", &cfg.Storage.Bucket)
	str("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Storage.Credentials)
	str("STORAGE_LOCAL_DIR", &cfg.Storage.LocalDir)

	str("METRICS_ADDRESS", &cfg.Metrics.Address)
	str("EMAIL_SENDER", &cfg.EmailSender)

	if v, ok := lookup("APP_LANGUAGES"); ok && strings.TrimSpace(v) != "" {
		var langs []string
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				langs = append(langs, code)
			}
		}
		cfg.Languages = langs
	}
}
