package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"

	s2s "github.com/goliatone/go-s2s"
	"github.com/goliatone/go-s2s/activitymap"
	"github.com/goliatone/go-s2s/config"
	"github.com/goliatone/go-s2s/metrics"
	"github.com/goliatone/go-s2s/ratelimit"
	"github.com/goliatone/go-s2s/repository"
	"github.com/goliatone/go-s2s/storage"
)

type App struct {
	config  *config.BaseConfig
	logger  *glog.BaseLogger
	db      *bun.DB
	redis   *redis.Client
	repo    s2s.RepositoryManager
	tokens  *s2s.TokenService
	metrics *metrics.Collector
	srv     router.Server[*fiber.App]
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	var (
		envFile = pflag.String("env", ".env", "dotenv file loaded before the environment")
		debug   = pflag.Bool("debug", false, "verbose logging and error payload dumps")
		migrate = pflag.Bool("migrate-only", false, "apply migrations and exit")
	)
	pflag.Parse()

	level := glog.Info
	if *debug {
		level = glog.Trace
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("s2s"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	ctx := context.Background()

	cfg, err := config.NewLoader(lgr.GetLogger("config"), config.WithEnvFiles(*envFile)).Load(ctx)
	if err != nil {
		lgr.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || *debug

	if cfg.Debug {
		fmt.Println(print.MaybeHighlightJSON(redacted(cfg)))
	}

	app := &App{config: cfg, logger: lgr}

	if err := WithPersistence(ctx, app); err != nil {
		lgr.Error("persistence setup failed", "error", err)
		os.Exit(1)
	}
	defer app.db.Close()

	if *migrate {
		return
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		lgr.Error("http setup failed", "error", err)
		os.Exit(1)
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	go func() {
		if err := app.metrics.Serve(metricsCtx, cfg.Metrics.Address); err != nil {
			lgr.Error("metrics listener stopped", "error", err)
		}
	}()

	if err := app.srv.Serve(cfg.Server.Address); err != nil {
		lgr.Error("http server failed", "error", err)
		os.Exit(1)
	}

	sig := WaitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	stopMetrics()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("http shutdown failed", "error", err)
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	logger := app.GetLogger("persistence")

	db, err := repository.Open(ctx, app.config.Persistence)
	if err != nil {
		return err
	}

	applied, err := repository.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return err
	}
	logger.Info("migrations applied", "count", len(applied), "names", applied)

	app.db = db
	app.repo = s2s.NewRepositoryManager(db)
	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.config

	app.metrics = metrics.New()
	app.tokens = s2s.NewTokenServiceFromConfig(cfg, app.GetLogger("tokens"))

	errHandler := s2s.ErrorHandler(app.GetLogger("http"), cfg.Debug)

	emails := s2s.NewLogDispatcher(cfg.EmailSender, app.GetLogger("email"))

	activity := s2s.MultiActivitySink{
		app.metrics,
		activitymap.LogSink(app.GetLogger("activity")),
	}

	authService := s2s.NewAuthService(app.repo, app.tokens, emails).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(activity)

	if cfg.Auth.GoogleClientID != "" {
		verifier, err := s2s.NewGoogleVerifier(cfg.Auth.GoogleClientID, app.GetLogger("google"))
		if err != nil {
			return err
		}
		authService = authService.WithIDTokenVerifier(verifier)
	}

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return err
	}

	users := s2s.NewUserService(app.repo).
		WithLogger(app.GetLogger("users")).
		WithActivitySink(activity).
		WithUploader(uploader)

	invitations := s2s.NewSendAdminInvitationsHandler(app.repo, emails).
		WithLogger(app.GetLogger("invitations")).
		WithActivitySink(activity)

	limiter, err := newRateLimiter(ctx, app)
	if err != nil {
		return err
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: cfg.Debug,
			StrictRouting:     false,
			BodyLimit:         s2s.MaxImageSize + (1 << 20),
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	r := srv.Router()
	r.Use(app.metrics.Middleware())
	r.Use(s2s.LanguageMiddleware(s2s.NewLanguageResolver(cfg.Languages...), errHandler))

	r.Get("/health", func(ctx router.Context) error {
		if err := app.db.PingContext(ctx.Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "down"})
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}).SetName("health")

	if cfg.Storage.Bucket == "" {
		r.Static(cfg.Storage.PublicURL, cfg.Storage.LocalDir)
	}

	protected := s2s.ProtectedRoute(app.tokens, errHandler)
	admin := s2s.ProtectedRoute(app.tokens, errHandler, s2s.RoleAdmin)

	s2s.RegisterAuthRoutes(r,
		s2s.WithAuthenticator(authService),
		s2s.WithControllerLogger(app.GetLogger("auth.http")),
		s2s.WithErrorHandler(errHandler),
		s2s.WithCookieOptions(s2s.DefaultCookieOptions(cfg.GetCookieDomain(), cfg.GetTokenTTL(s2s.TokenRefresh))),
		s2s.WithClientURL(cfg.GetClientURL()),
		s2s.WithRateLimiter(limiter),
		s2s.WithDebug(cfg.Debug),
	)

	s2s.RegisterUserRoutes(r,
		s2s.NewUsersController(users, app.GetLogger("users.http"), errHandler),
		protected,
		admin,
	)

	s2s.RegisterInvitationRoutes(r,
		s2s.NewInvitationsController(app.repo, invitations, app.GetLogger("invitations.http"), errHandler),
		admin,
	)

	app.srv = srv
	return nil
}

func newUploader(ctx context.Context, cfg *config.BaseConfig) (s2s.ImageUploader, error) {
	if cfg.Storage.Bucket != "" {
		return storage.NewFirebase(ctx, cfg.Storage.Bucket, cfg.Storage.Credentials)
	}
	return storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicURL)
}

// newRateLimiter prefers redis so every instance shares the counters
func newRateLimiter(ctx context.Context, app *App) (s2s.RateLimiter, error) {
	cfg := app.config
	opts := ratelimit.Options{
		Limit:  cfg.RateLimit.Limit,
		Window: cfg.RateLimit.GetWindow(),
	}

	if cfg.Redis.Address == "" {
		app.GetLogger("ratelimit").Warn("redis address not set, using in memory rate limiter")
		return ratelimit.NewMemory(opts), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Address, err)
	}

	app.redis = client
	return ratelimit.NewRedis(client, opts), nil
}

func redacted(cfg *config.BaseConfig) *config.BaseConfig {
	out := *cfg
	out.Auth.Access.Secret = "***"
	out.Auth.Refresh.Secret = "***"
	out.Auth.Confirm.Secret = "***"
	out.Auth.Reset.Secret = "***"
	out.Redis.Password = ""
	return &out
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
