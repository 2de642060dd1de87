package s2s

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Authenticator is the session lifecycle the auth routes drive.
// AuthService is the production implementation.
type Authenticator interface {
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)
	ConfirmEmail(ctx context.Context, confirmToken string) error
	Login(ctx context.Context, email, password string, isGoogleAuth bool) (TokenPair, error)
	GoogleLogin(ctx context.Context, credential string) (TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error)
	SendResetPasswordEmail(ctx context.Context, email, language string) error
	UpdatePassword(ctx context.Context, resetToken, password, language string) error
}

var _ Authenticator = (*AuthService)(nil)

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	limit := controller.rateLimit()

	app.Post(controller.Routes.Signup, controller.Signup).
		SetName("auth.signup")

	app.Post(controller.Routes.Login, controller.Login, limit).
		SetName("auth.login")

	app.Post(controller.Routes.GoogleAuth, controller.GoogleLogin, limit).
		SetName("auth.google")

	app.Post(controller.Routes.Logout, controller.Logout).
		SetName("auth.logout")

	app.Get(controller.Routes.Refresh, controller.Refresh).
		SetName("auth.refresh")

	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword, limit).
		SetName("auth.forgot-password")

	app.Patch(fmt.Sprintf("%s/:token", controller.Routes.ResetPassword), controller.ResetPassword).
		SetName("auth.reset-password")

	app.Get(controller.Routes.ConfirmEmail, controller.ConfirmEmail).
		SetName("auth.confirm-email")

	return controller
}

type AuthControllerRoutes struct {
	Signup         string
	Login          string
	GoogleAuth     string
	Logout         string
	Refresh        string
	ForgotPassword string
	ResetPassword  string
	ConfirmEmail   string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Auth         Authenticator
	Routes       *AuthControllerRoutes
	Cookies      CookieOptions
	ClientURL    string
	Limiter      RateLimiter
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithAuthenticator(auth Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auth = auth
		return c
	}
}

func WithCookieOptions(opts CookieOptions) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cookies = opts
		return c
	}
}

func WithClientURL(url string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.ClientURL = strings.TrimRight(url, "/")
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithErrorHandler(handler router.ErrorHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// WithRateLimiter limits login, google login and forgot-password
func WithRateLimiter(limiter RateLimiter) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Limiter = limiter
		return c
	}
}

func WithDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:  defaultLogger(),
		Cookies: DefaultCookieOptions("", 0),
		Routes: &AuthControllerRoutes{
			Signup:         "/auth/signup",
			Login:          "/auth/login",
			GoogleAuth:     "/auth/google-auth",
			Logout:         "/auth/logout",
			Refresh:        "/auth/refresh",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
			ConfirmEmail:   "/confirm-email",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = ErrorHandler(c.Logger, c.Debug)
	}

	if c.Auth == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

func (a *AuthController) rateLimit() router.MiddlewareFunc {
	return RateLimitMiddleware(a.Limiter, ClientIPKey, a.ErrorHandler, a.Logger)
}

func (a *AuthController) dump(label string, v any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug(label, "payload", print.MaybePrettyJSON(v))
}

// SignupRequest payload
type SignupRequest struct {
	Role           Roles  `json:"role"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	NativeLanguage string `json:"nativeLanguage"`
}

func (a *AuthController) Signup(ctx router.Context) error {
	payload := new(SignupRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, badPayload(err))
	}

	a.dump("signup request", map[string]any{"email": payload.Email, "role": payload.Role})

	res, err := a.Auth.Signup(ctx.Context(), SignupInput{
		Roles:          payload.Role,
		FirstName:      payload.FirstName,
		LastName:       payload.LastName,
		Email:          payload.Email,
		Password:       payload.Password,
		Language:       RequestLanguage(ctx),
		NativeLanguage: payload.NativeLanguage,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, res)
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, validation.Required, is.Email),
			validation.Field(&r.Password, validation.Required),
		)
	}, "Invalid login payload")
}

// AccessTokenResponse is the body of login and refresh, the refresh token
// only travels in its cookie
type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, badPayload(err))
	}

	if verr := payload.Validate(); verr != nil {
		return a.ErrorHandler(ctx, verr)
	}

	pair, err := a.Auth.Login(ctx.Context(), payload.Email, payload.Password, false)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.startSession(ctx, pair)
}

// GoogleLoginRequest mirrors the google sign in button response
type GoogleLoginRequest struct {
	Token struct {
		Credential string `json:"credential"`
	} `json:"token"`
}

func (a *AuthController) GoogleLogin(ctx router.Context) error {
	payload := new(GoogleLoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, ErrIDTokenNotRetrieved)
	}

	if strings.TrimSpace(payload.Token.Credential) == "" {
		return a.ErrorHandler(ctx, ErrIDTokenNotRetrieved)
	}

	pair, err := a.Auth.GoogleLogin(ctx.Context(), payload.Token.Credential)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.startSession(ctx, pair)
}

func (a *AuthController) startSession(ctx router.Context, pair TokenPair) error {
	a.Cookies.SetTokenCookies(ctx, pair)
	return ctx.JSON(http.StatusOK, AccessTokenResponse{AccessToken: pair.AccessToken})
}

// Logout always clears both cookies, even if the stored token is already gone
func (a *AuthController) Logout(ctx router.Context) error {
	refreshToken := ctx.Cookies(RefreshTokenCookie)

	if err := a.Auth.Logout(ctx.Context(), refreshToken); err != nil {
		a.Logger.Error("logout failed", "error", err)
	}

	a.Cookies.ClearTokenCookies(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

func (a *AuthController) Refresh(ctx router.Context) error {
	refreshToken := ctx.Cookies(RefreshTokenCookie)

	if refreshToken == "" {
		a.Cookies.clear(ctx, AccessTokenCookie)
		return a.ErrorHandler(ctx, ErrUnauthorized)
	}

	pair, err := a.Auth.RefreshAccessToken(ctx.Context(), refreshToken)
	if err != nil {
		a.Cookies.clear(ctx, AccessTokenCookie)
		return a.ErrorHandler(ctx, err)
	}

	return a.startSession(ctx, pair)
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, badPayload(err))
	}

	if err := a.Auth.SendResetPasswordEmail(ctx.Context(), payload.Email, RequestLanguage(ctx)); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, badPayload(err))
	}

	resetToken := ctx.Param("token")

	if err := a.Auth.UpdatePassword(ctx.Context(), resetToken, payload.Password, RequestLanguage(ctx)); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

// ConfirmEmail answers the link in the confirmation email, so success is a
// redirect to the client app rather than JSON.
func (a *AuthController) ConfirmEmail(ctx router.Context) error {
	confirmToken := ctx.Query("confirmToken", "")

	if err := a.Auth.ConfirmEmail(ctx.Context(), confirmToken); err != nil {
		richErr := AsRichError(err)
		message := richErr.Message
		if StatusCode(richErr) >= 500 {
			a.Logger.Error("confirm email failed", "error", err)
			message = ErrInternal.Message
		}
		return ctx.JSON(http.StatusBadRequest, map[string]string{"message": message})
	}

	return ctx.Redirect(a.ClientURL+"/", http.StatusFound)
}

func badPayload(err error) error {
	return errors.Wrap(err, errors.CategoryBadInput, "Unable to parse request body").
		WithTextCode(TextCodeBadRequest).
		WithCode(errors.CodeBadRequest)
}
