package s2s

import (
	"context"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DefaultOperationTimeout = time.Second * 10

var passwordPattern = regexp.MustCompile(`^(?:.*[A-Za-z].*\d|.*\d.*[A-Za-z]).*$`)

var (
	passwordRules = []validation.Rule{
		validation.Required,
		validation.Length(8, 25),
		validation.Match(passwordPattern).Error("must contain at least one letter and one digit"),
	}
	nameRules = []validation.Rule{
		validation.Required,
		validation.Length(1, 30),
	}
)

// SignupInput is what a new account needs. Admins come from invitations,
// signup only accepts student and tutor.
type SignupInput struct {
	Roles          Roles
	FirstName      string
	LastName       string
	Email          string
	Password       string
	Language       string
	NativeLanguage string
}

func (in SignupInput) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&in,
			validation.Field(&in.Roles,
				validation.Required,
				validation.Each(validation.In(RoleStudent, RoleTutor).Error("must be student or tutor")),
			),
			validation.Field(&in.FirstName, nameRules...),
			validation.Field(&in.LastName, nameRules...),
			validation.Field(&in.Email, validation.Required, validation.Length(3, 100), is.Email),
			validation.Field(&in.Password, passwordRules...),
		)
	}, "Invalid signup payload")
}

// SignupResult is returned to the client after signup
type SignupResult struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
}

// AuthService runs the account and session lifecycle
type AuthService struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	tokens   TokenCodec
	emails   EmailDispatcher
	verifier IDTokenVerifier
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

func NewAuthService(repo RepositoryManager, tokens TokenCodec, emails EmailDispatcher) *AuthService {
	return &AuthService{
		repo:     repo,
		hasher:   defaultHasher,
		tokens:   tokens,
		emails:   emails,
		activity: noopActivitySink{},
		logger:   defaultLogger(),
		timeout:  DefaultOperationTimeout,
	}
}

func (s *AuthService) WithLogger(logger Logger) *AuthService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *AuthService) WithActivitySink(sink ActivitySink) *AuthService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *AuthService) WithPasswordHasher(hasher PasswordHasher) *AuthService {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithIDTokenVerifier enables GoogleLogin
func (s *AuthService) WithIDTokenVerifier(verifier IDTokenVerifier) *AuthService {
	s.verifier = verifier
	return s
}

func (s *AuthService) WithTimeout(timeout time.Duration) *AuthService {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

func (s *AuthService) guard(ctx context.Context, op string) (context.Context, context.CancelFunc, error) {
	return guardOperation(ctx, s.timeout, op)
}

// guardOperation fails fast on a finished ctx, otherwise bounds op by timeout
func guardOperation(ctx context.Context, timeout time.Duration, op string) (context.Context, context.CancelFunc, error) {
	select {
	case <-ctx.Done():
		return ctx, func() {}, errors.Wrap(
			ctx.Err(),
			errors.CategoryOperation,
			"context cancelled during "+op,
		)
	default:
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// Signup creates the account, stores its confirm token and sends the
// confirmation email.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	ctx, cancel, err := s.guard(ctx, "signup")
	defer cancel()
	if err != nil {
		return nil, err
	}

	in.Email = NormalizeEmail(in.Email)
	if verr := in.Validate(); verr != nil {
		return nil, verr
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var (
		user         *User
		confirmToken string
	)

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.Users().RegisterTx(ctx, tx, &User{
			Roles:          in.Roles,
			FirstName:      strings.TrimSpace(in.FirstName),
			LastName:       strings.TrimSpace(in.LastName),
			Email:          in.Email,
			PasswordHash:   hash,
			NativeLanguage: in.NativeLanguage,
			AppLanguage:    in.Language,
			IsFirstLogin:   true,
		})
		if err != nil {
			return err
		}

		token, err := s.tokens.Generate(TokenConfirm, created.TokenPayload())
		if err != nil {
			return err
		}

		if _, err := s.repo.Tokens().SaveTokenTx(ctx, tx, created.ID.String(), token, TokenConfirm); err != nil {
			return err
		}

		user = created
		confirmToken = token
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateEmail) {
			s.logger.Error("signup failed", "email", in.Email, "error", err)
		}
		return nil, err
	}

	err = s.emails.SendEmail(ctx, user.Email, EmailConfirmation, in.Language, map[string]any{
		"confirmToken": confirmToken,
		"email":        user.Email,
		"firstName":    user.FirstName,
	})
	if err != nil {
		s.logger.Error("failed to send confirmation email", "email", user.Email, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to send confirmation email")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventSignup,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"roles": user.Roles.Strings()},
	})

	return &SignupResult{
		UserID:    user.ID.String(),
		UserEmail: user.Email,
	}, nil
}

// ConfirmEmail marks the account as confirmed, the token can only be used once
func (s *AuthService) ConfirmEmail(ctx context.Context, confirmToken string) error {
	ctx, cancel, err := s.guard(ctx, "email confirmation")
	defer cancel()
	if err != nil {
		return err
	}

	claims := s.tokens.Validate(TokenConfirm, confirmToken)
	if claims == nil {
		return ErrBadConfirmToken
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().FindByIDTx(ctx, tx, claims.UserID())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrBadConfirmToken
			}
			return err
		}

		if user.IsEmailConfirmed {
			return ErrBadConfirmToken
		}

		consumed, err := s.repo.Tokens().ConsumeTokenTx(ctx, tx, user.ID.String(), TokenConfirm, confirmToken)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrBadConfirmToken
		}

		confirmed, err := s.repo.Users().MarkEmailConfirmedTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if !confirmed {
			return ErrBadConfirmToken
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		UserID:    claims.UserID(),
	})
	return nil
}

// Login checks the credentials and starts a new session. Any previous
// refresh token of the user stops working.
func (s *AuthService) Login(ctx context.Context, email, password string, isGoogleAuth bool) (TokenPair, error) {
	ctx, cancel, err := s.guard(ctx, "login")
	defer cancel()
	if err != nil {
		return TokenPair{}, err
	}

	email = NormalizeEmail(email)

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.loginFailed(ctx, "", email, "unknown email")
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	if !isGoogleAuth {
		if err := s.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
			s.loginFailed(ctx, user.ID.String(), email, "password mismatch")
			return TokenPair{}, ErrInvalidCredentials
		}
	}

	pair, err := s.tokens.GeneratePair(user.TokenPayload())
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := s.repo.Tokens().SaveToken(ctx, user.ID.String(), pair.RefreshToken, TokenRefresh); err != nil {
		return TokenPair{}, err
	}

	if user.IsFirstLogin {
		if err := s.repo.Users().TrackSuccessfulLogin(ctx, user, ""); err != nil {
			return TokenPair{}, err
		}
	}

	event := ActivityEventLoginSuccess
	if isGoogleAuth {
		event = ActivityEventGoogleLogin
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: event,
		UserID:    user.ID.String(),
	})

	return pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID, email, reason string) {
	s.logger.Info("login failed", "email", email, "reason", reason)
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    userID,
		Actor:     ActorRef{ID: userID, Type: "unknown"},
		Metadata:  map[string]any{"identifier": email, "reason": reason},
	})
}

// GoogleLogin logs in the owner of a google ID token
func (s *AuthService) GoogleLogin(ctx context.Context, credential string) (TokenPair, error) {
	if strings.TrimSpace(credential) == "" {
		return TokenPair{}, ErrIDTokenNotRetrieved
	}

	if s.verifier == nil {
		return TokenPair{}, ErrBadIDToken
	}

	identity, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrIDTokenNotRetrieved) {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrBadIDToken
	}

	pair, err := s.Login(ctx, identity.Email, "", true)
	if err != nil {
		return TokenPair{}, ErrBadIDToken
	}
	return pair, nil
}

// Logout revokes the refresh token, unknown tokens are ignored
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, cancel, err := s.guard(ctx, "logout")
	defer cancel()
	if err != nil {
		return err
	}

	if err := s.repo.Tokens().RemoveRefreshToken(ctx, refreshToken); err != nil {
		return err
	}

	if claims := s.tokens.Validate(TokenRefresh, refreshToken); claims != nil {
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLogout,
			UserID:    claims.UserID(),
		})
	}
	return nil
}

// RefreshAccessToken rotates the session. The given token must be the one
// currently stored for the user, a rotated or revoked token is rejected.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx, cancel, err := s.guard(ctx, "token refresh")
	defer cancel()
	if err != nil {
		return TokenPair{}, err
	}

	if refreshToken == "" {
		return TokenPair{}, ErrUnauthorized
	}

	claims := s.tokens.Validate(TokenRefresh, refreshToken)
	if claims == nil {
		return TokenPair{}, ErrUnauthorized
	}

	var pair TokenPair
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().FindByIDTx(ctx, tx, claims.UserID())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUnauthorized
			}
			return err
		}

		next, err := s.tokens.GeneratePair(user.TokenPayload())
		if err != nil {
			return err
		}

		rotated, err := s.repo.Tokens().RotateRefreshTokenTx(ctx, tx, user.ID.String(), refreshToken, next.RefreshToken)
		if err != nil {
			return err
		}
		if !rotated {
			return ErrUnauthorized
		}

		pair = next
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.logger.Warn("refresh token rejected", "user_id", claims.UserID())
			recordActivity(ctx, s.activity, s.logger, ActivityEvent{
				EventType: ActivityEventRefreshReuse,
				UserID:    claims.UserID(),
			})
		}
		return TokenPair{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		UserID:    claims.UserID(),
	})
	return pair, nil
}

// SendResetPasswordEmail stores a reset token and mails it. Unknown emails
// succeed silently so callers can not probe for accounts.
func (s *AuthService) SendResetPasswordEmail(ctx context.Context, email, language string) error {
	ctx, cancel, err := s.guard(ctx, "password reset request")
	defer cancel()
	if err != nil {
		return err
	}

	email = NormalizeEmail(email)
	if verr := validateEmail(email); verr != nil {
		return verr
	}

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("password reset requested for unknown email", "email", email)
			return nil
		}
		return err
	}

	resetToken, err := s.tokens.Generate(TokenReset, user.TokenPayload())
	if err != nil {
		return err
	}

	if _, err := s.repo.Tokens().SaveToken(ctx, user.ID.String(), resetToken, TokenReset); err != nil {
		return err
	}

	err = s.emails.SendEmail(ctx, user.Email, EmailResetPassword, language, map[string]any{
		"resetToken": resetToken,
		"email":      user.Email,
		"firstName":  user.FirstName,
	})
	if err != nil {
		s.logger.Error("failed to send reset password email", "email", user.Email, "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to send reset password email")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		UserID:    user.ID.String(),
	})
	return nil
}

// UpdatePassword finishes a password reset. The reset token and any live
// refresh token are cleared.
func (s *AuthService) UpdatePassword(ctx context.Context, resetToken, password, language string) error {
	ctx, cancel, err := s.guard(ctx, "password update")
	defer cancel()
	if err != nil {
		return err
	}

	claims := s.tokens.Validate(TokenReset, resetToken)
	if claims == nil {
		return ErrBadResetToken
	}

	if verr := validatePassword(password); verr != nil {
		return verr
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return err
	}

	var user *User
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := s.repo.Users().FindByIDTx(ctx, tx, claims.UserID())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrBadResetToken
			}
			return err
		}

		consumed, err := s.repo.Tokens().ConsumeTokenTx(ctx, tx, found.ID.String(), TokenReset, resetToken)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrBadResetToken
		}

		if err := s.repo.Users().ResetPasswordTx(ctx, tx, found.ID, hash); err != nil {
			return err
		}

		record, err := s.repo.Tokens().FindTokenTx(ctx, tx, TokenQuery{UserID: found.ID.String()})
		if err != nil && !repository.IsRecordNotFound(err) {
			return err
		}
		if record != nil && record.RefreshToken != "" {
			if err := s.repo.Tokens().RemoveRefreshTokenTx(ctx, tx, record.RefreshToken); err != nil {
				return err
			}
		}

		user = found
		return nil
	})
	if err != nil {
		return err
	}

	err = s.emails.SendEmail(ctx, user.Email, EmailSuccessfulPassword, language, map[string]any{
		"firstName": user.FirstName,
	})
	if err != nil {
		s.logger.Error("failed to send password changed email", "email", user.Email, "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to send password changed email")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		UserID:    user.ID.String(),
	})
	return nil
}

// UserFromAccessToken resolves the user behind a valid access token
func (s *AuthService) UserFromAccessToken(ctx context.Context, token string) (*User, error) {
	claims := s.tokens.Validate(TokenAccess, token)
	if claims == nil {
		return nil, ErrUnauthorized
	}

	if _, err := uuid.Parse(claims.UserID()); err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.repo.Users().FindByID(ctx, claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

func validateEmail(email string) *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.Validate(email, validation.Required, is.Email)
	}, "Invalid email")
}

func validatePassword(password string) *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.Validate(password, passwordRules...)
	}, "Invalid password")
}
