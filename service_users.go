package s2s

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// ImageUploader stores a file and returns its public URL
type ImageUploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// UserList is a page of users plus the total match count
type UserList struct {
	Items []*User `json:"items"`
	Count int     `json:"count"`
}

// UserUpdateInput holds the fields a user may change on their own profile.
// Anything else in the request body is ignored.
type UserUpdateInput struct {
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	NativeLanguage *string `json:"nativeLanguage"`
	AppLanguage    *string `json:"appLanguage"`
	LastLoginAs    *Role   `json:"lastLoginAs"`
}

func (in UserUpdateInput) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&in,
			validation.Field(&in.FirstName, validation.NilOrNotEmpty, validation.Length(1, 30)),
			validation.Field(&in.LastName, validation.NilOrNotEmpty, validation.Length(1, 30)),
			validation.Field(&in.AppLanguage, validation.In(LanguageEN, LanguageUA)),
			validation.Field(&in.LastLoginAs, validation.In(RoleStudent, RoleTutor, RoleAdmin)),
		)
	}, "Invalid user update payload")
}

func (in UserUpdateInput) apply(user *User) []string {
	columns := make([]string, 0, 5)
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
		columns = append(columns, "first_name")
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
		columns = append(columns, "last_name")
	}
	if in.NativeLanguage != nil {
		user.NativeLanguage = *in.NativeLanguage
		columns = append(columns, "native_language")
	}
	if in.AppLanguage != nil {
		user.AppLanguage = *in.AppLanguage
		columns = append(columns, "app_language")
	}
	if in.LastLoginAs != nil {
		user.LastLoginAs = *in.LastLoginAs
		columns = append(columns, "last_login_as")
	}
	return columns
}

// UserService is the user directory facing the HTTP layer
type UserService struct {
	repo     RepositoryManager
	uploader ImageUploader
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

func NewUserService(repo RepositoryManager) *UserService {
	return &UserService{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defaultLogger(),
		timeout:  DefaultOperationTimeout,
	}
}

func (s *UserService) WithLogger(logger Logger) *UserService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *UserService) WithActivitySink(sink ActivitySink) *UserService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *UserService) WithUploader(uploader ImageUploader) *UserService {
	s.uploader = uploader
	return s
}

func (s *UserService) List(ctx context.Context, query UserListQuery) (*UserList, error) {
	ctx, cancel, err := guardOperation(ctx, s.timeout, "list users")
	defer cancel()
	if err != nil {
		return nil, err
	}

	items, count, err := s.repo.Users().ListUsers(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list users")
	}
	return &UserList{Items: items, Count: count}, nil
}

// Get returns the user, when role is set the user must hold it
func (s *UserService) Get(ctx context.Context, id string, role Role) (*User, error) {
	ctx, cancel, err := guardOperation(ctx, s.timeout, "get user")
	defer cancel()
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Users().FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if role != "" && !user.Roles.Has(role) {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (s *UserService) Update(ctx context.Context, id string, in UserUpdateInput) error {
	ctx, cancel, err := guardOperation(ctx, s.timeout, "update user")
	defer cancel()
	if err != nil {
		return err
	}

	if verr := in.Validate(); verr != nil {
		return verr
	}

	user, err := s.Get(ctx, id, "")
	if err != nil {
		return err
	}

	if in.LastLoginAs != nil && !user.Roles.Has(*in.LastLoginAs) {
		return ErrForbidden
	}

	columns := in.apply(user)
	if len(columns) == 0 {
		return nil
	}

	return s.repo.Users().UpdateFields(ctx, user, columns...)
}

// UpdateStatus merges per role status changes, e.g. {"student":"inactive"}
func (s *UserService) UpdateStatus(ctx context.Context, actor ActorRef, id string, changes UserStatus) error {
	ctx, cancel, err := guardOperation(ctx, s.timeout, "update user status")
	defer cancel()
	if err != nil {
		return err
	}

	if verr := validateStatus(changes); verr != nil {
		return verr
	}

	user, err := s.Get(ctx, id, "")
	if err != nil {
		return err
	}

	from := user.Status
	user.Status = user.Status.Merge(changes)

	if err := s.repo.Users().UpdateFields(ctx, user, "status"); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   user.Status,
	})
	return nil
}

func validateStatus(changes UserStatus) *errors.Error {
	if len(changes) == 0 {
		return errors.New("status payload is empty", errors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(errors.CodeBadRequest)
	}

	fields := map[string]string{}
	for role, value := range changes {
		if !role.IsValid() {
			fields[string(role)] = "unknown role"
			continue
		}
		if value != StatusActive && value != StatusInactive {
			fields[string(role)] = fmt.Sprintf("must be %q or %q", StatusActive, StatusInactive)
		}
	}

	if len(fields) == 0 {
		return nil
	}

	meta := map[string]any{}
	for k, v := range fields {
		meta[k] = v
	}
	return errors.New("Invalid status payload", errors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(errors.CodeBadRequest).
		WithMetadata(meta)
}

func (s *UserService) Delete(ctx context.Context, actor ActorRef, id string) error {
	ctx, cancel, err := guardOperation(ctx, s.timeout, "delete user")
	defer cancel()
	if err != nil {
		return err
	}

	if err := s.repo.Users().DeleteByID(ctx, id); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     actor,
		UserID:    id,
	})
	return nil
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadPhoto stores the image and points the user photo at it
func (s *UserService) UploadPhoto(ctx context.Context, userID string, contentType string, data []byte) (string, error) {
	ctx, cancel, err := guardOperation(ctx, s.timeout, "upload photo")
	defer cancel()
	if err != nil {
		return "", err
	}

	if s.uploader == nil {
		return "", errors.New("image uploads are not configured", errors.CategoryInternal)
	}

	if len(data) == 0 {
		return "", errors.New("file is required", errors.CategoryBadInput).
			WithTextCode(TextCodeBadRequest).
			WithCode(errors.CodeBadRequest)
	}

	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		return "", errors.New("unsupported image type", errors.CategoryBadInput).
			WithTextCode(TextCodeBadRequest).
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"content_type": contentType})
	}

	user, err := s.Get(ctx, userID, "")
	if err != nil {
		return "", err
	}

	name := path.Join("users", user.ID.String(), fmt.Sprintf("%d%s", time.Now().UnixNano(), ext))

	url, err := s.uploader.Upload(ctx, name, contentType, data)
	if err != nil {
		s.logger.Error("image upload failed", "user_id", userID, "error", err)
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to upload image")
	}

	user.Photo = &url
	if err := s.repo.Users().UpdateFields(ctx, user, "photo"); err != nil {
		return "", err
	}

	return url, nil
}
