package s2s

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// MaxImageSize caps profile image uploads
const MaxImageSize = 5 << 20

// UserDirectory is what the user routes need from UserService
type UserDirectory interface {
	List(ctx context.Context, query UserListQuery) (*UserList, error)
	Get(ctx context.Context, id string, role Role) (*User, error)
	Update(ctx context.Context, id string, in UserUpdateInput) error
	UpdateStatus(ctx context.Context, actor ActorRef, id string, changes UserStatus) error
	Delete(ctx context.Context, actor ActorRef, id string) error
	UploadPhoto(ctx context.Context, userID string, contentType string, data []byte) (string, error)
}

var _ UserDirectory = (*UserService)(nil)

// UsersController serves /users, every route needs a valid access token
type UsersController struct {
	Logger       Logger
	Users        UserDirectory
	ErrorHandler router.ErrorHandler
}

func NewUsersController(users UserDirectory, logger Logger, errHandler router.ErrorHandler) *UsersController {
	if logger == nil {
		logger = defaultLogger()
	}
	if errHandler == nil {
		errHandler = ErrorHandler(logger)
	}
	return &UsersController{
		Logger:       logger,
		Users:        users,
		ErrorHandler: errHandler,
	}
}

// RegisterUserRoutes mounts the user directory. protected must authenticate
// the request, admin must also require the admin role.
func RegisterUserRoutes[T any](app router.Router[T], c *UsersController, protected, admin router.MiddlewareFunc) {
	app.Get("/users", c.List, protected).SetName("users.list")
	app.Post("/users/image", c.UploadImage, protected).SetName("users.image")
	app.Get("/users/:id", c.Get, protected).SetName("users.get")
	app.Patch("/users/:id", c.Update, protected).SetName("users.update")
	app.Patch("/users/:id/change-status", c.UpdateStatus, admin).SetName("users.change-status")
	app.Delete("/users/:id", c.Delete, admin).SetName("users.delete")
}

func (u *UsersController) claims(ctx router.Context) (*Claims, error) {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func (u *UsersController) List(ctx router.Context) error {
	query := UserListQuery{
		Role:  Role(ctx.Query("role", "")),
		Name:  ctx.Query("name", ""),
		Email: ctx.Query("email", ""),
		Sort:  ctx.Query("sort", ""),
		Skip:  ctx.QueryInt("skip", 0),
		Limit: ctx.QueryInt("limit", DefaultUserListLimit),
	}

	list, err := u.Users.List(ctx.Context(), query)
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, list)
}

func (u *UsersController) Get(ctx router.Context) error {
	user, err := u.Users.Get(ctx.Context(), ctx.Param("id"), Role(ctx.Query("role", "")))
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, user)
}

// Update lets users edit their own profile only
func (u *UsersController) Update(ctx router.Context) error {
	claims, err := u.claims(ctx)
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}

	id := ctx.Param("id")
	if id != claims.UserID() {
		return u.ErrorHandler(ctx, ErrForbidden)
	}

	payload := new(UserUpdateInput)
	if err := ctx.Bind(payload); err != nil {
		return u.ErrorHandler(ctx, badPayload(err))
	}

	if err := u.Users.Update(ctx.Context(), id, *payload); err != nil {
		return u.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (u *UsersController) UpdateStatus(ctx router.Context) error {
	claims, err := u.claims(ctx)
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}

	payload := UserStatus{}
	if err := ctx.Bind(&payload); err != nil {
		return u.ErrorHandler(ctx, badPayload(err))
	}

	if err := u.Users.UpdateStatus(ctx.Context(), ActorFromClaims(claims), ctx.Param("id"), payload); err != nil {
		return u.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (u *UsersController) Delete(ctx router.Context) error {
	claims, err := u.claims(ctx)
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}

	if err := u.Users.Delete(ctx.Context(), ActorFromClaims(claims), ctx.Param("id")); err != nil {
		return u.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

// UploadImage takes a multipart "file" field and stores it as the caller's photo
func (u *UsersController) UploadImage(ctx router.Context) error {
	claims, err := u.claims(ctx)
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}

	contentType, data, err := readMultipartFile(ctx.Header("Content-Type"), ctx.Body(), "file", MaxImageSize)
	if err != nil {
		return u.ErrorHandler(ctx, err)
	}

	if _, err := u.Users.UploadPhoto(ctx.Context(), claims.UserID(), contentType, data); err != nil {
		return u.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

var errFileRequired = errors.New("file is required", errors.CategoryBadInput).
	WithTextCode(TextCodeBadRequest).
	WithCode(errors.CodeBadRequest)

// readMultipartFile returns the content type and bytes of the named part
func readMultipartFile(header string, body []byte, field string, maxSize int64) (string, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", nil, errFileRequired
	}

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return "", nil, errFileRequired
		}
		if err != nil {
			return "", nil, badPayload(err)
		}

		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxSize+1))
		part.Close()
		if err != nil {
			return "", nil, badPayload(err)
		}

		if int64(len(data)) > maxSize {
			return "", nil, errors.New("file is too large", errors.CategoryBadInput).
				WithTextCode(TextCodeBadRequest).
				WithCode(errors.CodeBadRequest).
				WithMetadata(map[string]any{"max_bytes": maxSize})
		}

		if len(data) == 0 {
			return "", nil, errFileRequired
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return contentType, data, nil
	}
}
