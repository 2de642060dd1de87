package s2s_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-s2s"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	mock.Mock
}

func (s *stubDirectory) List(_ context.Context, query s2s.UserListQuery) (*s2s.UserList, error) {
	args := s.Called(query)
	list, _ := args.Get(0).(*s2s.UserList)
	return list, args.Error(1)
}

func (s *stubDirectory) Get(_ context.Context, id string, role s2s.Role) (*s2s.User, error) {
	args := s.Called(id, role)
	user, _ := args.Get(0).(*s2s.User)
	return user, args.Error(1)
}

func (s *stubDirectory) Update(_ context.Context, id string, in s2s.UserUpdateInput) error {
	return s.Called(id, in).Error(0)
}

func (s *stubDirectory) UpdateStatus(_ context.Context, actor s2s.ActorRef, id string, changes s2s.UserStatus) error {
	return s.Called(actor, id, changes).Error(0)
}

func (s *stubDirectory) Delete(_ context.Context, actor s2s.ActorRef, id string) error {
	return s.Called(actor, id).Error(0)
}

func (s *stubDirectory) UploadPhoto(_ context.Context, userID string, contentType string, data []byte) (string, error) {
	args := s.Called(userID, contentType, data)
	return args.String(0), args.Error(1)
}

func newUsersController(dir s2s.UserDirectory) (*s2s.UsersController, *handled) {
	h := &handled{}
	ctrl := s2s.NewUsersController(dir, nil, func(ctx router.Context, err error) error {
		h.err = err
		return nil
	})
	return ctrl, h
}

func withClaims(ctx *router.MockContext, id string, roles ...s2s.Role) {
	ctx.LocalsMock[s2s.ClaimsLocalsKey] = &s2s.Claims{UID: id, UserRoles: s2s.NewRoles(roles...)}
}

func TestUsersListPassesFilters(t *testing.T) {
	dir := new(stubDirectory)
	list := &s2s.UserList{Items: []*s2s.User{{Email: "t@example.com"}}, Count: 1}
	dir.On("List", mock.MatchedBy(func(q s2s.UserListQuery) bool {
		return q.Role == s2s.RoleTutor && q.Email == "t@"
	})).Return(list, nil)

	ctrl, h := newUsersController(dir)
	ctx := newControllerCtx()
	ctx.QueriesM["role"] = "tutor"
	ctx.QueriesM["email"] = "t@"
	ctx.On("QueryInt", mock.Anything, mock.Anything).Return(0).Maybe()
	ctx.On("JSON", http.StatusOK, list).Return(nil)

	require.NoError(t, ctrl.List(ctx))
	assert.Nil(t, h.err)
	ctx.AssertExpectations(t)
}

func TestUsersGetWithRole(t *testing.T) {
	dir := new(stubDirectory)
	user := &s2s.User{Email: "get@example.com"}
	dir.On("Get", "user-1", s2s.RoleStudent).Return(user, nil)
	dir.On("Get", "user-2", s2s.Role("")).Return(nil, s2s.ErrUserNotFound)

	ctrl, h := newUsersController(dir)

	ctx := newControllerCtx()
	ctx.ParamsM["id"] = "user-1"
	ctx.QueriesM["role"] = "student"
	ctx.On("JSON", http.StatusOK, user).Return(nil)
	require.NoError(t, ctrl.Get(ctx))
	assert.Nil(t, h.err)

	ctx = newControllerCtx()
	ctx.ParamsM["id"] = "user-2"
	require.NoError(t, ctrl.Get(ctx))
	assert.ErrorIs(t, h.err, s2s.ErrUserNotFound)
}

func TestUsersUpdateOwnProfileOnly(t *testing.T) {
	dir := new(stubDirectory)
	first := "Ada"
	dir.On("Update", "user-1", s2s.UserUpdateInput{FirstName: &first}).Return(nil)

	ctrl, h := newUsersController(dir)

	ctx := newControllerCtx()
	withClaims(ctx, "user-1", s2s.RoleStudent)
	ctx.ParamsM["id"] = "user-1"
	bindPayload(ctx, s2s.UserUpdateInput{FirstName: &first})
	ctx.On("NoContent", http.StatusNoContent).Return(nil)
	require.NoError(t, ctrl.Update(ctx))
	assert.Nil(t, h.err)
	dir.AssertExpectations(t)

	ctx = newControllerCtx()
	withClaims(ctx, "user-1", s2s.RoleStudent)
	ctx.ParamsM["id"] = "user-9"
	require.NoError(t, ctrl.Update(ctx))
	assert.ErrorIs(t, h.err, s2s.ErrForbidden)

	ctx = newControllerCtx()
	ctx.ParamsM["id"] = "user-1"
	require.NoError(t, ctrl.Update(ctx))
	assert.ErrorIs(t, h.err, s2s.ErrUnauthorized)
}

func TestUsersUpdateStatusUsesAdminActor(t *testing.T) {
	dir := new(stubDirectory)
	changes := s2s.UserStatus{s2s.RoleTutor: s2s.StatusInactive}
	dir.On("UpdateStatus", s2s.ActorRef{ID: "admin-1", Type: "admin"}, "user-1", changes).Return(nil)

	ctrl, h := newUsersController(dir)
	ctx := newControllerCtx()
	withClaims(ctx, "admin-1", s2s.RoleAdmin)
	ctx.ParamsM["id"] = "user-1"
	bindPayload(ctx, changes)
	ctx.On("NoContent", http.StatusNoContent).Return(nil)

	require.NoError(t, ctrl.UpdateStatus(ctx))
	assert.Nil(t, h.err)
	dir.AssertExpectations(t)
}

func TestUsersDelete(t *testing.T) {
	dir := new(stubDirectory)
	dir.On("Delete", s2s.ActorRef{ID: "admin-1", Type: "admin"}, "user-1").Return(nil)
	dir.On("Delete", s2s.ActorRef{ID: "admin-1", Type: "admin"}, "missing").Return(s2s.ErrUserNotFound)

	ctrl, h := newUsersController(dir)

	ctx := newControllerCtx()
	withClaims(ctx, "admin-1", s2s.RoleAdmin)
	ctx.ParamsM["id"] = "user-1"
	ctx.On("NoContent", http.StatusNoContent).Return(nil)
	require.NoError(t, ctrl.Delete(ctx))
	assert.Nil(t, h.err)

	ctx = newControllerCtx()
	withClaims(ctx, "admin-1", s2s.RoleAdmin)
	ctx.ParamsM["id"] = "missing"
	require.NoError(t, ctrl.Delete(ctx))
	assert.ErrorIs(t, h.err, s2s.ErrUserNotFound)
}

func multipartImage(t *testing.T, field, filename, contentType string, data []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return w.FormDataContentType(), buf.Bytes()
}

func uploadCtx(contentType string, body []byte) *router.MockContext {
	ctx := newControllerCtx()
	ctx.HeadersM["Content-Type"] = contentType
	ctx.On("Header", "Content-Type").Return(contentType).Maybe()
	ctx.On("Body").Return(body).Maybe()
	return ctx
}

func TestUsersUploadImage(t *testing.T) {
	dir := new(stubDirectory)
	dir.On("UploadPhoto", "user-1", "image/png", []byte("png-bytes")).Return("https://cdn.example/p.png", nil)

	ctrl, h := newUsersController(dir)
	contentType, body := multipartImage(t, "file", "avatar.png", "image/png", []byte("png-bytes"))

	ctx := uploadCtx(contentType, body)
	withClaims(ctx, "user-1", s2s.RoleStudent)
	ctx.On("NoContent", http.StatusNoContent).Return(nil)

	require.NoError(t, ctrl.UploadImage(ctx))
	assert.Nil(t, h.err)
	dir.AssertExpectations(t)
}

func TestUsersUploadImageMissingFile(t *testing.T) {
	dir := new(stubDirectory)
	ctrl, h := newUsersController(dir)

	contentType, body := multipartImage(t, "other", "avatar.png", "image/png", []byte("png-bytes"))
	ctx := uploadCtx(contentType, body)
	withClaims(ctx, "user-1", s2s.RoleStudent)

	require.NoError(t, ctrl.UploadImage(ctx))
	require.Error(t, h.err)
	assert.Equal(t, http.StatusBadRequest, s2s.StatusCode(s2s.AsRichError(h.err)))
	dir.AssertNotCalled(t, "UploadPhoto", mock.Anything, mock.Anything, mock.Anything)
}
