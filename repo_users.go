package s2s

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetUserPasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"id" = ?;`

// Users is the user directory
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id string) (*User, error)
	ListUsers(ctx context.Context, query UserListQuery) ([]*User, int, error)

	UpdateFields(ctx context.Context, user *User, columns ...string) error
	UpdateFieldsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) error
	MarkEmailConfirmedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
	TrackSuccessfulLogin(ctx context.Context, user *User, as Role) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	DeleteByID(ctx context.Context, id string) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

// RegisterTx inserts a new user, ErrDuplicateEmail if the email is taken
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	if _, err := a.GetByEmailTx(ctx, tx, user.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "could not create user")
	}

	return created, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.findOne(ctx, tx, "email", NormalizeEmail(email))
}

func (a *users) FindByID(ctx context.Context, id string) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}
	return a.findOne(ctx, tx, "id", uid.String())
}

func (a *users) findOne(ctx context.Context, tx bun.IDB, column string, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

// UserListQuery filters, sorts and pages the user list
type UserListQuery struct {
	Role  Role
	Name  string
	Email string
	Sort  string
	Skip  int
	Limit int
}

const (
	DefaultUserListLimit = 10
	MaxUserListLimit     = 100
)

var userSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"email":       "email",
	"firstName":   "first_name",
	"lastName":    "last_name",
	"lastLoginAs": "last_login_as",
}

// OrderExpr maps the public sort key, "-" prefix for descending
func (q UserListQuery) OrderExpr() string {
	key := strings.TrimSpace(q.Sort)
	dir := "ASC"
	if strings.HasPrefix(key, "-") {
		dir = "DESC"
		key = key[1:]
	}

	column, ok := userSortColumns[key]
	if !ok {
		return "created_at DESC"
	}
	return column + " " + dir
}

func (q UserListQuery) normalized() UserListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultUserListLimit
	}
	if q.Limit > MaxUserListLimit {
		q.Limit = MaxUserListLimit
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	return q
}

func (a *users) ListUsers(ctx context.Context, query UserListQuery) ([]*User, int, error) {
	query = query.normalized()
	records := make([]*User, 0)

	q := a.db.NewSelect().Model(&records)

	if query.Role != "" {
		q.Where("?TableAlias.roles LIKE ?", fmt.Sprintf("%%%q%%", string(query.Role)))
	}

	if name := strings.TrimSpace(query.Name); name != "" {
		pattern := "%" + strings.ToLower(name) + "%"
		q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("LOWER(?TableAlias.first_name) LIKE ?", pattern).
				WhereOr("LOWER(?TableAlias.last_name) LIKE ?", pattern)
		})
	}

	if email := NormalizeEmail(query.Email); email != "" {
		q.Where("?TableAlias.email LIKE ?", "%"+email+"%")
	}

	count, err := q.
		OrderExpr(query.OrderExpr()).
		Offset(query.Skip).
		Limit(query.Limit).
		ScanAndCount(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, 0, err
	}

	return records, count, nil
}

func (a *users) UpdateFields(ctx context.Context, user *User, columns ...string) error {
	return a.UpdateFieldsTx(ctx, a.db, user, columns...)
}

// UpdateFieldsTx writes only the given columns, updated_at is always bumped
func (a *users) UpdateFieldsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) error {
	if user == nil || user.ID == uuid.Nil {
		return ErrUserNotFound
	}

	user.UpdatedAt = time.Now().UTC()
	columns = append(columns, "updated_at")

	res, err := tx.NewUpdate().
		Model(user).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to update user").
			WithMetadata(map[string]any{"id": user.ID.String(), "columns": columns})
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}

	return nil
}

// MarkEmailConfirmedTx flips the flag once, false if it was already set
func (a *users) MarkEmailConfirmedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_email_confirmed = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id.String()).
		Where("is_email_confirmed = ?", false).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to confirm email")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User, as Role) error {
	user.IsFirstLogin = false
	columns := []string{"is_first_login"}
	if as != "" {
		user.LastLoginAs = as
		columns = append(columns, "last_login_as")
	}
	return a.UpdateFields(ctx, user, columns...)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewRaw(ResetUserPasswordSQL, passwordHash, time.Now().UTC(), id.String()).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to reset password")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) DeleteByID(ctx context.Context, id string) error {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrUserNotFound
	}

	res, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", uid.String()).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if len(record.Roles) == 0 {
		record.Roles = NewRoles(RoleStudent)
	}

	if record.Status == nil {
		record.Status = DefaultStatus(record.Roles)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}
