package s2s

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens is the bun backed TokenStore. Each method has a Tx variant so the
// auth service can combine token writes with user writes.
type Tokens interface {
	TokenStore

	SaveTokenTx(ctx context.Context, tx bun.IDB, userID string, value string, kind TokenKind) (*TokenRecord, error)
	FindTokenTx(ctx context.Context, tx bun.IDB, query TokenQuery) (*TokenRecord, error)
	RemoveRefreshTokenTx(ctx context.Context, tx bun.IDB, value string) error
	RemoveResetTokenTx(ctx context.Context, tx bun.IDB, userID string) error
	RemoveConfirmTokenTx(ctx context.Context, tx bun.IDB, userID string) error

	// ConsumeTokenTx clears the token only if it still holds value.
	ConsumeTokenTx(ctx context.Context, tx bun.IDB, userID string, kind TokenKind, value string) (bool, error)
	// RotateRefreshToken swaps current for next, false means current was not the live token.
	RotateRefreshToken(ctx context.Context, userID string, current, next string) (bool, error)
	RotateRefreshTokenTx(ctx context.Context, tx bun.IDB, userID string, current, next string) (bool, error)
}

type tokens struct {
	db *bun.DB
}

var _ Tokens = (*tokens)(nil)

func NewTokensRepository(db *bun.DB) Tokens {
	return &tokens{db: db}
}

func (t *tokens) SaveToken(ctx context.Context, userID string, value string, kind TokenKind) (*TokenRecord, error) {
	return t.SaveTokenTx(ctx, t.db, userID, value, kind)
}

func (t *tokens) SaveTokenTx(ctx context.Context, tx bun.IDB, userID string, value string, kind TokenKind) (*TokenRecord, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid user id").
			WithMetadata(map[string]any{"user_id": userID})
	}

	column := kind.Column()
	if column == "" {
		return nil, errors.New("token kind can not be stored", errors.CategoryInternal).
			WithMetadata(map[string]any{"kind": kind})
	}

	now := time.Now().UTC()
	record := &TokenRecord{
		ID:        uuid.New(),
		UserID:    uid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	record.setToken(kind, value)

	_, err = tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set(fmt.Sprintf("%s = EXCLUDED.%s", column, column)).
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to save token").
			WithMetadata(map[string]any{"user_id": userID, "kind": kind})
	}

	return t.FindTokenTx(ctx, tx, TokenQuery{UserID: userID})
}

func (t *tokens) FindToken(ctx context.Context, query TokenQuery) (*TokenRecord, error) {
	return t.FindTokenTx(ctx, t.db, query)
}

func (t *tokens) FindTokenTx(ctx context.Context, tx bun.IDB, query TokenQuery) (*TokenRecord, error) {
	if query.IsZero() {
		return nil, errors.New("token query needs at least one field", errors.CategoryBadInput)
	}

	record := &TokenRecord{}
	q := tx.NewSelect().Model(record)
	applyTokenQuery(q, query)

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(tokenQueryMetadata(query))
		}
		return nil, err
	}

	return record, nil
}

// FindTokensWithUsers returns matching records with the owning user loaded
func (t *tokens) FindTokensWithUsers(ctx context.Context, query TokenQuery) ([]*TokenRecord, error) {
	records := make([]*TokenRecord, 0)
	q := t.db.NewSelect().Model(&records).Relation("User")
	applyTokenQuery(q, query)

	if err := q.Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return records, nil
		}
		return nil, err
	}

	return records, nil
}

func (t *tokens) RemoveRefreshToken(ctx context.Context, value string) error {
	return t.RemoveRefreshTokenTx(ctx, t.db, value)
}

func (t *tokens) RemoveRefreshTokenTx(ctx context.Context, tx bun.IDB, value string) error {
	if value == "" {
		return nil
	}
	return t.clear(ctx, tx, TokenRefresh, "refresh_token = ?", value)
}

func (t *tokens) RemoveResetToken(ctx context.Context, userID string) error {
	return t.RemoveResetTokenTx(ctx, t.db, userID)
}

func (t *tokens) RemoveResetTokenTx(ctx context.Context, tx bun.IDB, userID string) error {
	return t.clear(ctx, tx, TokenReset, "user_id = ?", userID)
}

func (t *tokens) RemoveConfirmToken(ctx context.Context, userID string) error {
	return t.RemoveConfirmTokenTx(ctx, t.db, userID)
}

func (t *tokens) RemoveConfirmTokenTx(ctx context.Context, tx bun.IDB, userID string) error {
	return t.clear(ctx, tx, TokenConfirm, "user_id = ?", userID)
}

func (t *tokens) ConsumeTokenTx(ctx context.Context, tx bun.IDB, userID string, kind TokenKind, value string) (bool, error) {
	column := kind.Column()
	if column == "" || value == "" {
		return false, nil
	}

	res, err := tx.NewUpdate().
		Model((*TokenRecord)(nil)).
		Set(fmt.Sprintf("%s = NULL", column)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where(fmt.Sprintf("%s = ?", column), value).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to consume token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *tokens) RotateRefreshToken(ctx context.Context, userID string, current, next string) (bool, error) {
	return t.RotateRefreshTokenTx(ctx, t.db, userID, current, next)
}

func (t *tokens) RotateRefreshTokenTx(ctx context.Context, tx bun.IDB, userID string, current, next string) (bool, error) {
	if current == "" || next == "" {
		return false, nil
	}

	res, err := tx.NewUpdate().
		Model((*TokenRecord)(nil)).
		Set("refresh_token = ?", next).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where("refresh_token = ?", current).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to rotate refresh token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *tokens) clear(ctx context.Context, tx bun.IDB, kind TokenKind, where string, arg any) error {
	_, err := tx.NewUpdate().
		Model((*TokenRecord)(nil)).
		Set(fmt.Sprintf("%s = NULL", kind.Column())).
		Set("updated_at = ?", time.Now().UTC()).
		Where(where, arg).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to remove token").
			WithMetadata(map[string]any{"kind": kind})
	}
	return nil
}

func applyTokenQuery(q *bun.SelectQuery, query TokenQuery) {
	if query.UserID != "" {
		q.Where("?TableAlias.user_id = ?", query.UserID)
	}
	if query.RefreshToken != "" {
		q.Where("?TableAlias.refresh_token = ?", query.RefreshToken)
	}
	if query.ResetToken != "" {
		q.Where("?TableAlias.reset_token = ?", query.ResetToken)
	}
	if query.ConfirmToken != "" {
		q.Where("?TableAlias.confirm_token = ?", query.ConfirmToken)
	}
}

func tokenQueryMetadata(query TokenQuery) map[string]any {
	meta := map[string]any{}
	if query.UserID != "" {
		meta["user_id"] = query.UserID
	}
	if query.RefreshToken != "" {
		meta["refresh_token"] = true
	}
	if query.ResetToken != "" {
		meta["reset_token"] = true
	}
	if query.ConfirmToken != "" {
		meta["confirm_token"] = true
	}
	return meta
}
