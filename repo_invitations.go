package s2s

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Invitations stores admin invitations, one per email
type Invitations interface {
	repository.Repository[*AdminInvitation]

	UpsertEmailTx(ctx context.Context, tx bun.IDB, email string) (*AdminInvitation, error)
	ListAll(ctx context.Context) ([]*AdminInvitation, error)
}

type invitations struct {
	repository.Repository[*AdminInvitation]
	db *bun.DB
}

func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*AdminInvitation](db, repository.ModelHandlers[*AdminInvitation]{
		NewRecord: func() *AdminInvitation { return &AdminInvitation{} },
		GetID: func(record *AdminInvitation) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AdminInvitation, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	})
	return &invitations{Repository: repo, db: db}
}

// UpsertEmailTx creates the invitation or refreshes its date when the email was
// already invited. The ID is derived from the email so it is stable.
func (r *invitations) UpsertEmailTx(ctx context.Context, tx bun.IDB, email string) (*AdminInvitation, error) {
	email = NormalizeEmail(email)

	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	record := &AdminInvitation{
		ID:               id,
		Email:            email,
		DateOfInvitation: time.Now().UTC(),
	}

	_, err = tx.NewInsert().
		Model(record).
		On("CONFLICT (email) DO UPDATE").
		Set("date_of_invitation = EXCLUDED.date_of_invitation").
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to save admin invitation").
			WithMetadata(map[string]any{"email": email})
	}

	return record, nil
}

func (r *invitations) ListAll(ctx context.Context) ([]*AdminInvitation, error) {
	records := make([]*AdminInvitation, 0)
	err := r.db.NewSelect().
		Model(&records).
		OrderExpr("date_of_invitation DESC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}
