package s2s

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type SendAdminInvitationsMessage struct {
	Emails     []string `json:"emails"`
	Language   string   `json:"-"`
	Actor      ActorRef `json:"-"`
	OnResponse func(invitations []*AdminInvitation)
}

func (e SendAdminInvitationsMessage) Type() string { return "admin.invitations.send" }

func (e SendAdminInvitationsMessage) Validate() *goerrors.Error {
	return goerrors.ValidateWithOzzo(func() error {
		errs := validation.Errors{}
		if len(e.Emails) == 0 {
			errs["emails"] = fmt.Errorf("cannot be blank")
		}
		for i, email := range e.Emails {
			if err := validation.Validate(email, validation.Required, is.Email); err != nil {
				errs[fmt.Sprintf("emails.%d", i)] = err
			}
		}
		return errs.Filter()
	}, "Invalid admin invitation payload")
}

type SendAdminInvitationsHandler struct {
	repo     RepositoryManager
	emails   EmailDispatcher
	activity ActivitySink
	logger   Logger
}

func NewSendAdminInvitationsHandler(repo RepositoryManager, emails EmailDispatcher) *SendAdminInvitationsHandler {
	return &SendAdminInvitationsHandler{
		repo:     repo,
		emails:   emails,
		activity: noopActivitySink{},
		logger:   defaultLogger(),
	}
}

func (h *SendAdminInvitationsHandler) WithLogger(logger Logger) *SendAdminInvitationsHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendAdminInvitationsHandler) WithActivitySink(sink ActivitySink) *SendAdminInvitationsHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *SendAdminInvitationsHandler) Execute(ctx context.Context, event SendAdminInvitationsMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during admin invitation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendAdminInvitationsHandler) execute(ctx context.Context, event SendAdminInvitationsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if verr := event.Validate(); verr != nil {
		return verr
	}

	seen := map[string]bool{}
	invitations := make([]*AdminInvitation, 0, len(event.Emails))

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, email := range event.Emails {
			email = NormalizeEmail(email)
			if seen[email] {
				continue
			}
			seen[email] = true

			invitation, err := h.repo.Invitations().UpsertEmailTx(ctx, tx, email)
			if err != nil {
				return err
			}

			if err := h.emails.SendEmail(ctx, email, EmailAdminInvitation, event.Language, map[string]any{
				"email": email,
			}); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send admin invitation").
					WithMetadata(map[string]any{"email": email})
			}

			invitations = append(invitations, invitation)
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send admin invitations")
	}

	for _, invitation := range invitations {
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventAdminInvited,
			Actor:     event.Actor,
			Metadata:  map[string]any{"email": invitation.Email},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(invitations)
	}

	return nil
}
