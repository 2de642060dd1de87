package s2s

import (
	"context"
	"net/http"

	"github.com/goliatone/go-router"
)

// InvitationSender runs the send admin invitations command
type InvitationSender interface {
	Execute(ctx context.Context, event SendAdminInvitationsMessage) error
}

var _ InvitationSender = (*SendAdminInvitationsHandler)(nil)

type InvitationsController struct {
	Logger       Logger
	Sender       InvitationSender
	Repo         RepositoryManager
	ErrorHandler router.ErrorHandler
}

func NewInvitationsController(repo RepositoryManager, sender InvitationSender, logger Logger, errHandler router.ErrorHandler) *InvitationsController {
	if logger == nil {
		logger = defaultLogger()
	}
	if errHandler == nil {
		errHandler = ErrorHandler(logger)
	}
	return &InvitationsController{
		Logger:       logger,
		Sender:       sender,
		Repo:         repo,
		ErrorHandler: errHandler,
	}
}

// RegisterInvitationRoutes mounts /admin-invitations, admin must require the admin role
func RegisterInvitationRoutes[T any](app router.Router[T], c *InvitationsController, admin router.MiddlewareFunc) {
	app.Post("/admin-invitations", c.Send, admin).SetName("admin-invitations.send")
	app.Get("/admin-invitations", c.List, admin).SetName("admin-invitations.list")
}

type sendInvitationsRequest struct {
	Emails []string `json:"emails"`
}

func (i *InvitationsController) Send(ctx router.Context) error {
	payload := new(sendInvitationsRequest)
	if err := ctx.Bind(payload); err != nil {
		return i.ErrorHandler(ctx, badPayload(err))
	}

	actor := ActorRef{Type: "anonymous"}
	if claims, ok := GetRouterClaims(ctx, ""); ok {
		actor = ActorFromClaims(claims)
	}

	var created []*AdminInvitation
	err := i.Sender.Execute(ctx.Context(), SendAdminInvitationsMessage{
		Emails:   payload.Emails,
		Language: RequestLanguage(ctx),
		Actor:    actor,
		OnResponse: func(invitations []*AdminInvitation) {
			created = invitations
		},
	})
	if err != nil {
		return i.ErrorHandler(ctx, err)
	}

	if created == nil {
		created = []*AdminInvitation{}
	}

	return ctx.JSON(http.StatusCreated, created)
}

func (i *InvitationsController) List(ctx router.Context) error {
	records, err := i.Repo.Invitations().ListAll(ctx.Context())
	if err != nil {
		return i.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, records)
}
