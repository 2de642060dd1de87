package s2s

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// EmailSubject names a transactional email
type EmailSubject string

const (
	EmailConfirmation       EmailSubject = "EMAIL_CONFIRMATION"
	EmailResetPassword      EmailSubject = "RESET_PASSWORD"
	EmailSuccessfulPassword EmailSubject = "SUCCESSFUL_PASSWORD_RESET"
	EmailAdminInvitation    EmailSubject = "ADMIN_INVITATION"
)

const TextCodeTemplateNotFound = "TEMPLATE_NOT_FOUND"

var ErrTemplateNotFound = errors.New("Email template not found.", errors.CategoryNotFound).
	WithTextCode(TextCodeTemplateNotFound).
	WithCode(errors.CodeNotFound)

// EmailTemplate is the template name and subject line for one language
type EmailTemplate struct {
	Template string
	Subject  string
}

// EmailCatalog resolves subject + language to a template
type EmailCatalog map[EmailSubject]map[string]EmailTemplate

var DefaultEmailCatalog = EmailCatalog{
	EmailConfirmation: {
		LanguageEN: {Template: "en/confirm-email", Subject: "Please confirm your email"},
		LanguageUA: {Template: "ua/confirm-email", Subject: "Будь ласка, підтвердіть свою пошту"},
	},
	EmailResetPassword: {
		LanguageEN: {Template: "en/reset-password", Subject: "Reset password"},
		LanguageUA: {Template: "ua/reset-password", Subject: "Відновлення пароля"},
	},
	EmailSuccessfulPassword: {
		LanguageEN: {Template: "en/successful-password-reset", Subject: "Your password was changed"},
		LanguageUA: {Template: "ua/successful-password-reset", Subject: "Ваш пароль змінено"},
	},
	EmailAdminInvitation: {
		LanguageEN: {Template: "en/admin-invitation", Subject: "You are invited to become an admin"},
		LanguageUA: {Template: "ua/admin-invitation", Subject: "Вас запрошено стати адміністратором"},
	},
}

// Lookup returns the template for subject and language
func (c EmailCatalog) Lookup(subject EmailSubject, language string) (EmailTemplate, error) {
	byLang, ok := c[subject]
	if !ok {
		return EmailTemplate{}, ErrTemplateNotFound
	}

	tpl, ok := byLang[language]
	if !ok {
		return EmailTemplate{}, ErrTemplateNotFound
	}

	return tpl, nil
}

// LogDispatcher resolves the template and logs the message instead of
// delivering it.
type LogDispatcher struct {
	catalog EmailCatalog
	sender  string
	logger  Logger
}

var _ EmailDispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(sender string, logger Logger) *LogDispatcher {
	if logger == nil {
		logger = defaultLogger()
	}
	return &LogDispatcher{
		catalog: DefaultEmailCatalog,
		sender:  sender,
		logger:  logger,
	}
}

func (d *LogDispatcher) WithCatalog(catalog EmailCatalog) *LogDispatcher {
	if catalog != nil {
		d.catalog = catalog
	}
	return d
}

func (d *LogDispatcher) SendEmail(ctx context.Context, to string, subject EmailSubject, language string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tpl, err := d.catalog.Lookup(subject, language)
	if err != nil {
		return err
	}

	d.logger.Info("email dispatched",
		"from", d.sender,
		"to", to,
		"subject", tpl.Subject,
		"template", tpl.Template,
		"data", print.MaybePrettyJSON(data),
	)
	return nil
}

// SentEmail is one message captured by MemoryDispatcher
type SentEmail struct {
	To       string
	Subject  EmailSubject
	Language string
	Data     map[string]any
}

// MemoryDispatcher keeps every sent email, handy for tests and local runs
type MemoryDispatcher struct {
	mu   sync.Mutex
	sent []SentEmail
	err  error
}

var _ EmailDispatcher = (*MemoryDispatcher)(nil)

func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// FailWith makes every following SendEmail return err
func (d *MemoryDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *MemoryDispatcher) SendEmail(_ context.Context, to string, subject EmailSubject, language string, data map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, SentEmail{To: to, Subject: subject, Language: language, Data: data})
	return nil
}

func (d *MemoryDispatcher) Sent() []SentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentEmail, len(d.sent))
	copy(out, d.sent)
	return out
}

// Last returns the last email sent to subject, false if none
func (d *MemoryDispatcher) Last(subject EmailSubject) (SentEmail, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sent) - 1; i >= 0; i-- {
		if d.sent[i].Subject == subject {
			return d.sent[i], true
		}
	}
	return SentEmail{}, false
}
