package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portal/internal/application/forms"
	"portal/internal/domain/audit"
	"portal/internal/domain/outbox"
)

// ErrContactNotConfigured means no inbox is configured for contact messages.
var ErrContactNotConfigured = errors.New("contact inbox is not configured")

// SubmitContactInput carries input for ExecuteSubmitContact.
type SubmitContactInput struct {
	Form      forms.Contact
	IPAddress string
	UserAgent string
}

// SubmitContactDeps holds dependencies for ExecuteSubmitContact.
type SubmitContactDeps struct {
	Validator StructValidator
	Outbox    OutboxWriter
	Audit     AuditRecorder
	ContactTo string
	Now       func() time.Time
}

// ExecuteSubmitContact validates the public contact form and queues it for
// delivery to the team inbox.
// POST: an email outbox entry is pending; delivery happens in the outbox worker
func ExecuteSubmitContact(ctx context.Context, input SubmitContactInput, deps SubmitContactDeps) (outbox.Entry, error) {
	f := input.Form
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	if err := deps.Validator.Struct(&f); err != nil {
		return outbox.Entry{}, err
	}
	if deps.ContactTo == "" {
		return outbox.Entry{}, ErrContactNotConfigured
	}

	now := nowFunc(deps.Now)()
	entry, err := outbox.NewEmail(outbox.EmailPayload{
		To:      []string{deps.ContactTo},
		ReplyTo: f.Email,
		Subject: fmt.Sprintf("[%s] message from %s", f.Topic, f.Name),
		Text:    fmt.Sprintf("From: %s <%s>\nTopic: %s\n\n%s\n", f.Name, f.Email, f.Topic, f.Message),
	}, now)
	if err != nil {
		return outbox.Entry{}, err
	}
	if err := deps.Outbox.Enqueue(ctx, entry); err != nil {
		return outbox.Entry{}, fmt.Errorf("queue contact email: %w", err)
	}

	slog.Info("contact_submitted", "entry_id", entry.ID, "topic", f.Topic)
	actor := Actor{Email: f.Email, IPAddress: input.IPAddress, UserAgent: input.UserAgent}
	recordAudit(ctx, deps.Audit, actor.event(now, audit.CategoryContact, audit.ActionSubmit).
		WithResource("outbox", entry.ID))
	return entry, nil
}
