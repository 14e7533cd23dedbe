package email

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/resend/resend-go/v2"

	"portal/internal/adapters/logging"
)

// ResendSender delivers through the Resend API. The SDK does not surface
// HTTP statuses, so its failures are treated as transient.
type ResendSender struct {
	client *resend.Client
	from   string
}

// PRE: apiKey is a Resend API key; from is a valid sender address
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

// WithBaseURL points the sender at another Resend-compatible endpoint.
func (s *ResendSender) WithBaseURL(raw string) (*ResendSender, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse resend base url: %w", err)
	}
	s.client.BaseURL = u
	return s, nil
}

// Send hands req to Resend.
// POST: returns the Resend message ID
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}
	log := logging.FromContext(ctx).With("provider", "resend", "subject", req.Subject)

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    cmp.Or(req.From, s.from),
		To:      req.To,
		ReplyTo: req.ReplyTo,
		Subject: req.Subject,
		Text:    req.Text,
		Html:    req.HTML,
		Headers: req.Headers,
	})
	if err != nil {
		log.Error("email_send_failed", "error", err)
		return SendResult{}, &ProviderError{Provider: "resend", Err: err}
	}
	log.Info("email_sent", "message_id", sent.Id)
	return SendResult{MessageID: sent.Id, SentAt: time.Now()}, nil
}

