package email

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"portal/internal/adapters/logging"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender sends emails via the SendGrid v3 API.
type SendgridSender struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendgridSender creates a sender. from may be "Name <addr>" or a bare address.
func NewSendgridSender(apiKey, from string) *SendgridSender {
	return &SendgridSender{key: apiKey, host: sendgridHost, from: parseAddress(from)}
}

// WithHost points the sender at another SendGrid-compatible host.
func (s *SendgridSender) WithHost(host string) *SendgridSender {
	s.host = host
	return s
}

func parseAddress(raw string) *sgmail.Email {
	if a, err := mail.ParseAddress(raw); err == nil {
		return sgmail.NewEmail(a.Name, a.Address)
	}
	return sgmail.NewEmail("", raw)
}

func (s *SendgridSender) message(req SendRequest) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = req.Subject
	for _, to := range req.To {
		p.AddTos(parseAddress(to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	if req.From != "" {
		m.SetFrom(parseAddress(req.From))
	}
	if req.ReplyTo != "" {
		m.SetReplyTo(parseAddress(req.ReplyTo))
	}
	m.AddPersonalizations(p)
	if req.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", req.Text))
	}
	if req.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", req.HTML))
	}
	for k, v := range req.Headers {
		m.SetHeader(k, v)
	}
	return m
}

// Send hands req to SendGrid. A 4xx other than 408 or 429 is a rejection.
// POST: returns the X-Message-Id SendGrid assigned
func (s *SendgridSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}
	log := logging.FromContext(ctx).With("provider", "sendgrid", "subject", req.Subject)

	r := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	r.Method = http.MethodPost
	r.Body = sgmail.GetRequestBody(s.message(req))

	res, err := sendgrid.MakeRequestWithContext(ctx, r)
	if err != nil {
		log.Error("email_send_failed", "error", err)
		return SendResult{}, &ProviderError{Provider: "sendgrid", Err: err}
	}
	if res.StatusCode >= http.StatusBadRequest {
		perr := &ProviderError{Provider: "sendgrid", Status: res.StatusCode, Err: errors.New(strings.TrimSpace(res.Body))}
		log.Error("email_send_failed", "status", res.StatusCode, "rejected", perr.Rejected())
		return SendResult{}, perr
	}
	var id string
	if v := res.Headers["X-Message-Id"]; len(v) > 0 {
		id = v[0]
	}
	log.Info("email_sent", "message_id", id)
	return SendResult{MessageID: id, SentAt: time.Now()}, nil
}
