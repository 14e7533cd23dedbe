// Package email delivers outgoing mail through a transactional provider.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"time"
)

// RefHeader carries the caller's reference for a message (the outbox entry
// ID), so provider logs can be matched to retries of the same message.
const RefHeader = "X-Entity-Ref-ID"

var (
	ErrNoRecipients = errors.New("email has no recipients")
	ErrNoSubject    = errors.New("email has no subject")
	ErrBadAddress   = errors.New("email address is malformed")
)

type SendRequest struct {
	To      []string
	From    string // optional; the sender's default is used when empty
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender hands one message to a provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// Validate reports the first problem that no provider would accept.
func (r SendRequest) Validate() error {
	if len(r.To) == 0 {
		return ErrNoRecipients
	}
	if r.Subject == "" {
		return ErrNoSubject
	}
	for _, addr := range append([]string{r.ReplyTo, r.From}, r.To...) {
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: %q", ErrBadAddress, addr)
		}
	}
	return nil
}

// ProviderError is a failed call to a provider. Status is 0 when the
// provider gave no HTTP status.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Rejected reports whether the provider refused the message itself, so
// resending it unchanged cannot succeed. Throttling and timeouts are not
// rejections.
func (e *ProviderError) Rejected() bool {
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// IsPermanent reports whether err means the message will never send:
// it failed validation or the provider rejected it.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrNoRecipients) || errors.Is(err, ErrNoSubject) || errors.Is(err, ErrBadAddress) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Rejected()
}
