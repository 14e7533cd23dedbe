// Package outbox models side effects the portal defers until after the
// request that caused them has committed, such as mail from the contact form.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry statuses.
//
//	pending ──claim──▶ sending ──ok──▶ sent
//	   ▲                  │
//	   └──── retryable ◀──┴──▶ dead (attempts exhausted or permanent failure)
//
// pending and dead entries can be cancelled; dead entries can be revived.
const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDead      = "dead"
	StatusCancelled = "cancelled"
)

// Statuses lists every status, in lifecycle order.
var Statuses = []string{StatusPending, StatusSending, StatusSent, StatusDead, StatusCancelled}

// KindEmail is outgoing mail. It is the only kind the portal queues.
const KindEmail = "email"

// DefaultMaxAttempts caps delivery attempts per entry.
const DefaultMaxAttempts = 5

var (
	ErrEmptyPayload = errors.New("email needs a recipient and a subject")
	ErrFinished     = errors.New("entry was already sent or cancelled")
	ErrInFlight     = errors.New("entry is being delivered")
)

// Entry is one deferred side effect.
type Entry struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Payload       string    `json:"payload"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"max_attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LeaseUntil    time.Time `json:"lease_until,omitzero"`
	ProviderID    string    `json:"provider_id,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EmailPayload is the JSON body of an email entry.
type EmailPayload struct {
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

// NewEmail builds an email entry that is due immediately.
// PRE: p has at least one recipient and a subject
func NewEmail(p EmailPayload, now time.Time) (Entry, error) {
	if len(p.To) == 0 || p.Subject == "" {
		return Entry{}, ErrEmptyPayload
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Entry{}, fmt.Errorf("encode email payload: %w", err)
	}
	now = now.UTC()
	return Entry{
		ID:            uuid.NewString(),
		Kind:          KindEmail,
		Payload:       string(body),
		Status:        StatusPending,
		MaxAttempts:   DefaultMaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Email decodes an email entry's payload.
func (e Entry) Email() (EmailPayload, error) {
	var p EmailPayload
	if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
		return EmailPayload{}, fmt.Errorf("decode email payload %s: %w", e.ID, err)
	}
	return p, nil
}

// Claimable reports whether a worker may take the entry at now: a pending
// entry whose backoff has elapsed, or a sending entry whose worker let the
// lease run out.
func (e Entry) Claimable(now time.Time) bool {
	switch e.Status {
	case StatusPending:
		return !e.NextAttemptAt.After(now)
	case StatusSending:
		return !e.LeaseUntil.After(now)
	}
	return false
}

// Claim starts an attempt.
// PRE: e.Claimable(now)
// POST: status sending, Attempts incremented, leased until now+lease
func (e *Entry) Claim(now time.Time, lease time.Duration) {
	e.Attempts++
	e.Status = StatusSending
	e.LeaseUntil = now.UTC().Add(lease)
	e.UpdatedAt = now.UTC()
}

// Succeed records delivery.
func (e *Entry) Succeed(providerID string, now time.Time) {
	e.Status = StatusSent
	e.ProviderID = providerID
	e.LastError = ""
	e.LeaseUntil = time.Time{}
	e.UpdatedAt = now.UTC()
}

// Fail records a failed attempt. The entry goes back to pending after the
// backoff, or dead once attempts run out or err is permanent.
func (e *Entry) Fail(err error, now time.Time, b Backoff) {
	now = now.UTC()
	e.LastError = err.Error()
	e.LeaseUntil = time.Time{}
	e.UpdatedAt = now
	if IsPermanent(err) || e.Attempts >= e.MaxAttempts {
		e.Status = StatusDead
		return
	}
	e.Status = StatusPending
	e.NextAttemptAt = now.Add(b.Delay(e.Attempts))
}

// Cancel takes the entry out of the queue for good.
func (e *Entry) Cancel(now time.Time) error {
	switch e.Status {
	case StatusSent, StatusCancelled:
		return ErrFinished
	case StatusSending:
		return ErrInFlight
	}
	e.Status = StatusCancelled
	e.UpdatedAt = now.UTC()
	return nil
}

// Revive makes the entry due now. A dead entry is granted one more attempt.
func (e *Entry) Revive(now time.Time) error {
	switch e.Status {
	case StatusSent, StatusCancelled:
		return ErrFinished
	case StatusSending:
		return ErrInFlight
	case StatusDead:
		e.MaxAttempts = e.Attempts + 1
	}
	now = now.UTC()
	e.Status = StatusPending
	e.NextAttemptAt = now
	e.UpdatedAt = now
	return nil
}

// Backoff spaces out retries: Base after the first failure, doubling up to
// Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is 30s, 1m, 2m, 4m... capped at an hour.
var DefaultBackoff = Backoff{Base: 30 * time.Second, Max: time.Hour}

// Delay is the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	return min(d, b.Max)
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked by
// Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
