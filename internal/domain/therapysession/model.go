package therapysession

import (
	"errors"
	"time"
)

// Session status constants.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Domain errors.
var (
	ErrNotCancellable = errors.New("only scheduled sessions can be cancelled")
	ErrEmptyReason    = errors.New("a cancellation reason is required")
	ErrReasonTooLong  = errors.New("cancellation reason cannot exceed 500 characters")
	ErrAlreadyStarted = errors.New("session has already started")
)

const (
	MaxReasonLength     = 500
	DefaultDurationMins = 50
)

// Session is a booked appointment between a therapist and a client.
type Session struct {
	ID            string    `json:"id"`
	TherapistID   string    `json:"therapist_id"`
	TherapistName string    `json:"therapist_name"`
	ClientID      string    `json:"client_id"`
	ClientName    string    `json:"client_name"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	DurationMins  int       `json:"duration_minutes"`
	Status        string    `json:"status"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	Version       int       `json:"version"`
}

// EndsAt returns the scheduled end time.
func (s *Session) EndsAt() time.Time {
	d := s.DurationMins
	if d <= 0 {
		d = DefaultDurationMins
	}
	return s.ScheduledAt.Add(time.Duration(d) * time.Minute)
}

// IsUpcoming returns true for scheduled sessions starting after now.
// INVARIANT: Session fields are not mutated
func (s *Session) IsUpcoming(now time.Time) bool {
	return s.Status == StatusScheduled && s.ScheduledAt.After(now)
}

// Cancel transitions a scheduled session to cancelled.
// PRE: Status is scheduled and the session has not started
// POST: Status is cancelled, CancelReason is set
func (s *Session) Cancel(reason string, now time.Time) error {
	if s.Status != StatusScheduled {
		return ErrNotCancellable
	}
	if !now.Before(s.ScheduledAt) {
		return ErrAlreadyStarted
	}
	if reason == "" {
		return ErrEmptyReason
	}
	if len(reason) > MaxReasonLength {
		return ErrReasonTooLong
	}
	s.Status = StatusCancelled
	s.CancelReason = reason
	return nil
}
