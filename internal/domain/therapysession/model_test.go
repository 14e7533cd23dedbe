package therapysession_test

import (
	"testing"
	"time"

	"portal/internal/domain/therapysession"
)

// TestSession_Cancel tests the scheduled-to-cancelled transition.
func TestSession_Cancel(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	t.Run("scheduled in future", func(t *testing.T) {
		s := &therapysession.Session{Status: therapysession.StatusScheduled, ScheduledAt: now.Add(time.Hour)}
		if err := s.Cancel("client unwell", now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Status != therapysession.StatusCancelled || s.CancelReason != "client unwell" {
			t.Errorf("got status=%q reason=%q", s.Status, s.CancelReason)
		}
	})

	t.Run("already started", func(t *testing.T) {
		s := &therapysession.Session{Status: therapysession.StatusScheduled, ScheduledAt: now}
		if err := s.Cancel("late", now); err != therapysession.ErrAlreadyStarted {
			t.Errorf("error = %v, want ErrAlreadyStarted", err)
		}
	})

	t.Run("completed", func(t *testing.T) {
		s := &therapysession.Session{Status: therapysession.StatusCompleted, ScheduledAt: now.Add(time.Hour)}
		if err := s.Cancel("x", now); err != therapysession.ErrNotCancellable {
			t.Errorf("error = %v, want ErrNotCancellable", err)
		}
	})

	t.Run("missing reason", func(t *testing.T) {
		s := &therapysession.Session{Status: therapysession.StatusScheduled, ScheduledAt: now.Add(time.Hour)}
		if err := s.Cancel("", now); err != therapysession.ErrEmptyReason {
			t.Errorf("error = %v, want ErrEmptyReason", err)
		}
	})
}

// TestSession_EndsAt tests the default duration fallback.
func TestSession_EndsAt(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s := therapysession.Session{ScheduledAt: start}
	if got := s.EndsAt(); !got.Equal(start.Add(50 * time.Minute)) {
		t.Errorf("EndsAt() = %v, want %v", got, start.Add(50*time.Minute))
	}
}
