package email

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"portal/internal/adapters/logging"
)

// LogSender logs messages instead of delivering them. It stands in for a
// provider in development and keeps the most recent messages for inspection.
type LogSender struct {
	mu     sync.Mutex
	recent []SendRequest
	keep   int
}

func NewLogSender(keep int) *LogSender {
	return &LogSender{keep: max(keep, 1)}
}

func (s *LogSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}
	id := "log-" + uuid.NewString()
	logging.FromContext(ctx).Info("email_logged",
		"message_id", id, "to", req.To, "subject", req.Subject, "ref", req.Headers[RefHeader])

	s.mu.Lock()
	s.recent = append(s.recent, req)
	if over := len(s.recent) - s.keep; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
	s.mu.Unlock()
	return SendResult{MessageID: id, SentAt: time.Now()}, nil
}

// Recent returns the retained messages, oldest first.
func (s *LogSender) Recent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRequest(nil), s.recent...)
}
