package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	domain "portal/internal/domain/audit"
)

// Store persists the audit trail.
type Store interface {
	// Save persists an event.
	// PRE: event is valid
	Save(ctx context.Context, event domain.Event) error

	// List returns up to limit events matching f, newest first.
	// PRE: limit > 0
	// POST: events are strictly older than f.Before when it is set
	List(ctx context.Context, f Filter, limit int) ([]domain.Event, error)

	// Prune deletes events stamped before cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Category   domain.Category
	Action     domain.Action
	Severity   domain.Severity
	ActorID    string
	ResourceID string
	Since      time.Time
	Before     Cursor
}

// Cursor marks a position in the newest-first ordering. Timestamps can
// collide, so the event ID breaks ties.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

var ErrBadCursor = errors.New("invalid audit cursor")

// CursorAfter is the cursor that continues a listing past e.
func CursorAfter(e domain.Event) Cursor {
	return Cursor{Timestamp: e.Timestamp, ID: e.ID}
}

func (c Cursor) IsZero() bool { return c.ID == "" }

// String encodes c for a query parameter. The zero cursor encodes to "".
func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	raw := c.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor reverses String. An empty string is the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, ErrBadCursor
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{Timestamp: t, ID: id}, nil
}

var _ Store = (*SQLiteStore)(nil)
