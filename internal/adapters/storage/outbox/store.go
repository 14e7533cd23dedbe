package outbox

import (
	"context"
	"time"

	domain "portal/internal/domain/outbox"
)

// Store persists the outbox queue.
type Store interface {
	// Enqueue inserts a new entry.
	// PRE: e has an ID, a kind and a payload
	Enqueue(ctx context.Context, e domain.Entry) error

	// Get returns one entry or ErrNotFound.
	Get(ctx context.Context, id string) (domain.Entry, error)

	// Update writes back an entry's mutable state or returns ErrNotFound.
	Update(ctx context.Context, e domain.Entry) error

	// Claim leases up to limit claimable entries to the caller.
	// POST: each returned entry is sending, with Attempts incremented and
	// LeaseUntil = now+lease
	// INVARIANT: two concurrent claims never return the same entry while
	// its lease is live
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Entry, error)

	// List returns up to limit entries with status. Pending entries come
	// soonest-due first, the rest most recently updated first.
	List(ctx context.Context, status string, limit int) ([]domain.Entry, error)

	// Counts returns the number of entries per status.
	Counts(ctx context.Context) (map[string]int, error)

	// PurgeFinished deletes sent and cancelled entries last updated before
	// cutoff and reports how many went.
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}
