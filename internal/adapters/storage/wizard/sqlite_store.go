package wizard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portal/internal/adapters/storage"
	"portal/internal/domain/therapist"
)

const dateLayout = time.RFC3339

// DraftTTL is how long an untouched onboarding draft is kept.
const DraftTTL = 30 * 24 * time.Hour

// ErrNotFound means the owner has no saved draft.
var ErrNotFound = errors.New("draft not found")

// Store persists onboarding drafts between wizard steps.
type Store interface {
	Get(ctx context.Context, ownerID string) (therapist.Draft, error)
	Save(ctx context.Context, d therapist.Draft) error
	Delete(ctx context.Context, ownerID string) error
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite. The application is stored as
// JSON so new form fields need no migration.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new draft store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get loads the owner's draft.
// POST: returns ErrNotFound when none exists or it has expired
func (s *SQLiteStore) Get(ctx context.Context, ownerID string) (therapist.Draft, error) {
	var data, completed, updatedAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, completed, updated_at, expires_at FROM wizard_draft WHERE owner_id = ?`, ownerID).
		Scan(&data, &completed, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return therapist.Draft{}, ErrNotFound
	}
	if err != nil {
		return therapist.Draft{}, fmt.Errorf("get draft: %w", err)
	}

	d := therapist.Draft{OwnerID: ownerID}
	d.UpdatedAt, _ = time.Parse(dateLayout, updatedAt)
	if exp, err := time.Parse(dateLayout, expiresAt); err == nil && !time.Now().Before(exp) {
		return therapist.Draft{}, ErrNotFound
	}
	if err := json.Unmarshal([]byte(data), &d.Data); err != nil {
		return therapist.Draft{}, fmt.Errorf("decode draft %s: %w", ownerID, err)
	}
	if err := json.Unmarshal([]byte(completed), &d.Completed); err != nil {
		return therapist.Draft{}, fmt.Errorf("decode draft steps %s: %w", ownerID, err)
	}
	return d, nil
}

// Save upserts the draft and pushes its expiry out by DraftTTL.
// PRE: d.OwnerID is non-empty
func (s *SQLiteStore) Save(ctx context.Context, d therapist.Draft) error {
	if d.OwnerID == "" {
		return therapist.ErrEmptyDraftOwner
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if d.Completed == nil {
		d.Completed = []string{}
	}
	completed, err := json.Marshal(d.Completed)
	if err != nil {
		return fmt.Errorf("encode draft steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wizard_draft (owner_id, data, completed, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   data=excluded.data, completed=excluded.completed,
		   updated_at=excluded.updated_at, expires_at=excluded.expires_at`,
		d.OwnerID, string(data), string(completed),
		d.UpdatedAt.UTC().Format(dateLayout), d.UpdatedAt.Add(DraftTTL).UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Delete removes the owner's draft, if any.
func (s *SQLiteStore) Delete(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wizard_draft WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
