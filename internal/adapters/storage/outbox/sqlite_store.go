package outbox

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"portal/internal/adapters/storage"
	domain "portal/internal/domain/outbox"
)

// timeLayout is fixed-width UTC so text comparison is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const columns = `id, kind, payload, status, attempts, max_attempts, next_attempt_at, lease_until, provider_id, last_error, created_at, updated_at`

// ErrNotFound means no entry has the requested id.
var ErrNotFound = errors.New("outbox entry not found")

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the queue in the outbox table.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore returns a store over db.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func unstamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

func (s *SQLiteStore) Enqueue(ctx context.Context, e domain.Entry) error {
	if e.ID == "" || e.Kind == "" || e.Payload == "" {
		return fmt.Errorf("enqueue: entry %q is incomplete", e.ID)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO outbox (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		stamp(e.NextAttemptAt), stamp(e.LeaseUntil), e.ProviderID, e.LastError,
		stamp(e.CreatedAt), stamp(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Kind, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Entry, error) {
	e, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, ErrNotFound
	}
	return e, err
}

func (s *SQLiteStore) Update(ctx context.Context, e domain.Entry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, attempts = ?, max_attempts = ?, next_attempt_at = ?,
		   lease_until = ?, provider_id = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		e.Status, e.Attempts, e.MaxAttempts, stamp(e.NextAttemptAt),
		stamp(e.LeaseUntil), e.ProviderID, e.LastError, stamp(e.UpdatedAt), e.ID)
	if err != nil {
		return fmt.Errorf("update outbox %s: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim selects and leases in one statement, so sqlite's write lock is the
// only coordination between workers.
func (s *SQLiteStore) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Entry, error) {
	at := stamp(now)
	rows, err := s.db.QueryContext(ctx,
		`UPDATE outbox SET status = ?, attempts = attempts + 1, lease_until = ?, updated_at = ?
		 WHERE id IN (
		   SELECT id FROM outbox
		   WHERE (status = ? AND next_attempt_at <= ?) OR (status = ? AND lease_until <= ?)
		   ORDER BY next_attempt_at, created_at
		   LIMIT ?)
		 RETURNING `+columns,
		domain.StatusSending, stamp(now.Add(lease)), at,
		domain.StatusPending, at, domain.StatusSending, at,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	claimed, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	slices.SortFunc(claimed, func(a, b domain.Entry) int {
		return cmp.Or(a.NextAttemptAt.Compare(b.NextAttemptAt), a.CreatedAt.Compare(b.CreatedAt))
	})
	return claimed, nil
}

func (s *SQLiteStore) List(ctx context.Context, status string, limit int) ([]domain.Entry, error) {
	order := `updated_at DESC`
	if status == domain.StatusPending {
		order = `next_attempt_at ASC`
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM outbox WHERE status = ? ORDER BY `+order+` LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return collect(rows)
}

func (s *SQLiteStore) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int, len(domain.Statuses))
	for _, st := range domain.Statuses {
		out[st] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE status IN (?, ?) AND updated_at < ?`,
		domain.StatusSent, domain.StatusCancelled, stamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return res.RowsAffected()
}

func collect(rows *sql.Rows) ([]domain.Entry, error) {
	defer rows.Close()
	var out []domain.Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scan(row interface{ Scan(...any) error }) (domain.Entry, error) {
	var (
		e                                 domain.Entry
		next, lease, createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.Kind, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&next, &lease, &e.ProviderID, &e.LastError, &createdAt, &updatedAt)
	if err != nil {
		return domain.Entry{}, err
	}
	e.NextAttemptAt = unstamp(next)
	e.LeaseUntil = unstamp(lease)
	e.CreatedAt = unstamp(createdAt)
	e.UpdatedAt = unstamp(updatedAt)
	return e, nil
}
