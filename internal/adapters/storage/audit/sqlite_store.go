package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"portal/internal/adapters/storage"
	domain "portal/internal/domain/audit"
)

// Fixed-width UTC stamps so string comparison in SQL matches time order.
const stampLayout = "2006-01-02T15:04:05.000000000Z"

const eventColumns = `id, timestamp, category, action, severity, actor_id, actor_email, actor_role,
	resource_type, resource_id, description, ip_address, user_agent, request_id, details`

// SQLiteStore keeps the audit trail in the audit_event table.
type SQLiteStore struct {
	db storage.SQLDB
}

func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

// Save inserts e. Details are stored as a JSON object, or "" when empty.
func (s *SQLiteStore) Save(ctx context.Context, e domain.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	var details string
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_event (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, stamp(e.Timestamp), string(e.Category), string(e.Action), string(e.Severity),
		e.ActorID, e.ActorEmail, e.ActorRole, e.ResourceType, e.ResourceID,
		e.Description, e.IPAddress, e.UserAgent, e.RequestID, details)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// List pages newest first using (timestamp, id) as the key.
func (s *SQLiteStore) List(ctx context.Context, f Filter, limit int) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	eq := func(col, v string) {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	eq("category", string(f.Category))
	eq("action", string(f.Action))
	eq("severity", string(f.Severity))
	eq("actor_id", f.ActorID)
	eq("resource_id", f.ResourceID)
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, stamp(f.Since))
	}
	if !f.Before.IsZero() {
		ts := stamp(f.Before.Timestamp)
		where = append(where, "(timestamp < ? OR (timestamp = ? AND id < ?))")
		args = append(args, ts, ts, f.Before.ID)
	}

	query := `SELECT ` + eventColumns + ` FROM audit_event`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_event WHERE timestamp < ?`, stamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return res.RowsAffected()
}

func scanEvent(rows interface{ Scan(...any) error }) (domain.Event, error) {
	var (
		e           domain.Event
		ts, details string
	)
	err := rows.Scan(&e.ID, &ts, &e.Category, &e.Action, &e.Severity,
		&e.ActorID, &e.ActorEmail, &e.ActorRole, &e.ResourceType, &e.ResourceID,
		&e.Description, &e.IPAddress, &e.UserAgent, &e.RequestID, &details)
	if err != nil {
		return e, fmt.Errorf("scan audit event: %w", err)
	}
	if e.Timestamp, err = time.Parse(stampLayout, ts); err != nil {
		return e, fmt.Errorf("audit event %s: bad timestamp %q", e.ID, ts)
	}
	if details != "" {
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return e, fmt.Errorf("audit event %s: bad details: %w", e.ID, err)
		}
	}
	return e, nil
}
