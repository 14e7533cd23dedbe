package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"portal/internal/adapters/http/perf"
)

func openTimedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := memDB(t)
	if _, err := db.Exec("CREATE TABLE notes (id TEXT PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestStatementLabel(t *testing.T) {
	tests := map[string]string{
		"SELECT id FROM portal_session WHERE id = ?":                 "SELECT portal_session",
		"insert into outbox (id, status) values (?, ?)":              "INSERT outbox",
		"UPDATE wizard_draft SET data = ? WHERE user_id = ?":         "UPDATE wizard_draft",
		"\n\t\tDELETE FROM portal_session WHERE expires_at < ?":      "DELETE portal_session",
		"WITH recent AS (SELECT * FROM audit_event) SELECT * FROM recent": "SELECT audit_event",
		"PRAGMA foreign_keys = ON":                                  "PRAGMA",
		"   ":                                                       "EMPTY",
	}
	for query, want := range tests {
		if got := statementLabel(query); got != want {
			t.Errorf("statementLabel(%q) = %q, want %q", query, got, want)
		}
	}
}

func TestTimedDB_GroupsByStatement(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := tdb.ExecContext(ctx, "INSERT INTO notes (id, val) VALUES (?, ?)", id, "x"); err != nil {
			t.Fatalf("ExecContext: %v", err)
		}
	}
	rows, err := tdb.QueryContext(ctx, "SELECT id FROM notes")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()
	var val string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM notes WHERE id = ?", "a").Scan(&val); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	tx, err := tdb.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	_ = tx.Rollback()

	if got := collector.TotalRecorded(); got != 5 {
		t.Errorf("TotalRecorded = %d, want 5", got)
	}
	var labels []string
	for _, s := range collector.Snapshot(time.Now().Add(-time.Minute), 10).Queries.Slowest {
		labels = append(labels, s.Path)
	}
	want := []string{"BEGIN", "INSERT notes", "SELECT notes"}
	if diff := cmp.Diff(want, labels, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestTimedDB_NilCollector(t *testing.T) {
	tdb := NewTimedDB(openTimedTestDB(t), nil, time.Millisecond)
	if _, err := tdb.ExecContext(context.Background(), "INSERT INTO notes (id, val) VALUES (?, ?)", "1", "x"); err != nil {
		t.Fatalf("ExecContext with nil collector: %v", err)
	}
}

func TestTimedDB_ErrorsPassThrough(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO missing VALUES (?)", 1); err == nil {
		t.Error("ExecContext: expected error")
	}
	var v string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM notes WHERE id = ?", "nope").Scan(&v); err != sql.ErrNoRows {
		t.Errorf("QueryRowContext: got %v, want sql.ErrNoRows", err)
	}
	if got := collector.TotalRecorded(); got != 2 {
		t.Errorf("TotalRecorded = %d, want 2", got)
	}
	// a missing row is an answer, not a failure
	if got := collector.Snapshot(time.Now().Add(-time.Minute), 10).Queries.ErrorRate; got != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", got)
	}
}

func TestTimedDB_CancelledContext(t *testing.T) {
	tdb := NewTimedDB(openTimedTestDB(t), nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tdb.ExecContext(ctx, "INSERT INTO notes (id, val) VALUES ('1', 'x')"); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestTimedDB_Concurrent(t *testing.T) {
	tdb := NewTimedDB(openTimedTestDB(t), perf.NewCollector(1000), 0)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tdb.ExecContext(context.Background(), "INSERT INTO notes (id, val) VALUES (?, 'x')", i)
		}()
	}
	wg.Wait()
	var n int
	if err := tdb.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM notes").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 20 {
		t.Errorf("rows = %d, want 20", n)
	}
}
