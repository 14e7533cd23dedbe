package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"portal/internal/adapters/http/perf"
	"portal/internal/adapters/logging"
)

// SQLDB is what every store needs from a database handle. *sql.DB and
// *TimedDB both satisfy it.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var (
	_ SQLDB = (*sql.DB)(nil)
	_ SQLDB = (*TimedDB)(nil)
)

// DefaultSlowQuery is the threshold used when none is configured.
const DefaultSlowQuery = 10 * time.Millisecond

// TimedDB times every statement against the local store, labelled by verb
// and table so the perf dashboard shows "UPDATE outbox" rather than raw SQL.
type TimedDB struct {
	db        *sql.DB
	collector *perf.Collector
	slow      time.Duration
}

// NewTimedDB wraps db. A non-positive slow threshold means DefaultSlowQuery.
// PRE: db is open; collector may be nil
func NewTimedDB(db *sql.DB, collector *perf.Collector, slow time.Duration) *TimedDB {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &TimedDB{db: db, collector: collector, slow: slow}
}

// tableAfter finds the table a statement touches.
var tableAfter = regexp.MustCompile(`(?i)\b(?:FROM|INTO|UPDATE|JOIN)\s+["\x60]?([A-Za-z_][A-Za-z0-9_]*)`)

// statementLabel reduces a query to "VERB table". Argument values never
// appear in the label.
func statementLabel(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "EMPTY"
	}
	verb := strings.ToUpper(fields[0])
	if verb == "WITH" {
		verb = "SELECT"
	}
	if m := tableAfter.FindStringSubmatch(query); m != nil {
		return verb + " " + strings.ToLower(m[1])
	}
	return verb
}

func (t *TimedDB) observe(ctx context.Context, label string, start time.Time, err error) {
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Microseconds()) / 1000.0
	log := logging.FromContext(ctx).With("query", label, "duration_ms", durationMs)
	switch {
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		log.Debug("query_failed", "error", err.Error())
	case elapsed >= t.slow:
		log.Warn("slow_query")
	default:
		log.Debug("query")
	}
	t.collector.Record(perf.Entry{
		Kind:       perf.KindQuery,
		Path:       label,
		Failed:     err != nil && !errors.Is(err, sql.ErrNoRows),
		DurationMs: durationMs,
		Timestamp:  start,
	})
}

// ExecContext runs a statement with timing.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.db.ExecContext(ctx, query, args...)
	t.observe(ctx, statementLabel(query), start, err)
	return res, err
}

// QueryContext runs a query with timing. Only the time to the first row is
// measured.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.observe(ctx, statementLabel(query), start, err)
	return rows, err
}

// QueryRowContext runs a single-row query with timing. Scan errors surface
// later and are not logged here.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.observe(ctx, statementLabel(query), start, row.Err())
	return row
}

// BeginTx starts a transaction. Statements inside it run on the *sql.Tx and
// are not timed individually.
func (t *TimedDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	start := time.Now()
	tx, err := t.db.BeginTx(ctx, opts)
	t.observe(ctx, "BEGIN", start, err)
	return tx, err
}
