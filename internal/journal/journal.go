// Package journal persists every reconciliation action to SQLite so the
// history of a session can be inspected after the supervisor exits.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aizenshtat/autonomous-coding-agent/internal/reconcile"
)

// Entry is one journaled action.
type Entry struct {
	ID        string
	SessionID string
	Issue     int
	Feature   string
	Action    string
	Result    string
	Detail    string
	CreatedAt time.Time
}

// Filter narrows History. Zero fields match everything.
type Filter struct {
	SessionID string
	Issue     int
	Result    string
	Limit     int
}

// Journal is an append-only action log for one session id.
type Journal struct {
	db        *sql.DB
	sessionID string
	now       func() time.Time
}

var _ reconcile.Recorder = (*Journal)(nil)

// New creates a Journal on an existing connection and runs migrations.
func New(db *sql.DB, sessionID string) (*Journal, error) {
	j := &Journal{db: db, sessionID: sessionID, now: time.Now}
	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return j, nil
}

// Open opens (or creates) the SQLite journal at path. ":memory:" is accepted.
func Open(path, sessionID string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}
	return New(db, sessionID)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// SessionID returns the session entries are written under.
func (j *Journal) SessionID() string { return j.sessionID }

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS journal_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			issue_number INTEGER NOT NULL DEFAULT 0,
			feature TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			result TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_session ON journal_entries(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_issue ON journal_entries(issue_number)`,
	}
	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record journals a reconciliation outcome.
func (j *Journal) Record(ctx context.Context, o reconcile.Outcome) error {
	return j.Append(ctx, Entry{
		Issue:   o.Issue,
		Feature: o.Feature,
		Action:  string(o.Action),
		Result:  string(o.Result),
		Detail:  o.Reason,
	})
}

// Append writes e, filling id, session and timestamp when empty.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SessionID == "" {
		e.SessionID = j.sessionID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, session_id, issue_number, feature, action, result, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Issue, e.Feature, e.Action, e.Result, e.Detail,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// History returns matching entries, newest first.
func (j *Journal) History(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Issue > 0 {
		where = append(where, "issue_number = ?")
		args = append(args, f.Issue)
	}
	if f.Result != "" {
		where = append(where, "result = ?")
		args = append(args, f.Result)
	}

	query := `SELECT id, session_id, issue_number, feature, action, result, detail, created_at FROM journal_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Issue, &e.Feature, &e.Action, &e.Result, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary counts entries per result for a session.
func (j *Journal) Summary(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT result, COUNT(*) FROM journal_entries WHERE session_id = ? GROUP BY result`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var (
			result string
			n      int
		)
		if err := rows.Scan(&result, &n); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out[result] = n
	}
	return out, rows.Err()
}

// Purge deletes entries older than olderThan and returns the count removed.
func (j *Journal) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := j.now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge journal: %w", err)
	}
	return res.RowsAffected()
}
