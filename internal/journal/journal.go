// Package journal keeps an append-only audit trail of lifecycle events in
// its own sqlite file, separate from the mutable coordination tables. Rows
// are never updated or deleted, so the trail survives reaper pruning.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event names recorded by the lifecycle workers.
const (
	EventAdmitted  = "admitted"
	EventFill      = "fill"
	EventRequested = "requested"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID     int64   `json:"id"`
	TS     int64   `json:"ts"`
	UID    string  `json:"uid"`
	InstID string  `json:"inst_id,omitempty"`
	Event  string  `json:"event"`
	Action string  `json:"action,omitempty"`
	Status string  `json:"status,omitempty"`
	Step   int     `json:"step"`
	Qty    float64 `json:"qty,omitempty"`
	Price  float64 `json:"price,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Store owns the journal database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open initializes the journal at path and ensures the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			uid TEXT NOT NULL,
			inst_id TEXT,
			event TEXT NOT NULL,
			action TEXT,
			status TEXT,
			step INTEGER NOT NULL DEFAULT 0,
			qty REAL NOT NULL DEFAULT 0,
			price REAL NOT NULL DEFAULT 0,
			reason TEXT
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_journal_uid_id ON lifecycle_journal(uid, id);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_journal_ts ON lifecycle_journal(ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append records one event. A zero TS is stamped with the current time.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.UID) == "" {
		return fmt.Errorf("journal: entry requires uid")
	}
	if strings.TrimSpace(e.Event) == "" {
		return fmt.Errorf("journal: entry requires event")
	}
	if e.TS == 0 {
		e.TS = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_journal (ts, uid, inst_id, event, action, status, step, qty, price, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TS, e.UID, e.InstID, e.Event, e.Action, e.Status, e.Step, e.Qty, e.Price, e.Reason)
	return err
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	return s.query(ctx,
		`SELECT id, ts, uid, inst_id, event, action, status, step, qty, price, reason
		 FROM lifecycle_journal ORDER BY id DESC LIMIT ?`, limit)
}

// ByUID returns every entry for one position, oldest first.
func (s *Store) ByUID(ctx context.Context, uid string) ([]Entry, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("journal: uid is required")
	}
	return s.query(ctx,
		`SELECT id, ts, uid, inst_id, event, action, status, step, qty, price, reason
		 FROM lifecycle_journal WHERE uid = ? ORDER BY id ASC`, uid)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var instID, action, status, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.UID, &instID, &e.Event, &action, &status, &e.Step, &e.Qty, &e.Price, &reason); err != nil {
			return nil, err
		}
		e.InstID = instID.String
		e.Action = action.String
		e.Status = status.String
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
