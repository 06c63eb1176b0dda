// Package history keeps an append-only SQLite log of scheduler events. It is
// an audit trail: the daemon writes to it but never restores state from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tomato/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store is a handle on the history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path with WAL
// journaling and a 5-second busy timeout, and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", SchemaDDL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history %s: %w", path, err)
		}
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing history database for queries. It fails if
// the file does not exist.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("history not found: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Safe to call on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends ev. It satisfies scheduler.Recorder.
func (s *Store) Record(ctx context.Context, ev protocol.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	var announcement sql.NullString
	if ev.Announcement != "" {
		announcement = sql.NullString{String: ev.Announcement, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (kind, phase, next_phase, announcement, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(ev.Kind), string(ev.Phase), string(ev.NextPhase), announcement, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("record %s: %w", ev.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first. limit <= 0 means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]protocol.Event, error) {
	query := `SELECT kind, phase, next_phase, announcement, created_at FROM events ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []protocol.Event{}
	for rows.Next() {
		var (
			ev           protocol.Event
			kind         string
			phase, next  string
			announcement sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&kind, &phase, &next, &announcement, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = protocol.EventKind(kind)
		ev.Phase = protocol.Phase(phase)
		ev.NextPhase = protocol.Phase(next)
		ev.Announcement = announcement.String
		ev.At = time.UnixMilli(createdAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CompletedSince counts Busy phases acknowledged into a break at or after since.
func (s *Store) CompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE kind = ? AND phase = ? AND created_at >= ?`,
		string(protocol.EventAcknowledged), string(protocol.PhaseBusy), since.UnixMilli()).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("count completed: %w", err)
	}
	return n, nil
}
