// Package sqlite is the transactional WorkerStore. Each SaveAll replaces the
// whole worker set in one transaction, preserving the snapshot semantics of
// the JSON store behind the same port.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
)

var _ output.WorkerStore = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'stopped',
		busy INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_used_at DATETIME,
		last_error TEXT
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) LoadAll() ([]entity.WorkerInfo, error) {
	rows, err := s.db.Query(`SELECT id, name, state, busy, created_at, last_used_at, last_error FROM workers`)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var out []entity.WorkerInfo
	for rows.Next() {
		var (
			w        entity.WorkerInfo
			busy     int
			lastUsed sql.NullTime
			lastErr  sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.State, &busy, &w.CreatedAt, &lastUsed, &lastErr); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Busy = busy != 0
		if lastUsed.Valid {
			w.LastUsedAt = lastUsed.Time
		}
		if lastErr.Valid {
			w.LastError = lastErr.String
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) SaveAll(workers []entity.WorkerInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM workers`); err != nil {
		return fmt.Errorf("clear workers: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO workers (id, name, state, busy, created_at, last_used_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, w := range workers {
		busy := 0
		if w.Busy {
			busy = 1
		}
		var lastUsed any
		if !w.LastUsedAt.IsZero() {
			lastUsed = w.LastUsedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(w.ID, w.Name, string(w.State), busy,
			w.CreatedAt.UTC().Format(time.RFC3339Nano), lastUsed, w.LastError); err != nil {
			return fmt.Errorf("insert worker %s: %w", w.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
