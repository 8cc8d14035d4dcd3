// Package audit keeps a history of ptables runs in a SQLite database: when a
// policy was applied, from which file, how it ended and which commands were
// issued.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Command is one issued firewall command.
type Command struct {
	Version int    `json:"version"`
	Text    string `json:"text"`
}

// Run is a single invocation of apply.
type Run struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Config   string    `json:"config"`
	DryRun   bool      `json:"dry_run"`
	ExitCode int       `json:"exit_code"`
	Skipped  int       `json:"skipped"`
	Error    string    `json:"error,omitempty"`
	Commands []Command `json:"commands,omitempty"`
}

// Store provides persistent storage for runs.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string, retentionDays int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started DATETIME NOT NULL,
			finished DATETIME NOT NULL,
			config TEXT NOT NULL,
			dry_run INTEGER NOT NULL DEFAULT 0,
			exit_code INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);
		CREATE TABLE IF NOT EXISTS commands (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			version INTEGER NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit tables: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Store{db: db, retentionDays: retentionDays}, nil
}

// Write persists a run and its commands in one transaction.
func (s *Store) Write(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, started, finished, config, dry_run, exit_code, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Started.UTC(), run.Finished.UTC(), run.Config, run.DryRun, run.ExitCode, run.Skipped, run.Error)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO commands (run_id, seq, version, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare command insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range run.Commands {
		if _, err := stmt.Exec(run.ID, i, c.Version, c.Text); err != nil {
			return fmt.Errorf("insert command %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest runs, newest first, without their commands.
func (s *Store) Recent(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, started, finished, config, dry_run, exit_code, skipped, error
		FROM runs ORDER BY started DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var errText sql.NullString
		if err := rows.Scan(&run.ID, &run.Started, &run.Finished, &run.Config, &run.DryRun,
			&run.ExitCode, &run.Skipped, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Error = errText.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run with its commands in issue order.
func (s *Store) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var run Run
	var errText sql.NullString
	err := s.db.QueryRow(`SELECT id, started, finished, config, dry_run, exit_code, skipped, error
		FROM runs WHERE id = ?`, id).Scan(&run.ID, &run.Started, &run.Finished, &run.Config,
		&run.DryRun, &run.ExitCode, &run.Skipped, &errText)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", id, err)
	}
	run.Error = errText.String

	rows, err := s.db.Query(`SELECT version, text FROM commands WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Command
		if err := rows.Scan(&c.Version, &c.Text); err != nil {
			return Run{}, fmt.Errorf("scan command: %w", err)
		}
		run.Commands = append(run.Commands, c)
	}
	return run, rows.Err()
}

// Prune removes runs older than the retention period, relative to now.
func (s *Store) Prune(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.AddDate(0, 0, -s.retentionDays).UTC()
	if _, err := s.db.Exec(`DELETE FROM commands WHERE run_id IN (SELECT id FROM runs WHERE started < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("prune commands: %w", err)
	}
	result, err := s.db.Exec("DELETE FROM runs WHERE started < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored runs.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
