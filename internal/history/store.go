// Package history persists one durable record plus one full output log
// per completed run, and keeps an append-only sqlite index for
// reporting.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	identifier TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	total_ms INTEGER NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_identifier ON runs(identifier);
`

// Store provides file + sqlite backed run history
type Store struct {
	dir string
	db  *sql.DB
}

// New creates a Store rooted at dir, creating it if needed
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "runs.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{dir: dir, db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// NewEntry builds a HistoryEntry from a finalized RunResult
func NewEntry(res domain.RunResult, startedAt, completedAt time.Time) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:          uuid.NewString(),
		Identifier:  res.Issue.Identifier,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Status:      res.Status,
		Iterations:  res.Iterations,
		TotalMs:     res.Duration.Milliseconds(),
		Error:       res.Error,
	}
}

// SaveRun writes the record and output log for one run. The per-issue
// directory holds the issue's most recent run; the sqlite index is
// append-only across runs.
func (s *Store) SaveRun(entry domain.HistoryEntry, outputLog string) error {
	issueDir := filepath.Join(s.dir, sanitize(entry.Identifier))
	if err := os.MkdirAll(issueDir, 0755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}

	record, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(issueDir, "run.json"), record, 0644); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(issueDir, "output.log"), []byte(outputLog), 0644); err != nil {
		return fmt.Errorf("writing output log: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, identifier, started_at, completed_at, status, iterations, total_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Identifier,
		entry.StartedAt,
		entry.CompletedAt,
		string(entry.Status),
		entry.Iterations,
		entry.TotalMs,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("indexing run: %w", err)
	}
	return nil
}

// LatestRun reads back the most recent record for an issue
func (s *Store) LatestRun(identifier string) (*domain.HistoryEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sanitize(identifier), "run.json"))
	if err != nil {
		return nil, err
	}
	var entry domain.HistoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing run record: %w", err)
	}
	return &entry, nil
}

// OutputLog reads back the full output log for an issue's latest run
func (s *Store) OutputLog(identifier string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sanitize(identifier), "output.log"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListRuns returns up to limit indexed runs, most recent first
func (s *Store) ListRuns(limit int) ([]domain.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, identifier, started_at, completed_at, status, iterations, total_ms, error
		FROM runs ORDER BY completed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Identifier, &e.StartedAt, &e.CompletedAt, &status, &e.Iterations, &e.TotalMs, &errMsg); err != nil {
			return nil, err
		}
		e.Status = domain.RunStatus(status)
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// sanitize makes an issue identifier safe as a directory name
func sanitize(identifier string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, identifier)
}
