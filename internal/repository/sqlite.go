// Package repository persists finished runs in SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// SQLiteStore archives runs in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			query TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL,
			phase TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			final TEXT,
			error TEXT,
			statuses TEXT,
			segments TEXT,
			trace_url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at)`,
		`CREATE TABLE IF NOT EXISTS run_events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts DATETIME NOT NULL,
			name TEXT NOT NULL,
			detail TEXT,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun writes or replaces an archived run together with its event log.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	statuses, err := json.Marshal(run.Statuses)
	if err != nil {
		return fmt.Errorf("failed to marshal statuses: %w", err)
	}
	segments, err := json.Marshal(run.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var endedAt sql.NullTime
	if !run.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: run.EndedAt, Valid: true}
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, query, mode, phase, started_at, ended_at, final, error, statuses, segments, trace_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			query = excluded.query, mode = excluded.mode, phase = excluded.phase,
			started_at = excluded.started_at, ended_at = excluded.ended_at, final = excluded.final,
			error = excluded.error, statuses = excluded.statuses, segments = excluded.segments,
			trace_url = excluded.trace_url`,
		run.RunID, run.Query, run.Mode, run.Phase, startedAt, endedAt,
		nullStringBytes(run.Final), nullString(run.Error), string(statuses), string(segments), nullString(run.TraceURL))
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("failed to clear run events: %w", err)
	}
	for i, e := range run.Log {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_events (run_id, seq, ts, name, detail) VALUES (?, ?, ?, ?, ?)`,
			run.RunID, i, e.Timestamp, e.Name, e.Detail); err != nil {
			return fmt.Errorf("failed to insert run event: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves an archived run with its event log. It returns nil when
// the run is unknown.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, query, mode, phase, started_at, ended_at, final, error, statuses, segments, trace_url
		 FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, name, detail FROM run_events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	run.Log = []domain.LogEntry{}
	for rows.Next() {
		var e domain.LogEntry
		var detail sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.Name, &detail); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		run.Log = append(run.Log, e)
	}
	return run, rows.Err()
}

// ListRuns returns the most recently finished runs without their event logs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	query := `SELECT run_id, query, mode, phase, started_at, ended_at, final, error, statuses, segments, trace_url
		FROM runs ORDER BY COALESCE(ended_at, started_at) DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var endedAt sql.NullTime
	var final, errMsg, statuses, segments, traceURL sql.NullString
	if err := row.Scan(&run.RunID, &run.Query, &run.Mode, &run.Phase, &run.StartedAt, &endedAt,
		&final, &errMsg, &statuses, &segments, &traceURL); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		run.EndedAt = endedAt.Time
	}
	if final.Valid {
		run.Final = json.RawMessage(final.String)
	}
	run.Error = errMsg.String
	run.TraceURL = traceURL.String
	run.Statuses = map[string]domain.NodeStatus{}
	run.Segments = map[string]domain.SegmentRecord{}
	if statuses.Valid && statuses.String != "" {
		if err := json.Unmarshal([]byte(statuses.String), &run.Statuses); err != nil {
			return nil, fmt.Errorf("failed to decode statuses: %w", err)
		}
	}
	if segments.Valid && segments.String != "" {
		if err := json.Unmarshal([]byte(segments.String), &run.Segments); err != nil {
			return nil, fmt.Errorf("failed to decode segments: %w", err)
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
