// Package catalog indexes Runs, StackRecords and EventRecords in a local
// sqlite database, separate from the opaque StorageSink artifact contract
// (SPEC_FULL.md §4.8). Schema evolution follows the teacher's
// ordered-migrations-slice pattern: each string in migrations runs exactly
// once, tracked in a schema_migrations table.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — one row per process lifetime
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		station_name  TEXT NOT NULL,
		started_at    INTEGER NOT NULL,
		config_json   TEXT NOT NULL,
		stop_reason   TEXT NOT NULL DEFAULT ''
	)`,
	// v2 — one row per StackedFrame emitted
	`CREATE TABLE IF NOT EXISTS stack_records (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		start_at    INTEGER NOT NULL,
		end_at      INTEGER NOT NULL,
		frame_count INTEGER NOT NULL,
		method      TEXT NOT NULL,
		output_path TEXT NOT NULL
	)`,
	// v3 — one row per Event emitted
	`CREATE TABLE IF NOT EXISTS event_records (
		id               TEXT PRIMARY KEY,
		run_id           TEXT NOT NULL,
		first_seq        INTEGER NOT NULL,
		last_seq         INTEGER NOT NULL,
		peak_intensity   REAL NOT NULL,
		trajectory_len   INTEGER NOT NULL,
		truncated        INTEGER NOT NULL DEFAULT 0,
		artifact_dir     TEXT NOT NULL,
		created_at       INTEGER NOT NULL
	)`,
	// v4, v5 — indexes for the common "what ran recently" queries
	`CREATE INDEX IF NOT EXISTS idx_event_records_run ON event_records(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stack_records_run ON stack_records(run_id)`,
	// v6 — WAL for concurrent readers while the pipeline writes
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a sqlite database and exposes the catalog's read/write API.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the database at path and applies pending
// migrations. Use ":memory:" for ephemeral in-process storage (tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[catalog] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[catalog] applied migration v%d", v)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Optimize runs PRAGMA optimize, the cheap periodic maintenance step the
// Supervisor's hourly cron job invokes (SPEC_FULL.md §4.12).
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	return err
}

// CreateRun inserts the Run row for one process lifetime.
func (s *Store) CreateRun(ctx context.Context, id, station, configJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, station_name, started_at, config_json) VALUES(?, ?, ?, ?)`,
		id, station, time.Now().UTC().Unix(), configJSON,
	)
	return err
}

// CloseRun records why a run stopped.
func (s *Store) CloseRun(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET stop_reason = ? WHERE id = ?`, reason, id)
	return err
}

// InsertStackRecord indexes one emitted StackedFrame.
func (s *Store) InsertStackRecord(ctx context.Context, runID string, start, end time.Time, frameCount int, method, outputPath string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stack_records(run_id, start_at, end_at, frame_count, method, output_path) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, start.UTC().Unix(), end.UTC().Unix(), frameCount, method, outputPath,
	)
	return err
}

// InsertEventRecord indexes one promoted, materialized Event.
func (s *Store) InsertEventRecord(ctx context.Context, id, runID string, firstSeq, lastSeq uint64, peak float64, trajLen int, truncated bool, artifactDir string) error {
	trunc := 0
	if truncated {
		trunc = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_records(id, run_id, first_seq, last_seq, peak_intensity, trajectory_len, truncated, artifact_dir, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, firstSeq, lastSeq, peak, trajLen, trunc, artifactDir, time.Now().UTC().Unix(),
	)
	return err
}

// EventRecord is a row from event_records, used for catalog reads.
type EventRecord struct {
	ID            string
	RunID         string
	FirstSeq      uint64
	LastSeq       uint64
	PeakIntensity float64
	TrajectoryLen int
	Truncated     bool
	ArtifactDir   string
}

// RecentEvents returns up to limit event_records rows for runID, most
// recent first.
func (s *Store) RecentEvents(ctx context.Context, runID string, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, first_seq, last_seq, peak_intensity, trajectory_len, truncated, artifact_dir
		 FROM event_records WHERE run_id = ? ORDER BY created_at DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var trunc int
		if err := rows.Scan(&r.ID, &r.RunID, &r.FirstSeq, &r.LastSeq, &r.PeakIntensity, &r.TrajectoryLen, &trunc, &r.ArtifactDir); err != nil {
			return nil, err
		}
		r.Truncated = trunc != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
