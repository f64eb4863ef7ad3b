package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run matches a lookup
var ErrRunNotFound = errors.New("package run not found")

// Store provides SQLite-backed run history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Store initialized successfully", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

const runColumns = `
	id, run_id, source_root, revision, commit_id, backend, version, version_found,
	artifact_path, artifact_sha256, artifact_size, entry_count, status,
	error_message, start_time, end_time
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*PackageRun, error) {
	run := &PackageRun{}
	err := row.Scan(
		&run.ID, &run.RunID, &run.SourceRoot, &run.Revision, &run.Commit,
		&run.Backend, &run.Version, &run.VersionFound, &run.ArtifactPath,
		&run.ArtifactSHA256, &run.ArtifactSize, &run.EntryCount, &run.Status,
		&run.ErrorMessage, &run.StartTime, &run.EndTime,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CreateRun inserts a new PackageRun and sets its ID
func (s *Store) CreateRun(run *PackageRun) error {
	const query = `
		INSERT INTO package_runs (
			run_id, source_root, revision, commit_id, backend, version, version_found,
			artifact_path, artifact_sha256, artifact_size, entry_count, status,
			error_message, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.RunID, run.SourceRoot, run.Revision, run.Commit, run.Backend,
		run.Version, run.VersionFound, run.ArtifactPath, run.ArtifactSHA256,
		run.ArtifactSize, run.EntryCount, run.Status, run.ErrorMessage,
		run.StartTime, run.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert package run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateRun updates an existing PackageRun by ID
func (s *Store) UpdateRun(run *PackageRun) error {
	const query = `
		UPDATE package_runs SET
			source_root = ?, revision = ?, commit_id = ?, backend = ?, version = ?,
			version_found = ?, artifact_path = ?, artifact_sha256 = ?,
			artifact_size = ?, entry_count = ?, status = ?, error_message = ?,
			start_time = ?, end_time = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.SourceRoot, run.Revision, run.Commit, run.Backend, run.Version,
		run.VersionFound, run.ArtifactPath, run.ArtifactSHA256,
		run.ArtifactSize, run.EntryCount, run.Status, run.ErrorMessage,
		run.StartTime, run.EndTime, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update package run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, run.ID)
	}

	return nil
}

// GetRun retrieves a PackageRun by its run ID
func (s *Store) GetRun(runID string) (*PackageRun, error) {
	query := "SELECT " + runColumns + " FROM package_runs WHERE run_id = ?"

	run, err := scanRun(s.db.QueryRow(query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to query package run: %w", err)
	}

	return run, nil
}

// LastCompletedRun returns the most recent successful run
func (s *Store) LastCompletedRun() (*PackageRun, error) {
	query := "SELECT " + runColumns + " FROM package_runs WHERE status = ? ORDER BY start_time DESC, id DESC LIMIT 1"

	run, err := scanRun(s.db.QueryRow(query, RunStatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to query package run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves PackageRuns newest first, optionally limited
func (s *Store) ListRuns(limit int) ([]PackageRun, error) {
	query := "SELECT " + runColumns + " FROM package_runs ORDER BY start_time DESC, id DESC"
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query package runs: %w", err)
	}
	defer rows.Close()

	var runs []PackageRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating package runs: %w", err)
	}

	return runs, nil
}
