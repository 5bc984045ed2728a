package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// currentSchemaVersion is stored in SQLite's user_version pragma, following
// the teacher's "derived index" convention — here the SQLite database *is*
// the primary store, so a version mismatch is just a migration trigger, not
// a replay-from-source-of-truth.
const currentSchemaVersion = 1

// sqliteBusyTimeoutMS is how long SQLite waits for a write lock before
// returning SQLITE_BUSY.
const sqliteBusyTimeoutMS = 10000

// Store is the Meta Backend: a single SQLite connection serialised onto the
// engine's thread (spec.md §5: "Meta Backend access is serialised on a
// single session").
type Store struct {
	db     *sql.DB
	closed bool
}

// Open creates (if needed) and opens the SQLite database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("metastore: path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("metastore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("metastore: open sqlite: %w", err)
	}

	// The schema and refcount-retry protocol assume a single writer session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metastore: ping sqlite: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db}

	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`, sqliteBusyTimeoutMS))
	if err != nil {
		return fmt.Errorf("metastore: apply pragmas: %w", err)
	}

	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	var userVersion int

	row := s.db.QueryRowContext(ctx, "PRAGMA user_version")
	if err := row.Scan(&userVersion); err != nil {
		return fmt.Errorf("metastore: read user_version: %w", err)
	}

	if userVersion == currentSchemaVersion {
		return nil
	}

	if userVersion != 0 {
		return fmt.Errorf("metastore: schema version %d is newer than supported %d", userVersion, currentSchemaVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metastore: begin migration: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("metastore: schema statement %d: %w", i+1, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("metastore: set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metastore: commit migration: %w", err)
	}

	return nil
}

// Close closes the underlying SQLite connection.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("metastore: close: %w", err)
	}

	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return ErrClosed
	}

	return nil
}
