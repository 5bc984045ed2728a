package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetVersion mints a new version_uid and inserts a version row
// (spec.md §4.2: "set_version(name, size, size_bytes, valid) → uid").
func (s *Store) SetVersion(ctx context.Context, name string, size, sizeBytes int64, valid bool) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	uid, err := newVersionUID()
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO versions (uid, name, date, size, size_bytes, valid) VALUES (?, ?, ?, ?, ?, ?)`,
		uid, name, time.Now().UTC().Unix(), size, sizeBytes, boolToInt(valid),
	)
	if err != nil {
		return "", fmt.Errorf("metastore: set_version: %w", err)
	}

	return uid, nil
}

// GetVersion returns a single version, or ErrNotFound.
func (s *Store) GetVersion(ctx context.Context, uid string) (Version, error) {
	if err := s.checkOpen(); err != nil {
		return Version{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT uid, name, date, size, size_bytes, valid FROM versions WHERE uid = ?`, uid)

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("%w: version %q", ErrNotFound, uid)
	}

	if err != nil {
		return Version{}, fmt.Errorf("metastore: get_version: %w", err)
	}

	return v, nil
}

// GetVersions returns all versions ordered by (name, date), as spec.md §4.2
// requires.
func (s *Store) GetVersions(ctx context.Context) ([]Version, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, name, date, size, size_bytes, valid FROM versions ORDER BY name, date`)
	if err != nil {
		return nil, fmt.Errorf("metastore: get_versions: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []Version

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("metastore: get_versions: scan: %w", err)
		}

		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metastore: get_versions: %w", err)
	}

	return out, nil
}

// SetVersionValid flips a version to valid.
func (s *Store) SetVersionValid(ctx context.Context, uid string) error {
	return s.setVersionValidity(ctx, uid, true)
}

// SetVersionInvalid flips a version to invalid.
func (s *Store) SetVersionInvalid(ctx context.Context, uid string) error {
	return s.setVersionValidity(ctx, uid, false)
}

func (s *Store) setVersionValidity(ctx context.Context, uid string, valid bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE versions SET valid = ? WHERE uid = ?`, boolToInt(valid), uid)
	if err != nil {
		return fmt.Errorf("metastore: set version validity: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metastore: set version validity: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: version %q", ErrNotFound, uid)
	}

	return nil
}

// RmVersion deletes the version and all its block rows, decrementing
// refcounts for every block removed (spec.md §4.2: "rm_version"). It
// returns the number of block rows deleted.
func (s *Store) RmVersion(ctx context.Context, uid string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("metastore: rm_version: begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	blocks, err := queryBlocksTx(ctx, tx, uid)
	if err != nil {
		return 0, fmt.Errorf("metastore: rm_version: %w", err)
	}

	for _, b := range blocks {
		if b.UID != nil {
			if err := refDelTx(ctx, tx, *b.UID); err != nil {
				return 0, fmt.Errorf("metastore: rm_version: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE version_uid = ?`, uid); err != nil {
		return 0, fmt.Errorf("metastore: rm_version: delete blocks: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE uid = ?`, uid)
	if err != nil {
		return 0, fmt.Errorf("metastore: rm_version: delete version: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%w: version %q", ErrNotFound, uid)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("metastore: rm_version: commit: %w", err)
	}

	return int64(len(blocks)), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (Version, error) {
	var (
		v         Version
		dateUnix  int64
		validInt  int
	)

	err := row.Scan(&v.UID, &v.Name, &dateUnix, &v.Size, &v.SizeBytes, &validInt)
	if err != nil {
		return Version{}, err
	}

	v.Date = time.Unix(dateUnix, 0).UTC()
	v.Valid = validInt != 0

	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
