package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// refAddTx bumps uid's refcount, inserting a refs=1 row if none exists. The
// update-first / insert-on-conflict-retry protocol matches spec.md §9: "the
// hot path is already exists, just bump".
func refAddTx(ctx context.Context, tx *sql.Tx, uid string) error {
	now := time.Now().UTC().Unix()

	res, err := tx.ExecContext(ctx,
		`UPDATE refcounts SET refs = refs + 1, modified = ? WHERE uid = ?`, now, uid)
	if err != nil {
		return fmt.Errorf("ref_add: update: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refcounts (uid, refs, modified) VALUES (?, 1, ?)`, uid, now)
	if err == nil {
		return nil
	}

	if !isUniqueConstraintErr(err) {
		return fmt.Errorf("ref_add: insert: %w", err)
	}

	// Lost a race with a concurrent insert on the same connection/tx
	// sequence (spec.md §4.2: "on primary-key collision it retries the
	// update"). A single-writer session makes this rare but the retry keeps
	// the protocol correct if it ever happens.
	res, err = tx.ExecContext(ctx,
		`UPDATE refcounts SET refs = refs + 1, modified = ? WHERE uid = ?`, now, uid)
	if err != nil {
		return fmt.Errorf("ref_add: retry update: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ref_add: retry update affected no rows for uid %q", uid)
	}

	return nil
}

// refDelTx decrements uid's refcount. A row that doesn't exist is a
// programmer error (spec.md §4.2: DANGLING_REFCOUNT).
func refDelTx(ctx context.Context, tx *sql.Tx, uid string) error {
	now := time.Now().UTC().Unix()

	res, err := tx.ExecContext(ctx,
		`UPDATE refcounts SET refs = refs - 1, modified = ? WHERE uid = ?`, now, uid)
	if err != nil {
		return fmt.Errorf("ref_del: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ref_del: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: uid %q", ErrDanglingRefcount, uid)
	}

	return nil
}

func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	return false
}

// GetRefCount returns the refcount row for uid, or a zero RefCount with
// Refs == 0 if none exists (a uid with no row has never been referenced).
func (s *Store) GetRefCount(ctx context.Context, uid string) (RefCount, error) {
	if err := s.checkOpen(); err != nil {
		return RefCount{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT uid, refs, modified FROM refcounts WHERE uid = ?`, uid)

	var (
		rc       RefCount
		modified int64
	)

	err := row.Scan(&rc.UID, &rc.Refs, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return RefCount{UID: uid, Refs: 0}, nil
	}

	if err != nil {
		return RefCount{}, fmt.Errorf("metastore: get_refcount: %w", err)
	}

	rc.Modified = time.Unix(modified, 0).UTC()

	return rc, nil
}

// GetAllBlockUIDs returns distinct non-null blob uids referenced by any
// block, optionally filtered to those with the given textual prefix
// (spec.md §4.2: "get_all_block_uids(prefix?)").
func (s *Store) GetAllBlockUIDs(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `SELECT DISTINCT uid FROM blocks WHERE uid IS NOT NULL`

	args := []any{}
	if prefix != "" {
		query += ` AND uid LIKE ?`
		args = append(args, prefix+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: get_all_block_uids: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []string

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("metastore: get_all_block_uids: scan: %w", err)
		}

		out = append(out, uid)
	}

	return out, rows.Err()
}
