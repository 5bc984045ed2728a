package metastore

import (
	"context"
	"fmt"
	"time"
)

// deleteCandidateBatchSize matches the engine's cleanup_fast harvesting size
// (spec.md §4.1: "repeatedly harvests up to 100 uids").
const deleteCandidateBatchSize = 100

// ForEachDeleteCandidateBatch repeatedly fetches up to 100 uids with
// refs = 0 whose refcount row was last modified at or before
// now - graceSeconds (both in whole seconds, so a grace of 0 includes rows
// modified in the current second), passing each batch to process. After process returns
// successfully for a batch, the corresponding refcount rows are deleted
// (spec.md §4.2: "get_delete_candidates" — "the caller is expected to
// remove them from the data backend before the returned batch is dropped;
// after each batch, the backend deletes the corresponding refcount rows").
//
// Iteration stops when a batch comes back empty, or when process returns an
// error (the error is returned as-is, and that batch's refcount rows are
// left untouched for a future run to retry).
func (s *Store) ForEachDeleteCandidateBatch(ctx context.Context, graceSeconds int64, process func(uids []string) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-time.Duration(graceSeconds) * time.Second).Unix()

	for {
		uids, err := s.nextDeleteCandidateBatch(ctx, cutoff)
		if err != nil {
			return err
		}

		if len(uids) == 0 {
			return nil
		}

		if err := process(uids); err != nil {
			return fmt.Errorf("metastore: delete candidate batch: %w", err)
		}

		if err := s.deleteRefCounts(ctx, uids); err != nil {
			return err
		}
	}
}

func (s *Store) nextDeleteCandidateBatch(ctx context.Context, cutoff int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid FROM refcounts WHERE refs = 0 AND modified <= ? LIMIT ?`,
		cutoff, deleteCandidateBatchSize)
	if err != nil {
		return nil, fmt.Errorf("metastore: get_delete_candidates: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []string

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("metastore: get_delete_candidates: scan: %w", err)
		}

		out = append(out, uid)
	}

	return out, rows.Err()
}

func (s *Store) deleteRefCounts(ctx context.Context, uids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metastore: delete refcounts: begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM refcounts WHERE uid = ? AND refs = 0`)
	if err != nil {
		return fmt.Errorf("metastore: delete refcounts: prepare: %w", err)
	}

	defer func() { _ = stmt.Close() }()

	for _, uid := range uids {
		if _, err := stmt.ExecContext(ctx, uid); err != nil {
			return fmt.Errorf("metastore: delete refcounts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metastore: delete refcounts: commit: %w", err)
	}

	return nil
}
