package metastore

import (
	"context"
	"fmt"
)

// SetBlocksInvalid marks every block row matching (uid, checksum) invalid,
// then marks every version that owned any such block invalid, all in one
// transaction (spec.md §4.2, §9: cascading invalidation). It returns the
// distinct version uids affected.
func (s *Store) SetBlocksInvalid(ctx context.Context, uid, checksum string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("metastore: set_blocks_invalid: begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT version_uid FROM blocks WHERE uid = ? AND checksum = ?`, uid, checksum)
	if err != nil {
		return nil, fmt.Errorf("metastore: set_blocks_invalid: select: %w", err)
	}

	var affected []string

	for rows.Next() {
		var versionUID string
		if err := rows.Scan(&versionUID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("metastore: set_blocks_invalid: scan: %w", err)
		}

		affected = append(affected, versionUID)
	}

	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("metastore: set_blocks_invalid: %w", err)
	}

	_ = rows.Close()

	_, err = tx.ExecContext(ctx,
		`UPDATE blocks SET valid = 0 WHERE uid = ? AND checksum = ?`, uid, checksum)
	if err != nil {
		return nil, fmt.Errorf("metastore: set_blocks_invalid: update blocks: %w", err)
	}

	for _, versionUID := range affected {
		_, err = tx.ExecContext(ctx, `UPDATE versions SET valid = 0 WHERE uid = ?`, versionUID)
		if err != nil {
			return nil, fmt.Errorf("metastore: set_blocks_invalid: invalidate version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("metastore: set_blocks_invalid: commit: %w", err)
	}

	return affected, nil
}
