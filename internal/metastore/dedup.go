package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DedupMatch is the (uid, size) pair returned by a successful dedup lookup.
type DedupMatch struct {
	UID  string
	Size int64
}

// GetBlockByChecksum is the dedup index lookup (spec.md §4.2). It returns
// only a block row that is itself marked valid — invalid blocks are never
// surfaced, so corruption can never propagate through dedup reuse
// (spec.md §9: "Dedup must not propagate corruption").
func (s *Store) GetBlockByChecksum(ctx context.Context, checksum string) (DedupMatch, bool, error) {
	if err := s.checkOpen(); err != nil {
		return DedupMatch{}, false, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT uid, size FROM blocks WHERE checksum = ? AND valid = 1 AND uid IS NOT NULL LIMIT 1`,
		checksum)

	var m DedupMatch

	err := row.Scan(&m.UID, &m.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return DedupMatch{}, false, nil
	}

	if err != nil {
		return DedupMatch{}, false, fmt.Errorf("metastore: get_block_by_checksum: %w", err)
	}

	return m, true, nil
}
