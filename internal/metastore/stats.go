package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetStats upserts the stats row for a completed version (spec.md §4.2:
// "set_stats").
func (s *Store) SetStats(ctx context.Context, st Stats) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (
			version_uid, bytes_read, blocks_read, bytes_written, blocks_written,
			bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_uid) DO UPDATE SET
			bytes_read = excluded.bytes_read,
			blocks_read = excluded.blocks_read,
			bytes_written = excluded.bytes_written,
			blocks_written = excluded.blocks_written,
			bytes_dedup = excluded.bytes_dedup,
			blocks_dedup = excluded.blocks_dedup,
			bytes_sparse = excluded.bytes_sparse,
			blocks_sparse = excluded.blocks_sparse,
			duration_seconds = excluded.duration_seconds`,
		st.VersionUID, st.BytesRead, st.BlocksRead, st.BytesWritten, st.BlocksWritten,
		st.BytesDedup, st.BlocksDedup, st.BytesSparse, st.BlocksSparse, st.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("metastore: set_stats: %w", err)
	}

	return nil
}

// GetStats returns the stats row for versionUID, or ErrNotFound.
func (s *Store) GetStats(ctx context.Context, versionUID string) (Stats, error) {
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT version_uid, bytes_read, blocks_read, bytes_written, blocks_written,
		       bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds
		FROM stats WHERE version_uid = ?`, versionUID)

	var st Stats

	err := row.Scan(
		&st.VersionUID, &st.BytesRead, &st.BlocksRead, &st.BytesWritten, &st.BlocksWritten,
		&st.BytesDedup, &st.BlocksDedup, &st.BytesSparse, &st.BlocksSparse, &st.DurationSeconds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("%w: stats for version %s", ErrNotFound, versionUID)
	}

	if err != nil {
		return Stats{}, fmt.Errorf("metastore: get_stats: %w", err)
	}

	return st, nil
}

// GetAllStats returns every stats row ordered by version_uid, for the
// reporting surfaces of ls --stats style commands.
func (s *Store) GetAllStats(ctx context.Context) ([]Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT version_uid, bytes_read, blocks_read, bytes_written, blocks_written,
		       bytes_dedup, blocks_dedup, bytes_sparse, blocks_sparse, duration_seconds
		FROM stats ORDER BY version_uid`)
	if err != nil {
		return nil, fmt.Errorf("metastore: get_all_stats: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []Stats

	for rows.Next() {
		var st Stats

		err := rows.Scan(
			&st.VersionUID, &st.BytesRead, &st.BlocksRead, &st.BytesWritten, &st.BlocksWritten,
			&st.BytesDedup, &st.BlocksDedup, &st.BytesSparse, &st.BlocksSparse, &st.DurationSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("metastore: get_all_stats: scan: %w", err)
		}

		out = append(out, st)
	}

	return out, rows.Err()
}
