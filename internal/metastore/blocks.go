package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetBlockParams describes one block upsert (spec.md §4.2: "set_block").
type SetBlockParams struct {
	VersionUID string
	ID         int64
	UID        *string // nil for a sparse block
	Checksum   *string // nil iff UID is nil
	Size       int64
	Valid      bool
}

// SetBlock upserts one block row, running in its own transaction
// (equivalent to the spec's commit=true path). For batched writes use
// [Store.NewBatch] instead.
func (s *Store) SetBlock(ctx context.Context, p SetBlockParams, upsert bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metastore: set_block: begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if err := setBlockTx(ctx, tx, p, upsert); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metastore: set_block: commit: %w", err)
	}

	return nil
}

// setBlockTx is the transactional core shared by SetBlock and Batch.SetBlock.
//
// When upsert is true, an existing (version_uid, id) row's old uid is
// ref_del'd and the new uid (if any) is ref_add'd — this is the normal
// backup-loop path. When upsert is false, the row is assumed not to already
// exist (spec.md §9 open question (c): callers must guarantee the version
// is freshly created) and only ref_add runs, for the fast insert path used
// by prepare_version.
func setBlockTx(ctx context.Context, tx *sql.Tx, p SetBlockParams, upsert bool) error {
	if (p.UID == nil) != (p.Checksum == nil) {
		return errors.New("metastore: set_block: uid and checksum must be both nil or both set")
	}

	now := time.Now().UTC().Unix()

	if upsert {
		var oldUID sql.NullString

		row := tx.QueryRowContext(ctx,
			`SELECT uid FROM blocks WHERE version_uid = ? AND id = ?`, p.VersionUID, p.ID)

		err := row.Scan(&oldUID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// No prior row: fall through to insert-only refcount handling below.
		case err != nil:
			return fmt.Errorf("metastore: set_block: lookup: %w", err)
		default:
			newUIDStr := ""
			if p.UID != nil {
				newUIDStr = *p.UID
			}

			if oldUID.Valid != (p.UID != nil) || (oldUID.Valid && oldUID.String != newUIDStr) {
				if oldUID.Valid {
					if err := refDelTx(ctx, tx, oldUID.String); err != nil {
						return fmt.Errorf("metastore: set_block: %w", err)
					}
				}

				if p.UID != nil {
					if err := refAddTx(ctx, tx, *p.UID); err != nil {
						return fmt.Errorf("metastore: set_block: %w", err)
					}
				}
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE blocks SET uid = ?, checksum = ?, size = ?, date = ?, valid = ?
				WHERE version_uid = ? AND id = ?`,
				nullableString(p.UID), nullableString(p.Checksum), p.Size, now, boolToInt(p.Valid),
				p.VersionUID, p.ID,
			)
			if err != nil {
				return fmt.Errorf("metastore: set_block: update: %w", err)
			}

			return nil
		}
	}

	if p.UID != nil {
		if err := refAddTx(ctx, tx, *p.UID); err != nil {
			return fmt.Errorf("metastore: set_block: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO blocks (version_uid, id, uid, checksum, size, date, valid)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.VersionUID, p.ID, nullableString(p.UID), nullableString(p.Checksum), p.Size, now, boolToInt(p.Valid),
	)
	if err != nil {
		return fmt.Errorf("metastore: set_block: insert: %w", err)
	}

	return nil
}

// GetBlocks returns every block of versionUID in id order.
func (s *Store) GetBlocks(ctx context.Context, versionUID string) ([]Block, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version_uid, id, uid, checksum, size, date, valid FROM blocks
		 WHERE version_uid = ? ORDER BY id`, versionUID)
	if err != nil {
		return nil, fmt.Errorf("metastore: get_blocks: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var out []Block

	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("metastore: get_blocks: scan: %w", err)
		}

		out = append(out, b)
	}

	return out, rows.Err()
}

// GetBlock returns a single block, or ErrNotFound.
func (s *Store) GetBlock(ctx context.Context, versionUID string, id int64) (Block, error) {
	if err := s.checkOpen(); err != nil {
		return Block{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT version_uid, id, uid, checksum, size, date, valid FROM blocks
		 WHERE version_uid = ? AND id = ?`, versionUID, id)

	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Block{}, fmt.Errorf("%w: block %s/%d", ErrNotFound, versionUID, id)
	}

	if err != nil {
		return Block{}, fmt.Errorf("metastore: get_block: %w", err)
	}

	return b, nil
}

func queryBlocksTx(ctx context.Context, tx *sql.Tx, versionUID string) ([]Block, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT version_uid, id, uid, checksum, size, date, valid FROM blocks
		 WHERE version_uid = ? ORDER BY id`, versionUID)
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	var out []Block

	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, b)
	}

	return out, rows.Err()
}

func scanBlock(row rowScanner) (Block, error) {
	var (
		b        Block
		uid      sql.NullString
		checksum sql.NullString
		dateUnix int64
		validInt int
	)

	err := row.Scan(&b.VersionUID, &b.ID, &uid, &checksum, &b.Size, &dateUnix, &validInt)
	if err != nil {
		return Block{}, err
	}

	if uid.Valid {
		v := uid.String
		b.UID = &v
	}

	if checksum.Valid {
		v := checksum.String
		b.Checksum = &v
	}

	b.Date = time.Unix(dateUnix, 0).UTC()
	b.Valid = validInt != 0

	return b, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}

	return *s
}
