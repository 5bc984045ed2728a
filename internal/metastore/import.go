package metastore

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Import reads a dump written by [Store.Export] and recreates its version
// and block rows, refcounting every referenced blob uid as if the blocks had
// just been backed up. It refuses a version_uid that already exists
// (spec.md §6: "Import refuses a duplicate version_uid").
func (s *Store) Import(ctx context.Context, r io.Reader) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	br := bufio.NewReader(r)

	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("metastore: import: read header: %w", err)
	}

	if err := checkMetadataHeader(header); err != nil {
		return "", err
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	versionRecord, err := cr.Read()
	if err != nil {
		return "", fmt.Errorf("metastore: import: read version line: %w", err)
	}

	v, err := parseVersionRecord(versionRecord)
	if err != nil {
		return "", fmt.Errorf("metastore: import: %w", err)
	}

	var blocks []Block

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return "", fmt.Errorf("metastore: import: read block line: %w", err)
		}

		b, err := parseBlockRecord(record)
		if err != nil {
			return "", fmt.Errorf("metastore: import: %w", err)
		}

		blocks = append(blocks, b)
	}

	if err := s.importVersion(ctx, v, blocks); err != nil {
		return "", err
	}

	return v.UID, nil
}

func (s *Store) importVersion(ctx context.Context, v Version, blocks []Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metastore: import: begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	var exists int

	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE uid = ?`, v.UID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("metastore: import: check existing: %w", err)
	}

	if exists > 0 {
		return fmt.Errorf("%w: version %q", ErrVersionExists, v.UID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO versions (uid, name, date, size, size_bytes, valid) VALUES (?, ?, ?, ?, ?, ?)`,
		v.UID, v.Name, v.Date.UTC().Unix(), v.Size, v.SizeBytes, boolToInt(v.Valid),
	)
	if err != nil {
		return fmt.Errorf("metastore: import: insert version: %w", err)
	}

	for _, b := range blocks {
		if b.UID != nil {
			if err := refAddTx(ctx, tx, *b.UID); err != nil {
				return fmt.Errorf("metastore: import: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (version_uid, id, uid, checksum, size, date, valid)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.UID, b.ID, nullableString(b.UID), nullableString(b.Checksum), b.Size,
			b.Date.UTC().Unix(), boolToInt(b.Valid),
		)
		if err != nil {
			return fmt.Errorf("metastore: import: insert block %d: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metastore: import: commit: %w", err)
	}

	return nil
}

func checkMetadataHeader(line string) error {
	line = strings.TrimRight(line, "\r\n")

	var version int

	_, err := fmt.Sscanf(line, "backy2 Version %d metadata dump", &version)
	if err != nil {
		return fmt.Errorf("metastore: import: malformed header %q: %w", line, err)
	}

	if version != MetadataFormatVersion {
		return fmt.Errorf("metastore: import: unsupported metadata format version %d (want %d)",
			version, MetadataFormatVersion)
	}

	return nil
}

func parseVersionRecord(r []string) (Version, error) {
	if len(r) != 6 {
		return Version{}, fmt.Errorf("version line: want 6 fields, got %d", len(r))
	}

	date, err := time.Parse(metadataTimeLayout, r[1])
	if err != nil {
		return Version{}, fmt.Errorf("version line: date: %w", err)
	}

	size, err := strconv.ParseInt(r[3], 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("version line: size: %w", err)
	}

	sizeBytes, err := strconv.ParseInt(r[4], 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("version line: size_bytes: %w", err)
	}

	valid, err := strconv.ParseBool(r[5])
	if err != nil {
		return Version{}, fmt.Errorf("version line: valid: %w", err)
	}

	return Version{
		UID:       r[0],
		Date:      date.UTC(),
		Name:      r[2],
		Size:      size,
		SizeBytes: sizeBytes,
		Valid:     valid,
	}, nil
}

func parseBlockRecord(r []string) (Block, error) {
	if len(r) != 7 {
		return Block{}, fmt.Errorf("block line: want 7 fields, got %d", len(r))
	}

	id, err := strconv.ParseInt(r[2], 10, 64)
	if err != nil {
		return Block{}, fmt.Errorf("block line: id: %w", err)
	}

	date, err := time.Parse(metadataTimeLayout, r[3])
	if err != nil {
		return Block{}, fmt.Errorf("block line: date: %w", err)
	}

	size, err := strconv.ParseInt(r[5], 10, 64)
	if err != nil {
		return Block{}, fmt.Errorf("block line: size: %w", err)
	}

	valid, err := strconv.ParseBool(r[6])
	if err != nil {
		return Block{}, fmt.Errorf("block line: valid: %w", err)
	}

	b := Block{
		VersionUID: r[1],
		ID:         id,
		Size:       size,
		Date:       date.UTC(),
		Valid:      valid,
	}

	if r[0] != "" {
		uid := r[0]
		b.UID = &uid
	}

	if r[4] != "" {
		checksum := r[4]
		b.Checksum = &checksum
	}

	if (b.UID == nil) != (b.Checksum == nil) {
		return Block{}, fmt.Errorf("block line: uid and checksum must be both empty or both set")
	}

	return b, nil
}
