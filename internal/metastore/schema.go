package metastore

// schemaStatements creates the tables backing spec.md §3's data model: one
// row per version, one row per (version_uid, id) block, one row per
// referenced blob uid, and one stats row per completed backup.
var schemaStatements = []string{
	`CREATE TABLE versions (
		uid        TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		date       INTEGER NOT NULL,
		size       INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		valid      INTEGER NOT NULL
	)`,
	`CREATE INDEX versions_by_name_date ON versions(name, date)`,
	`CREATE TABLE blocks (
		version_uid TEXT NOT NULL,
		id          INTEGER NOT NULL,
		uid         TEXT,
		checksum    TEXT,
		size        INTEGER NOT NULL,
		date        INTEGER NOT NULL,
		valid       INTEGER NOT NULL,
		PRIMARY KEY (version_uid, id)
	)`,
	`CREATE INDEX blocks_by_checksum ON blocks(checksum)`,
	`CREATE INDEX blocks_by_uid ON blocks(uid)`,
	`CREATE TABLE refcounts (
		uid      TEXT PRIMARY KEY,
		refs     INTEGER NOT NULL,
		modified INTEGER NOT NULL
	)`,
	`CREATE INDEX refcounts_zero_refs ON refcounts(refs, modified)`,
	`CREATE TABLE stats (
		version_uid      TEXT PRIMARY KEY,
		bytes_read       INTEGER NOT NULL,
		blocks_read      INTEGER NOT NULL,
		bytes_written    INTEGER NOT NULL,
		blocks_written   INTEGER NOT NULL,
		bytes_dedup      INTEGER NOT NULL,
		blocks_dedup     INTEGER NOT NULL,
		bytes_sparse     INTEGER NOT NULL,
		blocks_sparse    INTEGER NOT NULL,
		duration_seconds REAL NOT NULL
	)`,
}
