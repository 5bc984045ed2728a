// Package metastore is the Meta Backend: a transactional SQLite-backed store
// of versions, blocks, refcounts and stats (spec.md §3, §4.2).
package metastore

import "time"

// Version is a point-in-time backup (spec.md §3).
type Version struct {
	UID       string
	Name      string
	Date      time.Time
	Size      int64 // block count
	SizeBytes int64 // exact logical length
	Valid     bool
}

// Block is one (version_uid, id) row (spec.md §3).
//
// UID and Checksum are nil together: a sparse block has no uid and
// represents an all-zero region.
type Block struct {
	VersionUID string
	ID         int64
	UID        *string
	Checksum   *string
	Size       int64
	Date       time.Time
	Valid      bool
}

// Sparse reports whether b represents an all-zero region.
func (b Block) Sparse() bool { return b.UID == nil }

// RefCount is a BlockRefCounter row (spec.md §3).
type RefCount struct {
	UID      string
	Refs     int64
	Modified time.Time
}

// Stats is a per-version summary row (spec.md §3).
type Stats struct {
	VersionUID       string
	BytesRead        int64
	BlocksRead       int64
	BytesWritten     int64
	BlocksWritten    int64
	BytesDedup       int64
	BlocksDedup      int64
	BytesSparse      int64
	BlocksSparse     int64
	DurationSeconds  float64
}
