// Package blobstore is the Data Backend: a content-addressed blob store
// (spec.md §4.4). Two concrete shapes are provided — [NewFSBackend], one
// file per blob sharded by uid prefix, and [NewSegBackend], blobs packed
// into fixed-size segment containers with an appended index.
package blobstore

import "errors"

// ErrNotFound is returned by Read when no blob exists at the given uid.
var ErrNotFound = errors.New("blobstore: not found")

// ErrAlreadyExists is returned when a save would overwrite an existing uid
// with different content — immutability violation (spec.md §4.4: "a uid,
// once assigned, maps to exactly one byte-string for its lifetime").
var ErrAlreadyExists = errors.New("blobstore: uid already exists")

// Backend is the Data Backend contract (spec.md §4.4).
type Backend interface {
	// Save persists data under a content-derived uid and returns it. Saving
	// the same bytes twice is a no-op that returns the same uid; saving
	// different bytes under a uid that already exists is ErrAlreadyExists.
	Save(data []byte) (uid string, err error)

	// Read returns the bytes stored at uid, or ErrNotFound.
	Read(uid string) ([]byte, error)

	// Remove deletes uid. A missing uid is not an error.
	Remove(uid string) error

	// RemoveMany deletes every uid in uids, tolerating missing ones, and
	// returns the subset that could not be deleted for any other reason.
	RemoveMany(uids []string) (notDeleted []string, err error)

	// AllUIDs enumerates every stored uid, optionally filtered by a
	// textual prefix.
	AllUIDs(prefix string) ([]string, error)

	// Close drains any background writers.
	Close() error
}
