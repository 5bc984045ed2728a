package metastore

import "errors"

var (
	// ErrNotFound is returned when a version or block lookup finds nothing.
	ErrNotFound = errors.New("metastore: not found")

	// ErrDanglingRefcount indicates ref_del was asked to decrement a uid with
	// no refcount row — a programmer error per spec.md §4.2.
	ErrDanglingRefcount = errors.New("metastore: dangling refcount")

	// ErrVersionExists is returned by Import when the dump's version_uid
	// already exists (spec.md §4.2: "Import refuses a uid that already
	// exists").
	ErrVersionExists = errors.New("metastore: version already exists")

	// ErrClosed is returned by any call made after Close.
	ErrClosed = errors.New("metastore: store is closed")
)
