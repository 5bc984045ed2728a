// Package hints converts sparse-aware source extents into affected block-index
// sets (spec.md §4.1, §6).
package hints

import (
	"errors"
	"fmt"
)

// Hint is a (offset, length, exists) extent, as derived from an external
// diff format (e.g. an RBD snapshot diff). Offsets and lengths are in bytes.
type Hint struct {
	Offset int64
	Length int64
	Exists bool
}

// ErrInvalidHints is returned by Validate when a hint's extent runs past the
// end of the source (spec.md §4.1: INVALID_HINTS).
var ErrInvalidHints = errors.New("hints: extent exceeds source size")

// Validate checks that every hint's extent fits within [0, sourceSize).
func Validate(hs []Hint, sourceSize int64) error {
	for _, h := range hs {
		if h.Offset < 0 || h.Length < 0 {
			return fmt.Errorf("%w: negative offset/length in %+v", ErrInvalidHints, h)
		}

		if h.Offset+h.Length > sourceSize {
			return fmt.Errorf("%w: %+v exceeds source size %d", ErrInvalidHints, h, sourceSize)
		}
	}

	return nil
}

// BlocksFromHints returns the set of block indices touched by hs, for blocks
// of size blockSize. Each hint contributes indices in
// [floor(offset/blockSize), ceil((offset+length)/blockSize)). Duplicates and
// overlaps are absorbed by the returned set.
func BlocksFromHints(hs []Hint, blockSize int64) map[int64]struct{} {
	if blockSize <= 0 {
		panic("hints: blockSize must be positive")
	}

	result := make(map[int64]struct{})

	for _, h := range hs {
		first := h.Offset / blockSize
		last := ceilDiv(h.Offset+h.Length, blockSize)

		for id := first; id < last; id++ {
			result[id] = struct{}{}
		}
	}

	return result
}

// Filter splits hs into the subsets whose Exists field is true and false
// respectively, preserving the spec's "hints where exists" / "hints where
// not exists" partitioning (spec.md §4.1).
func Filter(hs []Hint) (exists, notExists []Hint) {
	for _, h := range hs {
		if h.Exists {
			exists = append(exists, h)
		} else {
			notExists = append(notExists, h)
		}
	}

	return exists, notExists
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
