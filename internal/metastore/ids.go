package metastore

import (
	"fmt"

	"github.com/google/uuid"
)

// newVersionUID mints a time-ordered, 36-char textual version_uid
// (spec.md §3), following the teacher's ids.go idiom of using UUIDv7 so the
// embedded timestamp orders uids without extra metadata.
func newVersionUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("metastore: generate version uid: %w", err)
	}

	return id.String(), nil
}
