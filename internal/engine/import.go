package engine

import (
	"context"
	"fmt"
	"io"
)

// Import loads a metadata dump produced by Export, refusing a version_uid
// that already exists (spec.md §4.2, §6).
func (e *Engine) Import(ctx context.Context, r io.Reader) (string, error) {
	uid, err := e.meta.Import(ctx, r)
	if err != nil {
		return "", fmt.Errorf("engine: import: %w", err)
	}

	return uid, nil
}
