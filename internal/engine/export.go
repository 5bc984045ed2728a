package engine

import (
	"context"
	"fmt"
	"io"
)

// Export writes versionUID's metadata dump to w (spec.md §4.2, §6).
func (e *Engine) Export(ctx context.Context, versionUID string, w io.Writer) error {
	if err := e.meta.Export(ctx, versionUID, w); err != nil {
		return fmt.Errorf("engine: export: %w", err)
	}

	return nil
}
