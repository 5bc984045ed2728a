package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/backy2/backy2/internal/blobstore"
	"github.com/backy2/backy2/internal/iosource"
	"github.com/backy2/backy2/internal/locking"
	"github.com/backy2/backy2/internal/xlog"
)

// Restore writes versionUID's blocks to targetURL in order. A missing or
// corrupt blob is logged, the owning block is invalidated (cascading to
// every version sharing it), and the restore continues with a best-effort
// partial result (spec.md §4.1, §7).
func (e *Engine) Restore(ctx context.Context, versionUID, targetURL string, sparse, force bool) error {
	v, err := e.meta.GetVersion(ctx, versionUID)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}

	lockName := locking.VersionLockName(versionUID)

	locked, err := e.locks.Lock(lockName)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}

	if !locked {
		return fmt.Errorf("%w: version %s", ErrLocked, versionUID)
	}

	defer func() { _ = e.locks.Unlock(lockName) }()

	tgt, err := e.sources.Open(targetURL)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}

	defer func() { _ = tgt.Close() }()

	if err := tgt.OpenWriter(v.SizeBytes, force); err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}

	blocks, err := e.meta.GetBlocks(ctx, versionUID)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}

	for _, b := range blocks {
		ref := iosource.BlockRef{ID: b.ID, Size: b.Size}

		if b.UID == nil {
			if !sparse {
				if err := tgt.WriteBlock(ref, e.blockSize, make([]byte, b.Size)); err != nil {
					return fmt.Errorf("engine: restore: write zero-fill block %d: %w", b.ID, err)
				}
			}

			continue
		}

		data, err := e.data.Read(*b.UID)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				if _, invErr := e.meta.SetBlocksInvalid(ctx, *b.UID, *b.Checksum); invErr != nil {
					return fmt.Errorf("engine: restore: invalidate missing blob for block %d: %w", b.ID, invErr)
				}

				xlog.Warn("restore: blob missing, block invalidated and skipped", "version", versionUID, "block", b.ID, "uid", *b.UID)

				continue
			}

			return fmt.Errorf("engine: restore: read block %d: %w", b.ID, err)
		}

		if err := tgt.WriteBlock(ref, e.blockSize, data); err != nil {
			return fmt.Errorf("engine: restore: write block %d: %w", b.ID, err)
		}

		checksum := e.hasher.SumBytes(data)
		if checksum != *b.Checksum || int64(len(data)) != b.Size {
			if _, invErr := e.meta.SetBlocksInvalid(ctx, *b.UID, *b.Checksum); invErr != nil {
				return fmt.Errorf("engine: restore: invalidate corrupt block %d: %w", b.ID, invErr)
			}

			xlog.Warn("restore: checksum mismatch, block invalidated", "version", versionUID, "block", b.ID, "uid", *b.UID)
		}
	}

	xlog.Info("restore: finished", "version", versionUID, "target", targetURL)

	return nil
}
