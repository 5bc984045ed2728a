package engine

import (
	"context"
	"fmt"

	"github.com/backy2/backy2/internal/locking"
	"github.com/backy2/backy2/internal/metastore"
)

// PrepareVersion creates a new version in the invalid state with
// ceil(sizeBytes/block_size) blocks (spec.md §4.1). If fromVersionUID is
// non-empty, each new block is initialised by copying the corresponding
// block row from the base version; missing indices (the base has fewer
// blocks) default to sparse-valid. The final block's size is clamped to
// the exact logical remainder; if clamping changes its size relative to
// whatever was copied from the base, its uid/checksum are cleared and it
// reverts to valid-sparse, since its content is definitionally different.
func (e *Engine) PrepareVersion(ctx context.Context, name string, sizeBytes int64, fromVersionUID string) (string, error) {
	var baseBlocks []metastore.Block

	if fromVersionUID != "" {
		base, err := e.meta.GetVersion(ctx, fromVersionUID)
		if err != nil {
			return "", fmt.Errorf("engine: prepare_version: %w", err)
		}

		if !base.Valid {
			return "", fmt.Errorf("%w: %s", ErrInvalidBase, fromVersionUID)
		}

		baseBlocks, err = e.meta.GetBlocks(ctx, fromVersionUID)
		if err != nil {
			return "", fmt.Errorf("engine: prepare_version: %w", err)
		}
	}

	size := ceilDiv(sizeBytes, e.blockSize)

	uid, err := e.meta.SetVersion(ctx, name, size, sizeBytes, false)
	if err != nil {
		return "", fmt.Errorf("engine: prepare_version: %w", err)
	}

	lockName := locking.VersionLockName(uid)

	locked, err := e.locks.Lock(lockName)
	if err != nil {
		return "", fmt.Errorf("engine: prepare_version: %w", err)
	}

	if !locked {
		return "", fmt.Errorf("%w: version %s", ErrLocked, uid)
	}

	defer func() { _ = e.locks.Unlock(lockName) }()

	for id := int64(0); id < size; id++ {
		isFinal := id == size-1

		finalSize := e.blockSize
		if isFinal {
			finalSize = sizeBytes - id*e.blockSize
		}

		p := metastore.SetBlockParams{
			VersionUID: uid,
			ID:         id,
			Size:       finalSize,
			Valid:      true,
		}

		if int(id) < len(baseBlocks) {
			bb := baseBlocks[id]
			p.UID = bb.UID
			p.Checksum = bb.Checksum
			p.Size = bb.Size
			p.Valid = bb.Valid
		}

		// Clamp the final block to the exact logical remainder. A size
		// change relative to whatever was just copied means the content
		// is different, so the copied uid/checksum no longer apply.
		if isFinal && p.Size != finalSize {
			p.UID = nil
			p.Checksum = nil
			p.Size = finalSize
			p.Valid = true
		}

		if err := e.meta.SetBlock(ctx, p, false); err != nil {
			return "", fmt.Errorf("engine: prepare_version: block %d: %w", id, err)
		}
	}

	return uid, nil
}
