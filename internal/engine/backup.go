package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/backy2/backy2/internal/hints"
	"github.com/backy2/backy2/internal/iosource"
	"github.com/backy2/backy2/internal/locking"
	"github.com/backy2/backy2/internal/metastore"
	"github.com/backy2/backy2/internal/xlog"
)

// Backup opens sourceURL via the IO registry, prepares a new version, and
// backs it up block by block, deduplicating against the existing blob
// store (spec.md §4.1).
func (e *Engine) Backup(ctx context.Context, name, sourceURL string, hs []hints.Hint, fromVersionUID string) (string, error) {
	src, err := e.sources.Open(sourceURL)
	if err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	defer func() { _ = src.Close() }()

	sourceSize := src.Size()

	if err := hints.Validate(hs, sourceSize); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHints, err)
	}

	readAll := len(hs) == 0

	var readBlocks, sparseBlocks map[int64]struct{}

	if !readAll {
		existsHints, notExistsHints := hints.Filter(hs)
		readBlocks = hints.BlocksFromHints(existsHints, e.blockSize)
		sparseBlocks = hints.BlocksFromHints(notExistsHints, e.blockSize)
	}

	uid, err := e.PrepareVersion(ctx, name, sourceSize, fromVersionUID)
	if err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	lockName := locking.VersionLockName(uid)

	locked, err := e.locks.Lock(lockName)
	if err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	if !locked {
		return "", fmt.Errorf("%w: version %s", ErrLocked, uid)
	}

	defer func() { _ = e.locks.Unlock(lockName) }()

	blocks, err := e.meta.GetBlocks(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	if fromVersionUID != "" && !readAll {
		if err := e.hintSanityCheck(src, blocks, readBlocks, sparseBlocks); err != nil {
			if _, rmErr := e.meta.RmVersion(ctx, uid); rmErr != nil {
				return "", fmt.Errorf("%w (and cleanup failed: %v)", err, rmErr)
			}

			return "", err
		}
	}

	start := time.Now()

	batch, err := e.meta.NewBatch(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	stats := metastore.Stats{VersionUID: uid}

	var dispatched int64

	for _, b := range blocks {
		switch {
		case inBlockSet(readBlocks, readAll, b.ID) || !b.Valid:
			if err := src.ReadBlock(iosource.BlockRef{ID: b.ID, Size: b.Size}, false); err != nil {
				_ = batch.Abort()
				return "", fmt.Errorf("engine: backup: dispatch block %d: %w", b.ID, err)
			}

			dispatched++
		case inBlockSet(sparseBlocks, false, b.ID):
			// elif ordering is load-bearing: a block in both sets must be
			// read, handled by the case above.
			p := metastore.SetBlockParams{VersionUID: uid, ID: b.ID, Size: b.Size, Valid: true}
			if err := batch.SetBlock(p, true); err != nil {
				_ = batch.Abort()
				return "", fmt.Errorf("engine: backup: mark sparse block %d: %w", b.ID, err)
			}

			stats.BlocksSparse++
			stats.BytesSparse += b.Size
		default:
			// inherited unchanged from the base.
		}
	}

	var completed int64

	for i := int64(0); i < dispatched; i++ {
		c, err := src.Get()
		if err != nil {
			_ = batch.Abort()
			return "", fmt.Errorf("engine: backup: %w", err)
		}

		completed++

		if err := e.applyCompletion(ctx, batch, uid, c, &stats); err != nil {
			_ = batch.Abort()
			return "", fmt.Errorf("engine: backup: %w", err)
		}
	}

	if dispatched != completed {
		_ = batch.Abort()
		return "", fmt.Errorf("%w: dispatched %d reads, retrieved %d completions", ErrPipelineBroken, dispatched, completed)
	}

	if err := batch.Close(); err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	if err := e.meta.SetVersionValid(ctx, uid); err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	stats.DurationSeconds = time.Since(start).Seconds()

	if err := e.meta.SetStats(ctx, stats); err != nil {
		return "", fmt.Errorf("engine: backup: %w", err)
	}

	xlog.Info("backup: finished", "version", uid, "name", name,
		"blocks_read", stats.BlocksRead, "blocks_dedup", stats.BlocksDedup,
		"blocks_written", stats.BlocksWritten, "blocks_sparse", stats.BlocksSparse,
		"duration_seconds", stats.DurationSeconds)

	return uid, nil
}

// applyCompletion dedups or persists one read completion and stages its
// meta update in batch. All-zero data is stored as a sparse block (no
// blob is ever written for it), matching the backup engine's sparse-hole
// optimization.
func (e *Engine) applyCompletion(ctx context.Context, batch *metastore.Batch, versionUID string, c iosource.Completion, stats *metastore.Stats) error {
	size := int64(len(c.Data))

	stats.BlocksRead++
	stats.BytesRead += size

	if isAllZero(c.Data) {
		p := metastore.SetBlockParams{VersionUID: versionUID, ID: c.Block.ID, Size: size, Valid: true}
		if err := batch.SetBlock(p, true); err != nil {
			return err
		}

		stats.BlocksSparse++
		stats.BytesSparse += size

		return nil
	}

	checksum := c.Checksum

	var blobUID string

	match, found, err := e.meta.GetBlockByChecksum(ctx, checksum)
	if err != nil {
		return err
	}

	if found && match.Size == size {
		blobUID = match.UID
		stats.BlocksDedup++
		stats.BytesDedup += size
	} else {
		blobUID, err = e.data.Save(c.Data)
		if err != nil {
			return err
		}

		stats.BlocksWritten++
		stats.BytesWritten += size
	}

	p := metastore.SetBlockParams{
		VersionUID: versionUID,
		ID:         c.Block.ID,
		UID:        &blobUID,
		Checksum:   &checksum,
		Size:       size,
		Valid:      true,
	}

	return batch.SetBlock(p, true)
}

// hintSanityCheck guards against a misapplied incremental diff: it samples
// up to hintSanitySampleSize block indices outside read_blocks/sparse_blocks
// that already carry a uid, re-reads them from the source, and compares
// against the stored checksum (spec.md §4.1).
func (e *Engine) hintSanityCheck(src iosource.Source, blocks []metastore.Block, readBlocks, sparseBlocks map[int64]struct{}) error {
	byID := make(map[int64]metastore.Block, len(blocks))

	var candidates []int64

	for _, b := range blocks {
		byID[b.ID] = b

		if b.UID == nil {
			continue
		}

		if _, ok := readBlocks[b.ID]; ok {
			continue
		}

		if _, ok := sparseBlocks[b.ID]; ok {
			continue
		}

		candidates = append(candidates, b.ID)
	}

	for _, id := range sampleUpTo(candidates, hintSanitySampleSize) {
		b := byID[id]

		if err := src.ReadBlock(iosource.BlockRef{ID: id, Size: b.Size}, true); err != nil {
			return fmt.Errorf("engine: hint sanity check: %w", err)
		}

		c, err := src.Get()
		if err != nil {
			return fmt.Errorf("engine: hint sanity check: %w", err)
		}

		if c.Checksum != *b.Checksum {
			return fmt.Errorf("%w: block %d", ErrHintMismatch, id)
		}
	}

	return nil
}

func inBlockSet(set map[int64]struct{}, all bool, id int64) bool {
	if all {
		return true
	}

	_, ok := set[id]

	return ok
}

// sampleUpTo returns up to n distinct elements drawn uniformly at random
// from candidates, without mutating the caller's slice.
func sampleUpTo(candidates []int64, n int) []int64 {
	if len(candidates) <= n {
		out := make([]int64, len(candidates))
		copy(out, candidates)

		return out
	}

	pool := make([]int64, len(candidates))
	copy(pool, candidates)

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	return pool[:n]
}
