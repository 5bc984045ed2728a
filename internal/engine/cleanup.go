package engine

import (
	"context"
	"fmt"

	"github.com/backy2/backy2/internal/locking"
	"github.com/backy2/backy2/internal/xlog"
)

// CleanupFast reclaims blobs whose refcount has been zero for at least
// graceSeconds, using the Meta Backend's lazy batched delete-candidate
// scan. Missing blobs are tolerated (spec.md §4.1).
func (e *Engine) CleanupFast(ctx context.Context, graceSeconds int64) error {
	locked, err := e.locks.Lock(locking.CleanupFastLock)
	if err != nil {
		return fmt.Errorf("engine: cleanup_fast: %w", err)
	}

	if !locked {
		return fmt.Errorf("%w: cleanup_fast", ErrLocked)
	}

	defer func() { _ = e.locks.Unlock(locking.CleanupFastLock) }()

	removed := 0

	err = e.meta.ForEachDeleteCandidateBatch(ctx, graceSeconds, func(uids []string) error {
		notDeleted, err := e.data.RemoveMany(uids)
		if err != nil {
			return fmt.Errorf("engine: cleanup_fast: remove blobs: %w", err)
		}

		removed += len(uids) - len(notDeleted)

		return nil
	})
	if err != nil {
		return err
	}

	xlog.Info("cleanup_fast: finished", "removed", removed)

	return nil
}

// CleanupFull is the authoritative, slow reconciler: under the global
// lock, and only when no peer process of the same registered name is
// running, it computes data_uids \ meta_uids (both optionally filtered by
// prefix) and removes every orphan. A missing blob is silently skipped
// (spec.md §4.1).
func (e *Engine) CleanupFull(ctx context.Context, prefix string) error {
	locked, err := e.locks.Lock(locking.GlobalLock)
	if err != nil {
		return fmt.Errorf("engine: cleanup_full: %w", err)
	}

	if !locked {
		return fmt.Errorf("%w: cleanup_full", ErrLocked)
	}

	defer func() { _ = e.locks.Unlock(locking.GlobalLock) }()

	if e.registry != nil && e.processName != "" {
		live, err := e.registry.HasLivePeer(e.processName)
		if err != nil {
			return fmt.Errorf("engine: cleanup_full: peer check: %w", err)
		}

		if live {
			return fmt.Errorf("%w: a peer process named %q is running", ErrLocked, e.processName)
		}
	}

	dataUIDs, err := e.data.AllUIDs(prefix)
	if err != nil {
		return fmt.Errorf("engine: cleanup_full: %w", err)
	}

	metaUIDs, err := e.meta.GetAllBlockUIDs(ctx, prefix)
	if err != nil {
		return fmt.Errorf("engine: cleanup_full: %w", err)
	}

	referenced := make(map[string]struct{}, len(metaUIDs))
	for _, uid := range metaUIDs {
		referenced[uid] = struct{}{}
	}

	var orphans []string

	for _, uid := range dataUIDs {
		if _, ok := referenced[uid]; !ok {
			orphans = append(orphans, uid)
		}
	}

	notDeleted, err := e.data.RemoveMany(orphans)
	if err != nil {
		return fmt.Errorf("engine: cleanup_full: remove orphans: %w", err)
	}

	xlog.Info("cleanup_full: finished", "orphans_found", len(orphans), "orphans_removed", len(orphans)-len(notDeleted))

	return nil
}
