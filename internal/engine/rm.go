package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/backy2/backy2/internal/locking"
)

// Remove deletes versionUID and all its block rows, decrementing
// refcounts but never touching blobs directly (spec.md §4.1). Unless
// force is set, it refuses with ErrTooYoung when the version is younger
// than minAgeDays.
func (e *Engine) Remove(ctx context.Context, versionUID string, force bool, minAgeDays int) error {
	v, err := e.meta.GetVersion(ctx, versionUID)
	if err != nil {
		return fmt.Errorf("engine: rm: %w", err)
	}

	if !force {
		minAge := time.Duration(minAgeDays) * 24 * time.Hour
		if age := time.Since(v.Date); age < minAge {
			return fmt.Errorf("%w: version %s is %s old, minimum is %d days", ErrTooYoung, versionUID, age, minAgeDays)
		}
	}

	lockName := locking.VersionLockName(versionUID)

	locked, err := e.locks.Lock(lockName)
	if err != nil {
		return fmt.Errorf("engine: rm: %w", err)
	}

	if !locked {
		return fmt.Errorf("%w: version %s", ErrLocked, versionUID)
	}

	defer func() { _ = e.locks.Unlock(lockName) }()

	if _, err := e.meta.RmVersion(ctx, versionUID); err != nil {
		return fmt.Errorf("engine: rm: %w", err)
	}

	return nil
}
