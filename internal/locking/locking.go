// Package locking provides advisory, file-backed, process-scoped locks keyed
// by a symbolic name, plus a process registry used for peer detection.
//
// Locks are non-blocking by design: [Manager.Lock] either acquires the named
// lock immediately or reports contention. This matches the engine's need to
// fail fast rather than queue behind another instance (spec: "locking.lock()
// is non-blocking").
package locking

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/backy2/backy2/pkg/fs"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Lock callers that choose to treat contention as an
// error (most callers instead check the returned bool).
var ErrLocked = errors.New("locked")

// Manager grants advisory locks backed by files under dir, one file per
// symbolic lock name.
type Manager struct {
	dir string
	fs  fs.FS

	mu    sync.Mutex
	held  map[string]*heldLock
	flock func(fd int, how int) error
}

type heldLock struct {
	file fs.File
}

// New creates a Manager whose lock files live under dir. dir is created on
// first use if missing.
func New(dir string, vfs fs.FS) *Manager {
	if vfs == nil {
		vfs = fs.NewReal()
	}

	return &Manager{
		dir:   dir,
		fs:    vfs,
		held:  make(map[string]*heldLock),
		flock: unix.Flock,
	}
}

// Lock attempts to acquire the named lock without blocking. It reports
// (true, nil) on success, (false, nil) if another holder has it, and a
// non-nil error only for unexpected filesystem failures.
//
// Lock is idempotent for a single Manager: calling Lock twice for the same
// name from the same Manager returns (true, nil) both times, since flock is
// scoped to the open file descriptor and this process already holds it.
func (m *Manager) Lock(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[name]; ok {
		return true, nil
	}

	if err := m.fs.MkdirAll(m.dir, 0o750); err != nil {
		return false, fmt.Errorf("locking: create lock dir: %w", err)
	}

	path := m.lockPath(name)

	file, err := m.fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("locking: open lock file %q: %w", path, err)
	}

	err = m.flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		m.held[name] = &heldLock{file: file}
		return true, nil
	}

	_ = file.Close()

	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
		return false, nil
	}

	return false, fmt.Errorf("locking: flock %q: %w", path, err)
}

// Unlock releases the named lock. Unlocking a name this Manager does not
// hold is a no-op.
func (m *Manager) Unlock(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lk, ok := m.held[name]
	if !ok {
		return nil
	}

	delete(m.held, name)

	unlockErr := m.flock(int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()

	if unlockErr != nil {
		return fmt.Errorf("locking: unlock %q: %w", name, unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("locking: close lock file %q: %w", name, closeErr)
	}

	return nil
}

// WithLock acquires name, runs fn, and releases name on every exit path
// (including panics propagated from fn). It reports (false, nil) without
// running fn if the lock is contended.
func (m *Manager) WithLock(name string, fn func() error) (acquired bool, err error) {
	ok, err := m.Lock(name)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	defer func() {
		if unlockErr := m.Unlock(name); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}()

	return true, fn()
}

func (m *Manager) lockPath(name string) string {
	return filepath.Join(m.dir, name+".lock")
}

// Names used for the global locks (spec.md §4.1, §4.5).
const (
	GlobalLock       = "backy"
	CleanupFastLock  = "backy-cleanup-fast"
)

// VersionLockName returns the per-version_uid lock name.
func VersionLockName(versionUID string) string {
	return "version-" + versionUID
}
