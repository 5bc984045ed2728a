package locking_test

import (
	"testing"

	"github.com/backy2/backy2/internal/locking"
)

func TestManager_Lock_SecondManagerIsBlocked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	a := locking.New(dir, nil)
	b := locking.New(dir, nil)

	ok, err := a.Lock(locking.GlobalLock)
	if err != nil {
		t.Fatalf("a.Lock: %v", err)
	}

	if !ok {
		t.Fatalf("a.Lock() = false, want true")
	}

	ok, err = b.Lock(locking.GlobalLock)
	if err != nil {
		t.Fatalf("b.Lock: %v", err)
	}

	if ok {
		t.Fatalf("b.Lock() = true, want false (a holds the lock)")
	}

	if err := a.Unlock(locking.GlobalLock); err != nil {
		t.Fatalf("a.Unlock: %v", err)
	}

	ok, err = b.Lock(locking.GlobalLock)
	if err != nil {
		t.Fatalf("b.Lock after release: %v", err)
	}

	if !ok {
		t.Fatalf("b.Lock() after release = false, want true")
	}
}

func TestManager_Lock_SameManagerIsReentrant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := locking.New(dir, nil)

	ok, err := m.Lock(locking.VersionLockName("v1"))
	if err != nil || !ok {
		t.Fatalf("Lock = %v, %v", ok, err)
	}

	ok, err = m.Lock(locking.VersionLockName("v1"))
	if err != nil || !ok {
		t.Fatalf("second Lock = %v, %v, want true, nil", ok, err)
	}
}

func TestManager_WithLock_ReleasesOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := locking.New(dir, nil)

	sentinel := errFailed

	acquired, err := m.WithLock(locking.CleanupFastLock, func() error {
		return sentinel
	})
	if !acquired {
		t.Fatalf("WithLock acquired = false, want true")
	}

	if err != sentinel {
		t.Fatalf("WithLock err = %v, want %v", err, sentinel)
	}

	other := locking.New(dir, nil)

	ok, err := other.Lock(locking.CleanupFastLock)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if !ok {
		t.Fatalf("lock was not released after WithLock returned an error")
	}
}

func TestRegistry_HasLivePeer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	reg := locking.NewRegistry(dir, nil)

	live, err := reg.HasLivePeer("backy")
	if err != nil {
		t.Fatalf("HasLivePeer before register: %v", err)
	}

	if live {
		t.Fatalf("HasLivePeer before register = true, want false")
	}

	if err := reg.Register("backy"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The registering process never counts as its own peer.
	live, err = reg.HasLivePeer("backy")
	if err != nil {
		t.Fatalf("HasLivePeer: %v", err)
	}

	if live {
		t.Fatalf("HasLivePeer for self = true, want false")
	}
}

var errFailed = errSentinel("failed")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
