package locking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/backy2/backy2/pkg/fs"

	atomicfile "github.com/natefinch/atomic"
)

// processRecord is the on-disk shape of a registered process, one file per
// registered name under <dir>/registry/.
type processRecord struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// Registry tracks which symbolic process names are currently running, so
// that peers can discover each other (spec.md §4.1: "a process name that
// peer instances can discover").
type Registry struct {
	dir string
	fs  fs.FS
}

// NewRegistry creates a Registry rooted at dir (created lazily).
func NewRegistry(dir string, vfs fs.FS) *Registry {
	if vfs == nil {
		vfs = fs.NewReal()
	}

	return &Registry{dir: filepath.Join(dir, "registry"), fs: vfs}
}

// Register records name as an active process identity for the current PID.
// It overwrites any stale record left by a previous process under the same
// name (stale records are recognized by HasLivePeer as dead below).
func (r *Registry) Register(name string) error {
	if name == "" {
		return errors.New("locking: process name is empty")
	}

	if err := r.fs.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("locking: create registry dir: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	rec := processRecord{
		Name:      name,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("locking: marshal process record: %w", err)
	}

	if err := atomicfile.WriteFile(r.path(name), bytes.NewReader(data)); err != nil {
		return err
	}

	// atomic.WriteFile doesn't set permissions for new files.
	return os.Chmod(r.path(name), 0o600)
}

// Unregister removes the registration for name, if present.
func (r *Registry) Unregister(name string) error {
	err := r.fs.Remove(r.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("locking: unregister %q: %w", name, err)
	}

	return nil
}

// HasLivePeer reports whether a process registered under name is currently
// running. The current process's own registration (if any) is excluded.
//
// Liveness is checked by sending signal 0 to the recorded PID on the
// recorded host; records for other hosts are conservatively treated as live
// (this process cannot verify them), matching the "process-name-based peer
// detection" scope of spec.md §4.5.
func (r *Registry) HasLivePeer(name string) (bool, error) {
	data, err := r.fs.ReadFile(r.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("locking: read registry %q: %w", name, err)
	}

	var rec processRecord

	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("locking: decode registry %q: %w", name, err)
	}

	if rec.PID == os.Getpid() {
		return false, nil
	}

	hostname, err := os.Hostname()
	if err == nil && !strings.EqualFold(hostname, rec.Hostname) {
		return true, nil
	}

	return processAlive(rec.PID), nil
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name+".json")
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}

	return !errors.Is(err, syscall.ESRCH)
}
