package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/blobstore"
	"github.com/backy2/backy2/internal/digest"
	"github.com/backy2/backy2/internal/engine"
	"github.com/backy2/backy2/internal/hints"
	"github.com/backy2/backy2/internal/iosource"
	"github.com/backy2/backy2/internal/locking"
	"github.com/backy2/backy2/internal/metastore"
	"github.com/backy2/backy2/pkg/fs"
)

const testBlockSize = 4

// testEnv bundles an Engine with direct handles to its collaborators, so
// tests can inspect meta/blob state beyond what the Engine's public
// surface exposes.
type testEnv struct {
	Engine *engine.Engine
	Meta   *metastore.Store
	Data   blobstore.Backend
	Locks  *locking.Manager
	Dir    string
}

// newTestEngine builds a fully-wired Engine over tempdir-backed
// collaborators: SQLite metastore, sharded-file blobstore, flock-based
// locking, and a file:// source registry.
func newTestEngine(t *testing.T) testEnv {
	t.Helper()

	dir := t.TempDir()

	meta, err := metastore.Open(context.Background(), filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	data, err := blobstore.NewFSBackend(filepath.Join(dir, "blobs"), fs.NewReal(), digest.SHA512)
	require.NoError(t, err)
	t.Cleanup(func() { _ = data.Close() })

	locks := locking.New(filepath.Join(dir, "locks"), fs.NewReal())
	registry := locking.NewRegistry(filepath.Join(dir, "locks"), fs.NewReal())

	sources := iosource.NewRegistry(map[string]iosource.Driver{
		"file": iosource.NewFileDriver(digest.SHA512),
	})

	e, err := engine.New(context.Background(), engine.Config{
		Meta:        meta,
		Data:        data,
		Locks:       locks,
		Sources:     sources,
		Registry:    registry,
		ProcessName: "engine-test",
		BlockSize:   testBlockSize,
		Hasher:      digest.SHA512,
	})
	require.NoError(t, err)

	return testEnv{Engine: e, Meta: meta, Data: data, Locks: locks, Dir: dir}
}

func writeSourceFile(t *testing.T, contents []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.img")
	require.NoError(t, os.WriteFile(path, contents, 0o640))

	return "file://" + path
}

func fileURL(dir, name string) string {
	return "file://" + filepath.Join(dir, name)
}

func readFileURL(t *testing.T, url string) []byte {
	t.Helper()

	path, ok := strings.CutPrefix(url, "file://")
	require.True(t, ok)

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return b
}

// blockChangedHint reports a single changed block at the given index, sized
// to blockSize, for use as a Backup hint list.
func blockChangedHint(blockIndex, blockSize int64) []hints.Hint {
	return []hints.Hint{
		{Offset: blockIndex * blockSize, Length: blockSize, Exists: true},
	}
}
