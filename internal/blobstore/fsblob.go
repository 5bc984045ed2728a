package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backy2/backy2/internal/digest"
	"github.com/backy2/backy2/pkg/fs"
)

// fsShardDepth and fsShardSplit control path sharding: a blob's path is
// formed by taking the first depth*split hex characters of its uid, split
// into depth directory levels of split characters each, mirroring a
// git-object-store-style layout (spec.md §4.4: "path derived from the first
// DEPTH·SPLIT characters of the uid").
const (
	fsShardDepth = 2
	fsShardSplit = 2
)

// FSBackend is the sharded-filesystem Data Backend: one file per blob.
type FSBackend struct {
	root   string
	fsys   fs.FS
	writer *fs.AtomicWriter
	hasher digest.Hasher
}

// NewFSBackend opens (creating if necessary) a sharded blob store rooted at
// dir, using hasher to mint content-derived uids.
func NewFSBackend(dir string, vfs fs.FS, hasher digest.Hasher) (*FSBackend, error) {
	if err := vfs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: create root %q: %w", dir, err)
	}

	return &FSBackend{
		root:   dir,
		fsys:   vfs,
		writer: fs.NewAtomicWriter(vfs),
		hasher: hasher,
	}, nil
}

// Save implements [Backend]. The uid is the hasher's digest of data; if a
// blob already exists at that path its bytes are compared to data — a match
// is a no-op, a mismatch is ErrAlreadyExists (spec.md §4.4: "collision is an
// assertion failure").
func (b *FSBackend) Save(data []byte) (string, error) {
	uid := b.hasher.SumBytes(data)
	path := b.pathFor(uid)

	existing, err := b.fsys.ReadFile(path)
	if err == nil {
		if !bytes.Equal(existing, data) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, uid)
		}

		return uid, nil
	}

	if !os.IsNotExist(err) {
		return "", fmt.Errorf("blobstore: save: stat %q: %w", path, err)
	}

	if err := b.fsys.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("blobstore: save: mkdir: %w", err)
	}

	if err := b.writer.WriteWithDefaults(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("blobstore: save %s: %w", uid, err)
	}

	return uid, nil
}

// Read implements [Backend].
func (b *FSBackend) Read(uid string) ([]byte, error) {
	data, err := b.fsys.ReadFile(b.pathFor(uid))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}

	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", uid, err)
	}

	return data, nil
}

// Remove implements [Backend]. A missing blob is not an error (spec.md
// §4.4, §7 NOT_FOUND handling in cleanup).
func (b *FSBackend) Remove(uid string) error {
	err := b.fsys.Remove(b.pathFor(uid))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: remove %s: %w", uid, err)
	}

	return nil
}

// RemoveMany implements [Backend].
func (b *FSBackend) RemoveMany(uids []string) ([]string, error) {
	var (
		notDeleted []string
		errs       []error
	)

	for _, uid := range uids {
		if err := b.Remove(uid); err != nil {
			notDeleted = append(notDeleted, uid)
			errs = append(errs, err)
		}
	}

	return notDeleted, errors.Join(errs...)
}

// AllUIDs implements [Backend] by walking the shard tree. Each blob file
// is named by its full uid, so the uid is the filename.
func (b *FSBackend) AllUIDs(prefix string) ([]string, error) {
	var out []string

	err := filepath.Walk(b.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		uid := info.Name()
		if prefix == "" || strings.HasPrefix(uid, prefix) {
			out = append(out, uid)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: all_uids: %w", err)
	}

	return out, nil
}

// Close implements [Backend]. FSBackend has no background writers.
func (b *FSBackend) Close() error { return nil }

func (b *FSBackend) pathFor(uid string) string {
	shard := uid
	if len(shard) > fsShardDepth*fsShardSplit {
		shard = shard[:fsShardDepth*fsShardSplit]
	}

	dirs := make([]string, 0, fsShardDepth+1)
	dirs = append(dirs, b.root)

	for i := 0; i < fsShardDepth && (i+1)*fsShardSplit <= len(shard); i++ {
		dirs = append(dirs, shard[i*fsShardSplit:(i+1)*fsShardSplit])
	}

	dirs = append(dirs, uid)

	return filepath.Join(dirs...)
}

var _ Backend = (*FSBackend)(nil)
