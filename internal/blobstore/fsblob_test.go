package blobstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/blobstore"
	"github.com/backy2/backy2/internal/digest"
	"github.com/backy2/backy2/pkg/fs"
)

func newFSBackend(t *testing.T) *blobstore.FSBackend {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "blobs")

	b, err := blobstore.NewFSBackend(dir, fs.NewReal(), digest.SHA512)
	require.NoError(t, err)

	t.Cleanup(func() { _ = b.Close() })

	return b
}

func TestFSBackend_SaveRead_RoundTrip(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	uid, err := b.Save([]byte("hello, blob"))
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	got, err := b.Read(uid)
	require.NoError(t, err)
	require.Equal(t, "hello, blob", string(got))
}

func TestFSBackend_SaveIsIdempotentForIdenticalBytes(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	uid1, err := b.Save([]byte("same bytes"))
	require.NoError(t, err)

	uid2, err := b.Save([]byte("same bytes"))
	require.NoError(t, err)

	require.Equal(t, uid1, uid2)
}

func TestFSBackend_Read_NotFound(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	_, err := b.Read("does-not-exist")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFSBackend_Remove_ThenNotFound(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	uid, err := b.Save([]byte("transient"))
	require.NoError(t, err)

	require.NoError(t, b.Remove(uid))

	_, err = b.Read(uid)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFSBackend_Remove_MissingUIDIsNotError(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	require.NoError(t, b.Remove("never-saved"))
}

func TestFSBackend_AllUIDs_FiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	uidA, err := b.Save([]byte("blob a"))
	require.NoError(t, err)
	uidB, err := b.Save([]byte("blob b"))
	require.NoError(t, err)

	all, err := b.AllUIDs("")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{uidA, uidB}, all)

	onlyA, err := b.AllUIDs(uidA[:8])
	require.NoError(t, err)
	require.Equal(t, []string{uidA}, onlyA)
}

func TestFSBackend_RemoveMany_TolerantOfMissing(t *testing.T) {
	t.Parallel()

	b := newFSBackend(t)

	uid, err := b.Save([]byte("present"))
	require.NoError(t, err)

	notDeleted, err := b.RemoveMany([]string{uid, "absent-uid"})
	require.NoError(t, err)
	require.Empty(t, notDeleted)
}
