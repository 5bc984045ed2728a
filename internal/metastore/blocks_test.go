package metastore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/metastore"
)

func TestSetBlock_InsertOnlyPath(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, false)
	require.NoError(t, err)

	blobUID := "blob-a"
	checksum := "checksum-a"
	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, UID: &blobUID, Checksum: &checksum, Size: 4096, Valid: true,
	}, false))

	b, err := s.GetBlock(ctx, uid, 0)
	require.NoError(t, err)
	require.Equal(t, blobUID, *b.UID)
	require.True(t, b.Valid)

	rc, err := s.GetRefCount(ctx, blobUID)
	require.NoError(t, err)
	require.Equal(t, int64(1), rc.Refs)
}

func TestSetBlock_UpsertSwapsRefcounts(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, false)
	require.NoError(t, err)

	oldUID, oldChecksum := "blob-old", "checksum-old"
	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, UID: &oldUID, Checksum: &oldChecksum, Size: 4096, Valid: true,
	}, true))

	newUID, newChecksum := "blob-new", "checksum-new"
	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, UID: &newUID, Checksum: &newChecksum, Size: 4096, Valid: true,
	}, true))

	rcOld, err := s.GetRefCount(ctx, oldUID)
	require.NoError(t, err)
	require.Equal(t, int64(0), rcOld.Refs)

	rcNew, err := s.GetRefCount(ctx, newUID)
	require.NoError(t, err)
	require.Equal(t, int64(1), rcNew.Refs)

	b, err := s.GetBlock(ctx, uid, 0)
	require.NoError(t, err)
	require.Equal(t, newUID, *b.UID)
}

func TestSetBlock_UpsertSameUIDDoesNotChurnRefcount(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, false)
	require.NoError(t, err)

	blobUID, checksum := "blob-a", "checksum-a"
	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, UID: &blobUID, Checksum: &checksum, Size: 4096, Valid: true,
	}, true))
	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, UID: &blobUID, Checksum: &checksum, Size: 4096, Valid: true,
	}, true))

	rc, err := s.GetRefCount(ctx, blobUID)
	require.NoError(t, err)
	require.Equal(t, int64(1), rc.Refs)
}

func TestSetBlock_SparseBlockHasNilUID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, false)
	require.NoError(t, err)

	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, Size: 4096, Valid: true,
	}, false))

	b, err := s.GetBlock(ctx, uid, 0)
	require.NoError(t, err)
	require.True(t, b.Sparse())
	require.Nil(t, b.UID)
	require.Nil(t, b.Checksum)
}

func TestSetBlock_RejectsMismatchedUIDChecksum(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, false)
	require.NoError(t, err)

	blobUID := "blob-a"
	err = s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: uid, ID: 0, UID: &blobUID, Size: 4096, Valid: true,
	}, false)
	require.Error(t, err)
}

func TestGetBlocks_OrderedByID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 3, 3*4*1024*1024, false)
	require.NoError(t, err)

	for _, id := range []int64{2, 0, 1} {
		require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
			VersionUID: uid, ID: id, Size: 4096, Valid: true,
		}, false))
	}

	blocks, err := s.GetBlocks(ctx, uid)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Equal(t, int64(0), blocks[0].ID)
	require.Equal(t, int64(1), blocks[1].ID)
	require.Equal(t, int64(2), blocks[2].ID)
}

func TestGetBlock_NotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, false)
	require.NoError(t, err)

	_, err = s.GetBlock(ctx, uid, 99)
	require.ErrorIs(t, err, metastore.ErrNotFound)
}
