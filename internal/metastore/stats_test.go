package metastore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/metastore"
)

func TestSetStats_GetStats_RoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 10, 10*4*1024*1024, true)
	require.NoError(t, err)

	st := metastore.Stats{
		VersionUID:      uid,
		BytesRead:       40 * 1024 * 1024,
		BlocksRead:      10,
		BytesWritten:    12 * 1024 * 1024,
		BlocksWritten:   3,
		BytesDedup:      24 * 1024 * 1024,
		BlocksDedup:     6,
		BytesSparse:     4 * 1024 * 1024,
		BlocksSparse:    1,
		DurationSeconds: 12.5,
	}
	require.NoError(t, s.SetStats(ctx, st))

	got, err := s.GetStats(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, st, got)
}

func TestSetStats_UpsertOverwrites(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.SetVersion(ctx, "vm-1", 1, 4*1024*1024, true)
	require.NoError(t, err)

	require.NoError(t, s.SetStats(ctx, metastore.Stats{VersionUID: uid, BlocksRead: 1}))
	require.NoError(t, s.SetStats(ctx, metastore.Stats{VersionUID: uid, BlocksRead: 2}))

	got, err := s.GetStats(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.BlocksRead)
}

func TestGetStats_NotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.GetStats(context.Background(), "missing")
	require.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestGetAllStats_OrderedByVersionUID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	uidA, err := s.SetVersion(ctx, "vm-a", 1, 4*1024*1024, true)
	require.NoError(t, err)
	uidB, err := s.SetVersion(ctx, "vm-b", 1, 4*1024*1024, true)
	require.NoError(t, err)

	require.NoError(t, s.SetStats(ctx, metastore.Stats{VersionUID: uidB, BlocksRead: 1}))
	require.NoError(t, s.SetStats(ctx, metastore.Stats{VersionUID: uidA, BlocksRead: 2}))

	all, err := s.GetAllStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
