package metastore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/metastore"
)

var errGCProcessFailed = errors.New("process failed")

func zeroRefBlob(t *testing.T, s *metastore.Store, uid string) {
	t.Helper()

	ctx := context.Background()

	blobUID, checksum := uid, uid+"-checksum"
	v, err := s.SetVersion(ctx, "vm-"+uid, 1, 4*1024*1024, true)
	require.NoError(t, err)
	require.NoError(t, s.SetBlock(ctx, metastore.SetBlockParams{
		VersionUID: v, ID: 0, UID: &blobUID, Checksum: &checksum, Size: 4096, Valid: true,
	}, false))

	_, err = s.RmVersion(ctx, v)
	require.NoError(t, err)
}

func TestForEachDeleteCandidateBatch_RespectsGracePeriod(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	zeroRefBlob(t, s, "grace-blob")

	var seen []string

	err := s.ForEachDeleteCandidateBatch(context.Background(), 3600, func(uids []string) error {
		seen = append(seen, uids...)
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, seen, "a refcount modified just now must not be a candidate under a 1h grace period")

	rc, err := s.GetRefCount(context.Background(), "grace-blob")
	require.NoError(t, err)
	require.Equal(t, int64(0), rc.Refs, "refcount row must survive when grace period hasn't elapsed")
}

func TestForEachDeleteCandidateBatch_HarvestsElapsedZeroRefs(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	zeroRefBlob(t, s, "elapsed-blob")

	var seen []string

	err := s.ForEachDeleteCandidateBatch(context.Background(), -60, func(uids []string) error {
		seen = append(seen, uids...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"elapsed-blob"}, seen)

	rc, err := s.GetRefCount(context.Background(), "elapsed-blob")
	require.NoError(t, err)
	require.Equal(t, int64(0), rc.Refs)
}

func TestForEachDeleteCandidateBatch_ProcessErrorLeavesRowIntact(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	zeroRefBlob(t, s, "failing-blob")

	err := s.ForEachDeleteCandidateBatch(context.Background(), -60, func(uids []string) error {
		return errGCProcessFailed
	})
	require.Error(t, err)

	rc, err := s.GetRefCount(context.Background(), "failing-blob")
	require.NoError(t, err)
	require.Equal(t, int64(0), rc.Refs)
}
