package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanupFast_ReclaimsBlobsAfterGraceExpires(t *testing.T) {
	t.Parallel()

	env := newTestEngine(t)
	ctx := context.Background()

	src := writeSourceFile(t, []byte("abcdefgh"))
	uid, err := env.Engine.Backup(ctx, "v1", src, nil, "")
	require.NoError(t, err)

	blocks, err := env.Meta.GetBlocks(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, blocks[0].UID)

	require.NoError(t, env.Engine.Remove(ctx, uid, true, 0))

	// graceSeconds=0: refcount dropped to zero "now", the grace interval
	// has already elapsed.
	require.NoError(t, env.Engine.CleanupFast(ctx, 0))

	allUIDs, err := env.Data.AllUIDs("")
	require.NoError(t, err)
	require.Empty(t, allUIDs)
}

func TestCleanupFast_WithinGraceLeavesBlobsInPlace(t *testing.T) {
	t.Parallel()

	env := newTestEngine(t)
	ctx := context.Background()

	src := writeSourceFile(t, []byte("abcdefgh"))
	uid, err := env.Engine.Backup(ctx, "v1", src, nil, "")
	require.NoError(t, err)

	require.NoError(t, env.Engine.Remove(ctx, uid, true, 0))

	// A long grace interval means the just-zeroed refcount is not yet a
	// delete candidate.
	require.NoError(t, env.Engine.CleanupFast(ctx, 3600))

	allUIDs, err := env.Data.AllUIDs("")
	require.NoError(t, err)
	require.NotEmpty(t, allUIDs)
}

func TestCleanupFull_RemovesOrphanBlobsNotReferencedByMeta(t *testing.T) {
	t.Parallel()

	env := newTestEngine(t)

	orphanUID, err := env.Data.Save([]byte("nobody-references-this"))
	require.NoError(t, err)

	src := writeSourceFile(t, []byte("abcdefgh"))
	_, err = env.Engine.Backup(context.Background(), "v1", src, nil, "")
	require.NoError(t, err)

	require.NoError(t, env.Engine.CleanupFull(context.Background(), ""))

	allUIDs, err := env.Data.AllUIDs("")
	require.NoError(t, err)
	require.NotContains(t, allUIDs, orphanUID)
}
