package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/engine"
)

// corruptBlob overwrites the on-disk bytes of a blob stored by the
// sharded file backend, mirroring its fixed 2/2 shard layout (see
// blobstore.FSBackend.pathFor) so tests can simulate silent bitrot
// without a backdoor into the Backend interface.
func corruptBlob(t *testing.T, dir, uid string) {
	t.Helper()

	shard := uid
	if len(shard) > 4 {
		shard = shard[:4]
	}

	path := filepath.Join(dir, "blobs", shard[0:2], shard[2:4], uid)

	require.NoError(t, os.WriteFile(path, []byte("corrupted-bytes-not-matching-checksum"), 0o640))
}

func TestScrub_CorruptedBlob_InvalidatesVersionAndReportsUnsound(t *testing.T) {
	t.Parallel()

	env := newTestEngine(t)
	ctx := context.Background()

	src := writeSourceFile(t, []byte("abcdefghijkl")) // 3 blocks of 4

	uid, err := env.Engine.Backup(ctx, "v1", src, nil, "")
	require.NoError(t, err)

	blocks, err := env.Meta.GetBlocks(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, blocks[0].UID)

	corruptBlob(t, env.Dir, *blocks[0].UID)

	sound, err := env.Engine.Scrub(ctx, uid, "", 100)
	require.NoError(t, err)
	require.False(t, sound)

	v, err := env.Meta.GetVersion(ctx, uid)
	require.NoError(t, err)
	require.False(t, v.Valid)

	// A subsequent backup using this version as a base must be rejected.
	src2 := writeSourceFile(t, []byte("abcdefghijkl"))
	_, err = env.Engine.Backup(ctx, "v2", src2, nil, uid)
	require.ErrorIs(t, err, engine.ErrInvalidBase)
}

func TestScrub_SoundVersion_StaysValid(t *testing.T) {
	t.Parallel()

	env := newTestEngine(t)
	ctx := context.Background()

	src := writeSourceFile(t, []byte("abcdefghijkl"))

	uid, err := env.Engine.Backup(ctx, "v1", src, nil, "")
	require.NoError(t, err)

	sound, err := env.Engine.Scrub(ctx, uid, "", 100)
	require.NoError(t, err)
	require.True(t, sound)

	v, err := env.Meta.GetVersion(ctx, uid)
	require.NoError(t, err)
	require.True(t, v.Valid)
}

func TestScrub_SourceDrift_ReportsUnsoundButDoesNotInvalidate(t *testing.T) {
	t.Parallel()

	env := newTestEngine(t)
	ctx := context.Background()

	original := []byte("abcdefghijkl")
	srcPath := writeSourceFile(t, original)

	uid, err := env.Engine.Backup(ctx, "v1", srcPath, nil, "")
	require.NoError(t, err)

	blocksBefore, err := env.Meta.GetBlocks(ctx, uid)
	require.NoError(t, err)

	// Mutate the live source out from under the backup without touching
	// the stored blob: scrub must report drift but leave the block sound.
	drifted, ok := strings.CutPrefix(srcPath, "file://")
	require.True(t, ok)
	require.NoError(t, os.WriteFile(drifted, []byte("ZZZZefghijkl"), 0o640))

	sound, err := env.Engine.Scrub(ctx, uid, srcPath, 100)
	require.NoError(t, err)
	require.False(t, sound)

	blocksAfter, err := env.Meta.GetBlocks(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, blocksBefore[0].UID, blocksAfter[0].UID)
	require.Equal(t, blocksBefore[0].Checksum, blocksAfter[0].Checksum)
}
