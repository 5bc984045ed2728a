package metastore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/metastore"
)

func openTestStore(t *testing.T) *metastore.Store {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "meta.db")

	s, err := metastore.Open(context.Background(), path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpen_CreatesSchemaIdempotently(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "meta.db")
	ctx := context.Background()

	s1, err := metastore.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := metastore.Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	_, err = s2.SetVersion(ctx, "reopened", 1, 4096, true)
	require.NoError(t, err)
}

func TestStore_ClosedReturnsErrClosed(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetVersions(context.Background())
	require.ErrorIs(t, err, metastore.ErrClosed)
}
