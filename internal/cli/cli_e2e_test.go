package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/cli"
)

func writeSourceFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, contents, 0o640))

	return "file://" + path
}

func TestCLI_BackupRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	c := cli.NewTestCLI(t)
	src := writeSourceFile(t, c.Dir, "source.img", []byte("abcdefghijkl"))

	uid := c.MustRun("backup", "--name", "v1", src)
	require.NotEmpty(t, uid)

	dst := "file://" + filepath.Join(c.Dir, "restored.img")
	c.MustRun("restore", uid, dst)

	got, err := os.ReadFile(filepath.Join(c.Dir, "restored.img"))
	require.NoError(t, err)
	require.Equal(t, []byte("abcdefghijkl"), got)
}

func TestCLI_BackupMissingNameFails(t *testing.T) {
	t.Parallel()

	c := cli.NewTestCLI(t)
	src := writeSourceFile(t, c.Dir, "source.img", []byte("abcd"))

	_, stderr, code := c.Run("backup", src)
	require.Equal(t, cli.ExitUnexpectedError, code)
	require.Contains(t, stderr, "--name is required")
}

func TestCLI_LsListsBackedUpVersions(t *testing.T) {
	t.Parallel()

	c := cli.NewTestCLI(t)
	src := writeSourceFile(t, c.Dir, "source.img", []byte("abcd"))

	uid := c.MustRun("backup", "--name", "my-version", src)

	out := c.MustRun("ls")
	require.Contains(t, out, uid)
	require.Contains(t, out, "my-version")
}

func TestCLI_ScrubReportsSoundness(t *testing.T) {
	t.Parallel()

	c := cli.NewTestCLI(t)
	src := writeSourceFile(t, c.Dir, "source.img", []byte("abcdefgh"))

	uid := c.MustRun("backup", "--name", "v1", src)

	out := c.MustRun("scrub", uid)
	require.Contains(t, out, "sound: true")
}

func TestCLI_RmTooYoungWithoutForceReturnsUnexpectedErrorCode(t *testing.T) {
	t.Parallel()

	c := cli.NewTestCLI(t)
	src := writeSourceFile(t, c.Dir, "source.img", []byte("abcd"))

	uid := c.MustRun("backup", "--name", "v1", src)

	_, _, code := c.Run("rm", uid)
	require.Equal(t, cli.ExitUnexpectedError, code)
}

func TestCLI_UnknownCommandReturnsUnexpectedErrorCode(t *testing.T) {
	t.Parallel()

	c := cli.NewTestCLI(t)

	_, stderr, code := c.Run("frobnicate")
	require.Equal(t, cli.ExitUnexpectedError, code)
	require.Contains(t, stderr, "unknown command")
}
