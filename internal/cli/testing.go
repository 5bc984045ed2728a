package cli

import (
	"bytes"
	"strings"
	"testing"
)

// TestCLI provides a clean interface for running CLI commands in tests,
// backed by a fresh temp directory.
type TestCLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewTestCLI creates a new test CLI with a temp directory.
func NewTestCLI(t *testing.T) *TestCLI {
	t.Helper()

	return &TestCLI{t: t, Dir: t.TempDir(), Env: map[string]string{}}
}

// Run executes the CLI with the given args and returns stdout, stderr,
// and the exit code. Args should not include the program name or --cwd;
// both are supplied automatically.
func (c *TestCLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"backy2", "--cwd", c.Dir}, args...)
	code := Run(&outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if it returns a non-zero
// exit code. Returns trimmed stdout on success.
func (c *TestCLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with code %d\nstdout: %s\nstderr: %s", args, code, stdout, stderr)
	}

	return strings.TrimSpace(stdout)
}
