package fs_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/backy2/backy2/pkg/fs"
)

const testContentHello = "hello, atomic world"

func TestAtomicWriteFile_VisibleAfterWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fs.NewReal()
	writer := fs.NewAtomicWriter(real)

	path := filepath.Join(dir, "final.txt")

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := real.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriteFile_NoTempFileLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fs.NewReal()
	writer := fs.NewAtomicWriter(real)

	path := filepath.Join(dir, "blob.bin")

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	entries, err := real.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "blob.bin" {
		t.Fatalf("dir contents = %v, want exactly [blob.bin]", entries)
	}
}
