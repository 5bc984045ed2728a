package digest_test

import (
	"bytes"
	"testing"

	"github.com/backy2/backy2/internal/digest"
)

func TestSHA512_SumMatchesSumBytes(t *testing.T) {
	t.Parallel()

	data := []byte("the quick brown fox")

	fromBytes := digest.SHA512.SumBytes(data)

	fromReader, err := digest.SHA512.Sum(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if fromBytes != fromReader {
		t.Fatalf("SumBytes=%q Sum=%q, want equal", fromBytes, fromReader)
	}

	if len(fromBytes) != 128 {
		t.Fatalf("len(digest)=%d, want 128 hex chars for sha512", len(fromBytes))
	}
}

func TestSHA512_DifferentInputsDifferentDigests(t *testing.T) {
	t.Parallel()

	a := digest.SHA512.SumBytes([]byte("a"))
	b := digest.SHA512.SumBytes([]byte("b"))

	if a == b {
		t.Fatalf("digest collision for distinct inputs")
	}
}
