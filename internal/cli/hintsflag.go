package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/backy2/backy2/internal/hints"
)

// hintRecord is the external wire shape for one hint entry (spec.md §6:
// "Derived externally, e.g. from RBD diff JSON").
type hintRecord struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
	Exists bool  `json:"exists"`
}

// loadHintsFile reads a JSON array of hint records from path. An empty
// path yields a nil (no-hints, read-everything) result.
func loadHintsFile(path string) ([]hints.Hint, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: read hints file: %w", err)
	}

	var records []hintRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("cli: parse hints file: %w", err)
	}

	out := make([]hints.Hint, len(records))
	for i, r := range records {
		out[i] = hints.Hint{Offset: r.Offset, Length: r.Length, Exists: r.Exists}
	}

	return out, nil
}
