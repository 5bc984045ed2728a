package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/backy2/backy2/internal/metastore"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"
)

// runInteractiveLs drops into a readline-style prompt where each line
// typed narrows the version list to names containing that substring,
// printed right away; an empty line re-prints the full list, and
// Ctrl-D/Ctrl-C exits. Column widths are padded with go-runewidth so
// multi-byte names (and box-drawing output pasted into one) still line
// up in a monospace terminal.
func runInteractiveLs(o *IO, versions []metastore.Version, cols []string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	o.Println(fmt.Sprintf("%d versions loaded. Type a substring to filter, empty to reset, Ctrl-D to quit.", len(versions)))

	filter := ""

	for {
		printInteractiveRows(o, versions, cols, filter)

		input, err := line.Prompt("ls> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}

			return fmt.Errorf("cli: ls --interactive: %w", err)
		}

		line.AppendHistory(input)

		filter = strings.TrimSpace(input)
	}
}

func printInteractiveRows(o *IO, versions []metastore.Version, cols []string, filter string) {
	widths := columnWidths(versions, cols)

	for _, v := range versions {
		if filter != "" && !strings.Contains(v.Name, filter) {
			continue
		}

		o.Println(padRow(formatVersionFields(v, cols), widths))
	}
}

func formatVersionFields(v metastore.Version, cols []string) []string {
	row := strings.Split(formatVersionRow(v, cols), "\t")
	return row
}

func columnWidths(versions []metastore.Version, cols []string) []int {
	widths := make([]int, len(cols))

	for i, c := range cols {
		widths[i] = runewidth.StringWidth(strings.TrimSpace(c))
	}

	for _, v := range versions {
		for i, f := range formatVersionFields(v, cols) {
			if w := runewidth.StringWidth(f); w > widths[i] {
				widths[i] = w
			}
		}
	}

	return widths
}

func padRow(fields []string, widths []int) string {
	parts := make([]string, len(fields))

	for i, f := range fields {
		pad := widths[i] - runewidth.StringWidth(f)
		if pad < 0 {
			pad = 0
		}

		parts[i] = f + strings.Repeat(" ", pad)
	}

	return strings.Join(parts, "  ")
}
