package cli

import (
	"testing"
	"time"

	"github.com/backy2/backy2/internal/metastore"
	"github.com/stretchr/testify/require"
)

func TestColumnWidths_GrowsToWidestValueInColumn(t *testing.T) {
	versions := []metastore.Version{
		{UID: "v1", Name: "short", Date: time.Unix(0, 0), Size: 1, Valid: true},
		{UID: "v2", Name: "a-much-longer-name", Date: time.Unix(0, 0), Size: 1, Valid: true},
	}

	widths := columnWidths(versions, []string{"uid", "name"})

	require.Equal(t, len("a-much-longer-name"), widths[1])
}

func TestPadRow_PadsShortFieldsToColumnWidth(t *testing.T) {
	row := padRow([]string{"ab", "cdef"}, []int{4, 4})

	require.Equal(t, "ab    cdef", row)
}

func TestPadRow_NeverTruncatesAnOverWidthField(t *testing.T) {
	row := padRow([]string{"toolong"}, []int{3})

	require.Equal(t, "toolong", row)
}
