package metastore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// MetadataFormatVersion is stamped into the export header line so a future
// importer can detect an incompatible dump (spec.md §6: "tagged with a
// metadata format version").
const MetadataFormatVersion = 1

const metadataTimeLayout = "2006-01-02 15:04:05"

// Export writes a line-oriented textual dump of versionUID and its blocks to
// w (spec.md §6 "Metadata export"): a header line, one version line, then
// one line per block.
func (s *Store) Export(ctx context.Context, versionUID string, w io.Writer) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	v, err := s.GetVersion(ctx, versionUID)
	if err != nil {
		return fmt.Errorf("metastore: export: %w", err)
	}

	blocks, err := s.GetBlocks(ctx, versionUID)
	if err != nil {
		return fmt.Errorf("metastore: export: %w", err)
	}

	if _, err := fmt.Fprintf(w, "backy2 Version %d metadata dump\n", MetadataFormatVersion); err != nil {
		return fmt.Errorf("metastore: export: write header: %w", err)
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = false

	versionRecord := []string{
		v.UID,
		v.Date.UTC().Format(metadataTimeLayout),
		v.Name,
		strconv.FormatInt(v.Size, 10),
		strconv.FormatInt(v.SizeBytes, 10),
		strconv.FormatBool(v.Valid),
	}
	if err := cw.Write(versionRecord); err != nil {
		return fmt.Errorf("metastore: export: write version: %w", err)
	}

	for _, b := range blocks {
		record := []string{
			stringOrEmpty(b.UID),
			v.UID,
			strconv.FormatInt(b.ID, 10),
			b.Date.UTC().Format(metadataTimeLayout),
			stringOrEmpty(b.Checksum),
			strconv.FormatInt(b.Size, 10),
			strconv.FormatBool(b.Valid),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("metastore: export: write block %d: %w", b.ID, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
