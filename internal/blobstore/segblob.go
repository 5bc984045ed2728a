package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/backy2/backy2/internal/digest"
	"github.com/backy2/backy2/pkg/fs"
)

// segUIDHexChars is the number of hex characters of a content digest used
// to mint a segblob uid — short enough to fit the 32-byte fixed index field
// (spec.md §6), unlike fsblob's full-length hex digest.
const segUIDHexChars = segUIDFieldWidth

// SegBackend is the packed large-file container Data Backend (spec.md
// §4.4, §6): blobs live in fixed-size segment files, each segment holding
// up to segmentSize/blockSize slots plus a trailing index and count
// trailer.
type SegBackend struct {
	root   string
	fsys   fs.FS
	hasher digest.Hasher
	layout segmentLayout

	mu       sync.Mutex
	segments []*segmentFile
}

type segmentFile struct {
	path    string
	file    fs.File
	records []indexRecord // len == layout.numSlots, index == slot
}

// NewSegBackend opens (creating the directory if necessary) a segment-file
// container store rooted at dir. lfSize is the configured large-file size
// from which each segment's slot count is derived.
func NewSegBackend(dir string, vfs fs.FS, hasher digest.Hasher, lfSize, blockSize int64) (*SegBackend, error) {
	if blockSize <= 0 {
		return nil, errors.New("blobstore: blockSize must be positive")
	}

	if err := vfs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: create root %q: %w", dir, err)
	}

	b := &SegBackend{
		root:   dir,
		fsys:   vfs,
		hasher: hasher,
		layout: newSegmentLayout(lfSize, blockSize),
	}

	if err := b.loadExistingSegments(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *SegBackend) loadExistingSegments() error {
	entries, err := b.fsys.ReadDir(b.root)
	if err != nil {
		return fmt.Errorf("blobstore: list segments: %w", err)
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "seg-") && strings.HasSuffix(e.Name(), ".dat") {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	for _, name := range names {
		seg, err := b.openSegment(filepath.Join(b.root, name))
		if err != nil {
			return err
		}

		b.segments = append(b.segments, seg)
	}

	return nil
}

func (b *SegBackend) openSegment(path string) (*segmentFile, error) {
	file, err := b.fsys.OpenFile(path, os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open segment %q: %w", path, err)
	}

	records, err := readIndex(file, b.layout)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("blobstore: read segment index %q: %w", path, err)
	}

	if err := verifyTrailer(file, b.layout, records); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("blobstore: segment %q: %w", path, err)
	}

	return &segmentFile{path: path, file: file, records: records}, nil
}

// verifyTrailer re-reads the 16-byte block-count trailer and checks it
// against the index actually read, catching a segment left inconsistent by
// a crash between writing the index and writing the trailer.
func verifyTrailer(f fs.File, layout segmentLayout, records []indexRecord) error {
	if _, err := f.Seek(layout.trailerOffset(), io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, segTrailerSize)
	if _, err := readFull(f, buf); err != nil {
		return err
	}

	trailerCount, err := decodeTrailer(buf)
	if err != nil {
		return err
	}

	if want := countUsed(records); trailerCount != want {
		return fmt.Errorf("trailer block count %d does not match index (%d used slots)", trailerCount, want)
	}

	return nil
}

func readIndex(f fs.File, layout segmentLayout) ([]indexRecord, error) {
	records := make([]indexRecord, layout.numSlots)

	buf := make([]byte, segIndexRecordSize)

	for slot := int64(0); slot < layout.numSlots; slot++ {
		if _, err := f.Seek(layout.indexOffset(slot), io.SeekStart); err != nil {
			return nil, err
		}

		if _, err := readFull(f, buf); err != nil {
			return nil, err
		}

		rec, err := decodeIndexRecord(buf)
		if err != nil {
			return nil, err
		}

		records[slot] = rec
	}

	return records, nil
}

func readFull(f fs.File, buf []byte) (int, error) {
	total := 0

	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n

		if err != nil {
			return total, err
		}

		if n == 0 {
			return total, fmt.Errorf("blobstore: unexpected short read")
		}
	}

	return total, nil
}

// Save implements [Backend].
func (b *SegBackend) Save(data []byte) (string, error) {
	if int64(len(data)) > b.layout.blockSize {
		return "", fmt.Errorf("blobstore: blob of %d bytes exceeds segment slot size %d", len(data), b.layout.blockSize)
	}

	digestHex := b.hasher.SumBytes(data)
	uid := digestHex[:min(len(digestHex), segUIDHexChars)]

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, seg, slot, ok := b.findLocked(uid); ok {
		got, err := readSlot(seg.file, b.layout, slot, existing.Size)
		if err != nil {
			return "", fmt.Errorf("blobstore: verify existing %s: %w", uid, err)
		}

		if !bytes.Equal(got, data) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, uid)
		}

		return uid, nil
	}

	seg, slot, err := b.allocateSlotLocked()
	if err != nil {
		return "", err
	}

	if err := writeSlot(seg.file, b.layout, slot, data); err != nil {
		return "", fmt.Errorf("blobstore: write slot: %w", err)
	}

	rec := indexRecord{UID: uid, Size: int64(len(data))}
	if err := writeIndexRecord(seg.file, b.layout, slot, rec); err != nil {
		return "", fmt.Errorf("blobstore: write index record: %w", err)
	}

	seg.records[slot] = rec

	if err := writeTrailer(seg.file, b.layout, countUsed(seg.records)); err != nil {
		return "", fmt.Errorf("blobstore: write trailer: %w", err)
	}

	return uid, nil
}

// Read implements [Backend].
func (b *SegBackend) Read(uid string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, seg, slot, ok := b.findLocked(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}

	return readSlot(seg.file, b.layout, slot, rec.Size)
}

// Remove implements [Backend]. A missing uid is not an error.
func (b *SegBackend) Remove(uid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, seg, slot, ok := b.findLocked(uid)
	if !ok {
		return nil
	}

	free := indexRecord{}
	if err := writeIndexRecord(seg.file, b.layout, slot, free); err != nil {
		return fmt.Errorf("blobstore: remove %s: %w", uid, err)
	}

	seg.records[slot] = free

	return writeTrailer(seg.file, b.layout, countUsed(seg.records))
}

// RemoveMany implements [Backend].
func (b *SegBackend) RemoveMany(uids []string) ([]string, error) {
	var (
		notDeleted []string
		errs       []error
	)

	for _, uid := range uids {
		if err := b.Remove(uid); err != nil {
			notDeleted = append(notDeleted, uid)
			errs = append(errs, err)
		}
	}

	return notDeleted, errors.Join(errs...)
}

// AllUIDs implements [Backend].
func (b *SegBackend) AllUIDs(prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string

	for _, seg := range b.segments {
		for _, rec := range seg.records {
			if rec.free() {
				continue
			}

			if prefix == "" || strings.HasPrefix(rec.UID, prefix) {
				out = append(out, rec.UID)
			}
		}
	}

	return out, nil
}

// Close implements [Backend].
func (b *SegBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error

	for _, seg := range b.segments {
		if err := seg.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (b *SegBackend) findLocked(uid string) (indexRecord, *segmentFile, int64, bool) {
	for _, seg := range b.segments {
		for slot, rec := range seg.records {
			if !rec.free() && rec.UID == uid {
				return rec, seg, int64(slot), true
			}
		}
	}

	return indexRecord{}, nil, 0, false
}

func (b *SegBackend) allocateSlotLocked() (*segmentFile, int64, error) {
	for _, seg := range b.segments {
		for slot, rec := range seg.records {
			if rec.free() {
				return seg, int64(slot), nil
			}
		}
	}

	seg, err := b.createSegmentLocked()
	if err != nil {
		return nil, 0, err
	}

	return seg, 0, nil
}

func (b *SegBackend) createSegmentLocked() (*segmentFile, error) {
	name := fmt.Sprintf("seg-%06d.dat", len(b.segments))
	path := filepath.Join(b.root, name)

	file, err := b.fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create segment %q: %w", path, err)
	}

	records := make([]indexRecord, b.layout.numSlots)

	for slot := range records {
		if err := writeIndexRecord(file, b.layout, int64(slot), indexRecord{}); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("blobstore: init segment index: %w", err)
		}
	}

	if err := writeTrailer(file, b.layout, 0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("blobstore: init segment trailer: %w", err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("blobstore: sync new segment: %w", err)
	}

	seg := &segmentFile{path: path, file: file, records: records}
	b.segments = append(b.segments, seg)

	return seg, nil
}

func readSlot(f fs.File, layout segmentLayout, slot, size int64) ([]byte, error) {
	if _, err := f.Seek(layout.slotOffset(slot), io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if _, err := readFull(f, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

func writeSlot(f fs.File, layout segmentLayout, slot int64, data []byte) error {
	if _, err := f.Seek(layout.slotOffset(slot), io.SeekStart); err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		return err
	}

	return f.Sync()
}

func writeIndexRecord(f fs.File, layout segmentLayout, slot int64, rec indexRecord) error {
	buf, err := encodeIndexRecord(rec)
	if err != nil {
		return err
	}

	if _, err := f.Seek(layout.indexOffset(slot), io.SeekStart); err != nil {
		return err
	}

	if _, err := f.Write(buf); err != nil {
		return err
	}

	return f.Sync()
}

func writeTrailer(f fs.File, layout segmentLayout, blockCount int64) error {
	if _, err := f.Seek(layout.trailerOffset(), io.SeekStart); err != nil {
		return err
	}

	if _, err := f.Write(encodeTrailer(blockCount)); err != nil {
		return err
	}

	return f.Sync()
}

func countUsed(records []indexRecord) int64 {
	var n int64

	for _, r := range records {
		if !r.free() {
			n++
		}
	}

	return n
}

var _ Backend = (*SegBackend)(nil)
