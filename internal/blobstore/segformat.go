package blobstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Binary layout of one segment container file (spec.md §6 "Large-file
// segment layout"):
//
//	[ segmentSize bytes of fixed-width block slots ]
//	[ numSlots index records, each (uid: 32 bytes, size: 10 ascii digits) ]
//	[ 16-byte ascii trailer holding the block count ]
//
// Offsets below are computed per segment rather than fixed constants (the
// teacher's pkg/slotcache/format.go fixes header offsets because its file
// shape never changes; here segmentSize/numSlots vary per configuration, so
// the analogous "offset table" is a small set of derived accessor funcs
// instead of compile-time constants).
const (
	segUIDFieldWidth  = 32
	segSizeFieldWidth = 10
	segIndexRecordSize = segUIDFieldWidth + segSizeFieldWidth
	segTrailerSize    = 16
)

// segmentLayout pins down the geometry of one segment file for a given
// configuration (spec.md §6: segment_size = floor(lf_size/block_size) *
// block_size).
type segmentLayout struct {
	blockSize   int64
	segmentSize int64
	numSlots    int64
}

func newSegmentLayout(lfSize, blockSize int64) segmentLayout {
	numSlots := lfSize / blockSize
	return segmentLayout{
		blockSize:   blockSize,
		segmentSize: numSlots * blockSize,
		numSlots:    numSlots,
	}
}

func (l segmentLayout) slotOffset(slot int64) int64 {
	return slot * l.blockSize
}

func (l segmentLayout) indexOffset(slot int64) int64 {
	return l.segmentSize + slot*segIndexRecordSize
}

func (l segmentLayout) trailerOffset() int64 {
	return l.segmentSize + l.numSlots*segIndexRecordSize
}

func (l segmentLayout) fileSize() int64 {
	return l.trailerOffset() + segTrailerSize
}

// indexRecord is the decoded form of one (uid, size) slot descriptor. A zero
// Size means the slot is free (spec.md §6: "a slot with size = 0 is free").
type indexRecord struct {
	UID  string
	Size int64
}

func (r indexRecord) free() bool { return r.Size == 0 }

func encodeIndexRecord(r indexRecord) ([]byte, error) {
	if len(r.UID) > segUIDFieldWidth {
		return nil, fmt.Errorf("blobstore: uid %q exceeds %d-byte segment index field", r.UID, segUIDFieldWidth)
	}

	buf := make([]byte, segIndexRecordSize)
	copy(buf, []byte(r.UID))

	for i := len(r.UID); i < segUIDFieldWidth; i++ {
		buf[i] = 0
	}

	sizeField := fmt.Sprintf("%0*d", segSizeFieldWidth, r.Size)
	copy(buf[segUIDFieldWidth:], []byte(sizeField))

	return buf, nil
}

func decodeIndexRecord(buf []byte) (indexRecord, error) {
	if len(buf) != segIndexRecordSize {
		return indexRecord{}, fmt.Errorf("blobstore: short index record: %d bytes", len(buf))
	}

	uid := strings.TrimRight(string(buf[:segUIDFieldWidth]), "\x00")

	sizeStr := string(buf[segUIDFieldWidth:])

	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return indexRecord{}, fmt.Errorf("blobstore: parse index size %q: %w", sizeStr, err)
	}

	return indexRecord{UID: uid, Size: size}, nil
}

func encodeTrailer(blockCount int64) []byte {
	return []byte(fmt.Sprintf("%0*d", segTrailerSize, blockCount))
}

func decodeTrailer(buf []byte) (int64, error) {
	if len(buf) != segTrailerSize {
		return 0, fmt.Errorf("blobstore: short trailer: %d bytes", len(buf))
	}

	return strconv.ParseInt(strings.TrimSpace(string(buf)), 10, 64)
}
