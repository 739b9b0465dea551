// ABOUTME: Fixed-size page layout shared by every on-disk structure
// ABOUTME: Implements the PageHeader, page kinds, and CRC32 checksum

package page

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the payload stored in a page.
type Kind byte

const (
	KindMeta          Kind = 1
	KindBTreeLeaf      Kind = 2
	KindBTreeInternal  Kind = 3
	KindRecord         Kind = 4
	KindFreelistNode   Kind = 5
	KindAdjSegment     Kind = 6
	KindOverflowValue  Kind = 7
)

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "Meta"
	case KindBTreeLeaf:
		return "BTreeLeaf"
	case KindBTreeInternal:
		return "BTreeInternal"
	case KindRecord:
		return "RecordPage"
	case KindFreelistNode:
		return "FreelistNode"
	case KindAdjSegment:
		return "AdjSegment"
	case KindOverflowValue:
		return "OverflowValue"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// HeaderSize is the fixed size, in bytes, of PageHeader.
//
// Layout: page_id(8) page_kind(1) reserved(3) page_size(4) salt(4) crc32(4) lsn_written(8) = 32
const HeaderSize = 32

// MinPageSize is the smallest page size the format allows.
const MinPageSize = 4096

// Header is the 32-byte header common to every page.
type Header struct {
	PageID     uint64
	Kind       Kind
	PageSize   uint32
	Salt       uint32
	CRC32      uint32
	LSNWritten uint64
}

// EncodeHeader writes h into the first HeaderSize bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint64(buf[0:8], h.PageID)
	buf[8] = byte(h.Kind)
	buf[9], buf[10], buf[11] = 0, 0, 0
	binary.BigEndian.PutUint32(buf[12:16], h.PageSize)
	binary.BigEndian.PutUint32(buf[16:20], h.Salt)
	binary.BigEndian.PutUint32(buf[20:24], h.CRC32)
	binary.BigEndian.PutUint64(buf[24:32], h.LSNWritten)
}

// DecodeHeader reads a Header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) Header {
	return Header{
		PageID:     binary.BigEndian.Uint64(buf[0:8]),
		Kind:       Kind(buf[8]),
		PageSize:   binary.BigEndian.Uint32(buf[12:16]),
		Salt:       binary.BigEndian.Uint32(buf[16:20]),
		CRC32:      binary.BigEndian.Uint32(buf[20:24]),
		LSNWritten: binary.BigEndian.Uint64(buf[24:32]),
	}
}

// ValidSize reports whether size is a legal page size: a power of two, at
// least MinPageSize.
func ValidSize(size uint32) bool {
	if size < MinPageSize {
		return false
	}
	return size&(size-1) == 0
}

// Payload returns the portion of buf following the header.
func Payload(buf []byte) []byte {
	return buf[HeaderSize:]
}

// Stamp recomputes and writes the CRC32 and LSN of a page buffer in place.
// The caller must have already set PageID/Kind/PageSize/Salt via
// EncodeHeader. The checksum covers (page_id, salt, payload) only — the
// header itself, including the CRC field, is never part of the sum.
func Stamp(buf []byte, salt uint32, lsn uint64) {
	h := DecodeHeader(buf)
	h.Salt = salt
	h.LSNWritten = lsn
	h.CRC32 = Checksum(h.PageID, salt, buf[HeaderSize:])
	EncodeHeader(buf, h)
}

// Verify reports whether buf's stored CRC32 matches its computed checksum.
func Verify(buf []byte) bool {
	h := DecodeHeader(buf)
	got := Checksum(h.PageID, h.Salt, buf[HeaderSize:])
	return got == h.CRC32
}
