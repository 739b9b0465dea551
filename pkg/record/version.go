// ABOUTME: Version entries and the RecordPage slab they are bump-allocated
// ABOUTME: into — the on-disk shape of a node/edge version chain (§3, §9)

package record

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/sombra/pkg/errs"
	"github.com/nainya/sombra/pkg/page"
)

// VersionPtr locates one version entry: a page plus a byte offset into its
// payload (§9 "arena-of-pages + VersionPtr(PageId,u16) offsets").
type VersionPtr struct {
	PageID uint64
	Offset uint16
}

func (p VersionPtr) IsZero() bool { return p.PageID == 0 && p.Offset == 0 }

// VersionPtrSize is VersionPtr's fixed wire size, used as the B-tree
// index's value width for the primary id -> head-version lookup.
const VersionPtrSize = 10

// EncodeVersionPtr writes p into buf (must be >= VersionPtrSize).
func EncodeVersionPtr(buf []byte, p VersionPtr) {
	binary.BigEndian.PutUint64(buf[0:8], p.PageID)
	binary.BigEndian.PutUint16(buf[8:10], p.Offset)
}

// DecodeVersionPtr reads a VersionPtr back out of buf.
func DecodeVersionPtr(buf []byte) VersionPtr {
	return VersionPtr{
		PageID: binary.BigEndian.Uint64(buf[0:8]),
		Offset: binary.BigEndian.Uint16(buf[8:10]),
	}
}

// PayloadKind selects whether a version's payload is embedded or spilled.
type PayloadKind byte

const (
	PayloadInline PayloadKind = iota
	PayloadVRef
)

// Entry is one version in a logical node/edge's chain (§3 "Version chain").
// DeleteTS of 0 means "not yet deleted" (timestamps are 1-based, allocated
// by the oracle starting at 1).
type Entry struct {
	CreateTS    uint64
	DeleteTS    uint64
	Prev        VersionPtr
	PayloadKind PayloadKind
	Payload     []byte // inline record bytes, or an encoded VRef (VRefSize bytes)
}

// entryHeaderSize: create_ts(8) delete_ts(8) prev_page(8) prev_offset(2)
// payload_kind(1) payload_len(4) = 31.
const entryHeaderSize = 8 + 8 + 8 + 2 + 1 + 4

// Encode serializes e; the caller appends the result into a RecordPage slab.
func (e Entry) Encode() []byte {
	buf := make([]byte, entryHeaderSize+len(e.Payload))
	binary.BigEndian.PutUint64(buf[0:8], e.CreateTS)
	binary.BigEndian.PutUint64(buf[8:16], e.DeleteTS)
	binary.BigEndian.PutUint64(buf[16:24], e.Prev.PageID)
	binary.BigEndian.PutUint16(buf[24:26], e.Prev.Offset)
	buf[26] = byte(e.PayloadKind)
	binary.BigEndian.PutUint32(buf[27:31], uint32(len(e.Payload)))
	copy(buf[entryHeaderSize:], e.Payload)
	return buf
}

// DecodeEntry reads one Entry starting at buf[0], returning it and the
// number of bytes consumed.
func DecodeEntry(buf []byte) (Entry, int, error) {
	if len(buf) < entryHeaderSize {
		return Entry{}, 0, fmt.Errorf("record: truncated version entry header")
	}
	e := Entry{
		CreateTS: binary.BigEndian.Uint64(buf[0:8]),
		DeleteTS: binary.BigEndian.Uint64(buf[8:16]),
		Prev: VersionPtr{
			PageID: binary.BigEndian.Uint64(buf[16:24]),
			Offset: binary.BigEndian.Uint16(buf[24:26]),
		},
		PayloadKind: PayloadKind(buf[26]),
	}
	plen := int(binary.BigEndian.Uint32(buf[27:31]))
	total := entryHeaderSize + plen
	if len(buf) < total {
		return Entry{}, 0, fmt.Errorf("record: truncated version entry payload")
	}
	e.Payload = append([]byte(nil), buf[entryHeaderSize:total]...)
	return e, total, nil
}

// Visible reports whether e is the version a reader at snapshot ts should
// see: create_ts <= ts and (no delete_ts or delete_ts > ts) (§3, §4.7).
func (e Entry) Visible(ts uint64) bool {
	if e.CreateTS > ts {
		return false
	}
	if e.DeleteTS != 0 && e.DeleteTS <= ts {
		return false
	}
	return true
}

// Tombstone reports whether e is a terminal delete marker (empty payload,
// delete_ts set at creation — §4.7 "a delete writes a terminal version").
func (e Entry) Tombstone() bool { return e.DeleteTS != 0 && len(e.Payload) == 0 }

// --- RecordPage slab: a bump allocator for version entries ---
//
// Payload layout: [2 bytes next-free-offset][entries appended back to
// back, each self-describing via entryHeaderSize's length prefix]. Entries
// are never removed in place; mvcc.AppendVersion gives each version its
// own slab page, and GC frees that whole page once the version is
// unreachable (§4.7 GC).

const slabCursorSize = 2

// NewSlab initializes a fresh RecordPage payload's bump cursor.
func NewSlab(payload []byte) {
	binary.BigEndian.PutUint16(payload[:slabCursorSize], slabCursorSize)
}

func slabCursor(payload []byte) uint16 { return binary.BigEndian.Uint16(payload[:slabCursorSize]) }
func setSlabCursor(payload []byte, v uint16) {
	binary.BigEndian.PutUint16(payload[:slabCursorSize], v)
}

// SlabFree returns how many bytes remain before the payload is full.
func SlabFree(payload []byte) int {
	return len(payload) - int(slabCursor(payload))
}

// SlabAppend writes e's encoding at the current bump cursor, returning the
// offset it was written at. The caller must have checked SlabFree first.
func SlabAppend(payload []byte, e Entry) (uint16, error) {
	enc := e.Encode()
	cur := slabCursor(payload)
	if int(cur)+len(enc) > len(payload) {
		return 0, errs.New(errs.Invalid, "record.SlabAppend", fmt.Errorf("record page full"))
	}
	copy(payload[cur:], enc)
	setSlabCursor(payload, cur+uint16(len(enc)))
	return cur, nil
}

// SlabRead decodes the entry at offset within payload.
func SlabRead(payload []byte, offset uint16) (Entry, error) {
	if int(offset) >= len(payload) {
		return Entry{}, errs.New(errs.Corruption, "record.SlabRead", fmt.Errorf("offset %d out of range", offset))
	}
	e, _, err := DecodeEntry(payload[offset:])
	if err != nil {
		return Entry{}, errs.New(errs.Corruption, "record.SlabRead", err)
	}
	return e, nil
}

// EntrySize returns the on-disk size of e's encoding, for capacity checks
// before a slab append.
func EntrySize(e Entry) int { return entryHeaderSize + len(e.Payload) }

// RecordPayloadCapacity is how many payload bytes a RecordPage kind page
// offers once the page.Header and slab cursor are accounted for.
func RecordPayloadCapacity(pageSize uint32) int {
	return int(pageSize) - page.HeaderSize - slabCursorSize
}
