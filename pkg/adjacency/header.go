// ABOUTME: NodeAdjHeader — six inline type buckets plus an overflow escape
// ABOUTME: hatch, the root of one node's per-direction adjacency (§3, §4.6)

package adjacency

import "encoding/binary"

// InlineBuckets is K, the number of type buckets a NodeAdjHeader carries
// inline before overflowing (§3: "72 B for K=6" in the baseline
// segment-pointer-only layout; see maxInlineEntries below for why Sombra's
// slots are wider).
const InlineBuckets = 6

// OverflowTag is the sentinel type_id marking the last inline slot as an
// overflow pointer rather than a real type bucket. TypeId is caller-defined
// but conventionally a small dense enum, so the all-ones u32 is safe to
// reserve.
const OverflowTag uint32 = 0xFFFFFFFF

// BucketMode distinguishes an empty slot, one holding up to maxInlineEntries
// edges directly, and one pointing at a segment chain (SUPPLEMENTED
// FEATURES item 1, grounded in original_source's
// src/storage/graph/ifa/types.rs: "For low-degree nodes, adjacency entries
// can be stored directly in the NodeAdjHeader instead of requiring a
// separate segment page").
type BucketMode byte

const (
	BucketEmpty BucketMode = iota
	BucketInline
	BucketSegment
)

// maxInlineEntries is the inline-storage cutover point (original_source:
// "Eliminates segment allocation for nodes with 1-3 edges per type"); the
// 4th entry for a (node,type) promotes the bucket to a real segment chain.
const maxInlineEntries = 3

// InlineEntry is one edge stored directly in a header bucket: 16 bytes
// (neighbor_id, edge_id) versus a full 32-byte segment Entry, because
// "inline entries inherit visibility from the header's creation time"
// rather than carrying their own create_ts/delete_ts.
type InlineEntry struct {
	NeighborID uint64
	EdgeID     uint64
}

const inlineEntrySize = 16 // neighbor_id(8) + edge_id(8)

// bucketDataSize is wide enough to hold maxInlineEntries InlineEntry values
// (the largest payload a slot ever carries); a segment bucket only uses the
// first 8 bytes of it for its SegmentPtr.
const bucketDataSize = maxInlineEntries * inlineEntrySize // 48

// typeBucketSlotSize: type_id(4) + mode(1) + count(1) + reserved(2) + data(48).
const typeBucketSlotSize = 4 + 1 + 1 + 2 + bucketDataSize // 56

// HeaderSize is NodeAdjHeader's fixed wire size. Widened from the baseline
// 72 B (K=6 segment-pointer-only buckets) to fit inline entries directly in
// the slot rather than spilling to a separate page (see SUPPLEMENTED
// FEATURES item 1 in SPEC_FULL.md).
const HeaderSize = InlineBuckets * typeBucketSlotSize

// TypeBucket is one inline slot: either a segment chain head for one edge
// type, up to three inline edges for that type, or (in the last slot) the
// overflow chain's head when TypeID == OverflowTag.
type TypeBucket struct {
	TypeID     uint32
	Mode       BucketMode
	SegmentPtr uint64        // valid when Mode == BucketSegment
	Inline     []InlineEntry // valid when Mode == BucketInline, len 1..maxInlineEntries
}

func (b TypeBucket) used() bool { return b.Mode != BucketEmpty }

// NodeAdjHeader is the root of one node's adjacency for one direction
// (forward or reverse), keyed by node id in a Store's index.
type NodeAdjHeader struct {
	Buckets [InlineBuckets]TypeBucket
}

// EncodeHeader writes h into buf (must be >= HeaderSize).
func EncodeHeader(buf []byte, h NodeAdjHeader) {
	for i, b := range h.Buckets {
		off := i * typeBucketSlotSize
		slot := buf[off : off+typeBucketSlotSize]
		binary.BigEndian.PutUint32(slot[0:4], b.TypeID)
		slot[4] = byte(b.Mode)
		switch b.Mode {
		case BucketSegment:
			slot[5] = 0
			binary.BigEndian.PutUint64(slot[8:16], b.SegmentPtr)
		case BucketInline:
			slot[5] = byte(len(b.Inline))
			for j, e := range b.Inline {
				eoff := 8 + j*inlineEntrySize
				binary.BigEndian.PutUint64(slot[eoff:eoff+8], e.NeighborID)
				binary.BigEndian.PutUint64(slot[eoff+8:eoff+16], e.EdgeID)
			}
		}
	}
}

// DecodeHeader reads a NodeAdjHeader out of buf.
func DecodeHeader(buf []byte) NodeAdjHeader {
	var h NodeAdjHeader
	for i := range h.Buckets {
		off := i * typeBucketSlotSize
		slot := buf[off : off+typeBucketSlotSize]
		b := TypeBucket{
			TypeID: binary.BigEndian.Uint32(slot[0:4]),
			Mode:   BucketMode(slot[4]),
		}
		switch b.Mode {
		case BucketSegment:
			b.SegmentPtr = binary.BigEndian.Uint64(slot[8:16])
		case BucketInline:
			n := int(slot[5])
			b.Inline = make([]InlineEntry, n)
			for j := 0; j < n; j++ {
				eoff := 8 + j*inlineEntrySize
				b.Inline[j] = InlineEntry{
					NeighborID: binary.BigEndian.Uint64(slot[eoff : eoff+8]),
					EdgeID:     binary.BigEndian.Uint64(slot[eoff+8 : eoff+16]),
				}
			}
		}
		h.Buckets[i] = b
	}
	return h
}

// overflowSlot reports whether slot K-1 is in use as the overflow pointer.
func (h NodeAdjHeader) overflowSlot() (TypeBucket, bool) {
	last := h.Buckets[InlineBuckets-1]
	return last, last.Mode == BucketSegment && last.TypeID == OverflowTag
}

// bucketLimit returns how many of h's slots are real type buckets — all of
// them, unless the last slot has been promoted to the overflow pointer.
func (h NodeAdjHeader) bucketLimit() int {
	if _, isOverflow := h.overflowSlot(); isOverflow {
		return InlineBuckets - 1
	}
	return InlineBuckets
}

// findBucket returns the index of typeID's slot within h's real buckets
// (excluding the overflow slot), or -1.
func (h NodeAdjHeader) findBucket(typeID uint32) int {
	limit := h.bucketLimit()
	for i := 0; i < limit; i++ {
		if h.Buckets[i].used() && h.Buckets[i].TypeID == typeID {
			return i
		}
	}
	return -1
}

// Lookup finds typeID's bucket, scanning inline buckets first (§4.6
// "linear, K=6 fits a cache line") and falling through to the overflow
// chain only when the last slot is in overflow mode. A found inline bucket
// is returned with Mode == BucketInline and its entries populated directly
// — the caller does not need a segment page read at all for a low-degree
// type, matching original_source's "reduces low-degree node lookup from 2
// page reads to 1".
func (h NodeAdjHeader) Lookup(rg readGuard, typeID uint32) (bucket TypeBucket, found bool, err error) {
	if typeID == OverflowTag {
		return TypeBucket{}, false, nil
	}
	if idx := h.findBucket(typeID); idx != -1 {
		return h.Buckets[idx], true, nil
	}
	if ov, isOverflow := h.overflowSlot(); isOverflow {
		ptr, found, err := lookupOverflow(rg, ov.SegmentPtr, typeID)
		if err != nil || !found {
			return TypeBucket{}, found, err
		}
		return TypeBucket{TypeID: typeID, Mode: BucketSegment, SegmentPtr: ptr}, true, nil
	}
	return TypeBucket{}, false, nil
}

// usedInlineSlots returns how many of the non-overflow inline slots are
// occupied by a real type bucket (inline or segment).
func (h NodeAdjHeader) usedInlineSlots() int {
	limit := h.bucketLimit()
	n := 0
	for i := 0; i < limit; i++ {
		if h.Buckets[i].used() {
			n++
		}
	}
	return n
}

// bindInlineEntries writes entries directly into typeID's slot as a
// BucketInline bucket, into its existing slot or the first free one.
// Returns false if no inline slot is available.
func (h *NodeAdjHeader) bindInlineEntries(typeID uint32, entries []InlineEntry) bool {
	limit := h.bucketLimit()
	if idx := h.findBucket(typeID); idx != -1 {
		h.Buckets[idx] = TypeBucket{TypeID: typeID, Mode: BucketInline, Inline: entries}
		return true
	}
	for i := 0; i < limit; i++ {
		if !h.Buckets[i].used() {
			h.Buckets[i] = TypeBucket{TypeID: typeID, Mode: BucketInline, Inline: entries}
			return true
		}
	}
	return false
}
