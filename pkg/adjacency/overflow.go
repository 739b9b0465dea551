// ABOUTME: OverflowBlock — an unrolled chain of extra type buckets once a
// ABOUTME: node's inline slots are exhausted (§3, §4.6, scenario #5)

package adjacency

import (
	"encoding/binary"

	"github.com/nainya/sombra/pkg/page"
)

// overflowHeaderSize is the per-block header: next-block pointer (8 bytes).
const overflowHeaderSize = 8

// overflowBucketSize: type_id(4) + segment_ptr(8). Overflow buckets are
// never inline — the low-degree optimization (SPEC_FULL.md SUPPLEMENTED
// FEATURES item 1) only applies to a node's own six header slots, so the
// 7th+ distinct type on a node always costs a segment page.
const overflowBucketSize = 12

// overflowBlock is one page of the overflow chain: a "next" pointer
// followed by a flat array of TypeBucket entries, mirroring the freelist's
// unrolled-list shape (§3 "Freelist").
type overflowBlock []byte

func (b overflowBlock) getNext() uint64     { return binary.BigEndian.Uint64(b[0:8]) }
func (b overflowBlock) setNext(next uint64) { binary.BigEndian.PutUint64(b[0:8], next) }
func (b overflowBlock) capacity() int       { return (len(b) - overflowHeaderSize) / overflowBucketSize }

func (b overflowBlock) getBucket(idx int) TypeBucket {
	off := overflowHeaderSize + idx*overflowBucketSize
	return TypeBucket{
		TypeID:     binary.BigEndian.Uint32(b[off : off+4]),
		Mode:       BucketSegment,
		SegmentPtr: binary.BigEndian.Uint64(b[off+4 : off+12]),
	}
}

func (b overflowBlock) setBucket(idx int, bucket TypeBucket) {
	off := overflowHeaderSize + idx*overflowBucketSize
	binary.BigEndian.PutUint32(b[off:off+4], bucket.TypeID)
	binary.BigEndian.PutUint64(b[off+4:off+12], bucket.SegmentPtr)
}

// lookupOverflow walks the overflow chain rooted at head looking for
// typeID, returning its segment head (§4.6 step 2: "walk the overflow
// chain").
func lookupOverflow(rg readGuard, head uint64, typeID uint32) (uint64, bool, error) {
	for head != 0 {
		buf, err := rg.GetPage(head)
		if err != nil {
			return 0, false, err
		}
		block := overflowBlock(page.Payload(buf))
		n := block.capacity()
		for i := 0; i < n; i++ {
			bucket := block.getBucket(i)
			if bucket.SegmentPtr != 0 && bucket.TypeID == typeID {
				return bucket.SegmentPtr, true, nil
			}
		}
		head = block.getNext()
	}
	return 0, false, nil
}

// walkOverflowBuckets visits every bucket in the overflow chain rooted at
// head, in block order, until visit returns false.
func walkOverflowBuckets(rg readGuard, head uint64, visit func(TypeBucket) bool) error {
	for head != 0 {
		buf, err := rg.GetPage(head)
		if err != nil {
			return err
		}
		block := overflowBlock(page.Payload(buf))
		n := block.capacity()
		for i := 0; i < n; i++ {
			b := block.getBucket(i)
			if b.SegmentPtr == 0 {
				continue
			}
			if !visit(b) {
				return nil
			}
		}
		head = block.getNext()
	}
	return nil
}

// bindOverflow writes typeID's segment head into the overflow chain rooted
// at head, updating an existing entry if present or appending a new one
// into the first free slot, allocating a fresh block when every block in
// the chain is full. Returns the (possibly unchanged) chain root.
func bindOverflow(wg writeGuard, head uint64, typeID uint32, segmentPtr uint64) (uint64, error) {
	var blocks []uint64
	cur := head
	for cur != 0 {
		blocks = append(blocks, cur)
		buf, err := wg.GetPage(cur)
		if err != nil {
			return 0, err
		}
		cur = overflowBlock(page.Payload(buf)).getNext()
	}

	for _, id := range blocks {
		buf, err := wg.PageMut(id)
		if err != nil {
			return 0, err
		}
		block := overflowBlock(page.Payload(buf))
		n := block.capacity()
		freeIdx := -1
		for i := 0; i < n; i++ {
			b := block.getBucket(i)
			if b.SegmentPtr != 0 && b.TypeID == typeID {
				block.setBucket(i, TypeBucket{TypeID: typeID, SegmentPtr: segmentPtr})
				wg.Put(id, buf)
				return head, nil
			}
			if b.SegmentPtr == 0 && freeIdx == -1 {
				freeIdx = i
			}
		}
		if freeIdx != -1 {
			block.setBucket(freeIdx, TypeBucket{TypeID: typeID, SegmentPtr: segmentPtr})
			wg.Put(id, buf)
			return head, nil
		}
	}

	id, buf := wg.AllocatePage(page.KindAdjSegment)
	block := overflowBlock(page.Payload(buf))
	block.setNext(0)
	block.setBucket(0, TypeBucket{TypeID: typeID, SegmentPtr: segmentPtr})
	wg.Put(id, buf)

	if len(blocks) > 0 {
		tailID := blocks[len(blocks)-1]
		tailBuf, err := wg.PageMut(tailID)
		if err != nil {
			return 0, err
		}
		overflowBlock(page.Payload(tailBuf)).setNext(id)
		wg.Put(tailID, tailBuf)
		return head, nil
	}
	return id, nil
}
