// ABOUTME: Segment pages — per (node,type) adjacency entries with an extent
// ABOUTME: chain when a run outgrows one page (§3, §4.6)

package adjacency

import (
	"encoding/binary"

	"github.com/nainya/sombra/pkg/page"
)

// Entry is one adjacency record: an edge from the owning node's perspective
// to neighborID via edgeID, alive in [CreateTS, DeleteTS) (§3
// "{ neighbor_id, edge_id, create_ts, delete_ts_opt }").
type Entry struct {
	NeighborID uint64
	EdgeID     uint64
	CreateTS   uint64
	DeleteTS   uint64
}

// Visible reports whether e is alive under snapshot ts (same rule as a
// version entry's visibility, §4.7).
func (e Entry) Visible(ts uint64) bool {
	return e.CreateTS <= ts && (e.DeleteTS == 0 || e.DeleteTS > ts)
}

// entrySize: neighbor_id(8) edge_id(8) create_ts(8) delete_ts(8).
const entrySize = 32

// segmentHeaderSize: next_segment(8) count(2).
const segmentHeaderSize = 10

type segmentPage []byte

func (s segmentPage) getNext() uint64     { return binary.BigEndian.Uint64(s[0:8]) }
func (s segmentPage) setNext(next uint64) { binary.BigEndian.PutUint64(s[0:8], next) }
func (s segmentPage) getCount() int       { return int(binary.BigEndian.Uint16(s[8:10])) }
func (s segmentPage) setCount(n int)      { binary.BigEndian.PutUint16(s[8:10], uint16(n)) }
func (s segmentPage) capacity() int       { return (len(s) - segmentHeaderSize) / entrySize }

func (s segmentPage) getEntry(idx int) Entry {
	off := segmentHeaderSize + idx*entrySize
	return Entry{
		NeighborID: binary.BigEndian.Uint64(s[off : off+8]),
		EdgeID:     binary.BigEndian.Uint64(s[off+8 : off+16]),
		CreateTS:   binary.BigEndian.Uint64(s[off+16 : off+24]),
		DeleteTS:   binary.BigEndian.Uint64(s[off+24 : off+32]),
	}
}

func (s segmentPage) setEntry(idx int, e Entry) {
	off := segmentHeaderSize + idx*entrySize
	binary.BigEndian.PutUint64(s[off:off+8], e.NeighborID)
	binary.BigEndian.PutUint64(s[off+8:off+16], e.EdgeID)
	binary.BigEndian.PutUint64(s[off+16:off+24], e.CreateTS)
	binary.BigEndian.PutUint64(s[off+24:off+32], e.DeleteTS)
}

// newSegment allocates a fresh, empty segment page.
func newSegment(wg writeGuard) (uint64, error) {
	id, buf := wg.AllocatePage(page.KindAdjSegment)
	seg := segmentPage(page.Payload(buf))
	seg.setNext(0)
	seg.setCount(0)
	wg.Put(id, buf)
	return id, nil
}

// appendEntry appends e to the tail segment of the chain rooted at head,
// allocating a new page and linking it when the tail is full (§4.6
// "Insert: append to the tail segment; if full, allocate a new segment
// page and link"). Returns the (possibly unchanged) chain root — head is
// never relocated, only extended.
func appendEntry(wg writeGuard, head uint64, e Entry) (uint64, error) {
	if head == 0 {
		id, err := newSegment(wg)
		if err != nil {
			return 0, err
		}
		head = id
	}

	tailID := head
	for {
		buf, err := wg.GetPage(tailID)
		if err != nil {
			return 0, err
		}
		next := segmentPage(page.Payload(buf)).getNext()
		if next == 0 {
			break
		}
		tailID = next
	}

	buf, err := wg.PageMut(tailID)
	if err != nil {
		return 0, err
	}
	seg := segmentPage(page.Payload(buf))
	if seg.getCount() < seg.capacity() {
		seg.setEntry(seg.getCount(), e)
		seg.setCount(seg.getCount() + 1)
		wg.Put(tailID, buf)
		return head, nil
	}

	newID, err := newSegment(wg)
	if err != nil {
		return 0, err
	}
	seg.setNext(newID)
	wg.Put(tailID, buf)

	newBuf, err := wg.PageMut(newID)
	if err != nil {
		return 0, err
	}
	newSeg := segmentPage(page.Payload(newBuf))
	newSeg.setEntry(0, e)
	newSeg.setCount(1)
	wg.Put(newID, newBuf)
	return head, nil
}

// markDeleted sets delete_ts on the first live entry in the chain matching
// (neighborID, edgeID) — the logical delete of one adjacency entry.
// Physical compaction is deferred to vacuum (§4.6 "Delete: mark the
// entry's delete_ts; physical compaction is deferred to vacuum").
func markDeleted(wg writeGuard, head uint64, neighborID, edgeID, deleteTS uint64) (bool, error) {
	for head != 0 {
		buf, err := wg.PageMut(head)
		if err != nil {
			return false, err
		}
		seg := segmentPage(page.Payload(buf))
		n := seg.getCount()
		for i := 0; i < n; i++ {
			e := seg.getEntry(i)
			if e.NeighborID == neighborID && e.EdgeID == edgeID && e.DeleteTS == 0 {
				e.DeleteTS = deleteTS
				seg.setEntry(i, e)
				wg.Put(head, buf)
				return true, nil
			}
		}
		head = seg.getNext()
	}
	return false, nil
}

// walkSegments visits every entry in the chain rooted at head, in segment
// order, until visit returns false.
func walkSegments(rg readGuard, head uint64, visit func(Entry) bool) error {
	for head != 0 {
		buf, err := rg.GetPage(head)
		if err != nil {
			return err
		}
		seg := segmentPage(page.Payload(buf))
		n := seg.getCount()
		for i := 0; i < n; i++ {
			if !visit(seg.getEntry(i)) {
				return nil
			}
		}
		head = seg.getNext()
	}
	return nil
}
