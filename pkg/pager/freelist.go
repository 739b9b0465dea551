// ABOUTME: On-disk freelist: an unrolled linked list of pages rooted in meta
// ABOUTME: Adapted from the teacher's LNode free-page pool with maxSeq fencing

package pager

import "encoding/binary"

// freelistHeaderSize is the per-node header: next-page pointer (8 bytes).
const freelistHeaderSize = 8

// freelistNode is one page of the unrolled freelist linked list: a "next"
// pointer followed by a flat array of freed page ids.
type freelistNode []byte

func (n freelistNode) getNext() uint64        { return binary.BigEndian.Uint64(n[0:8]) }
func (n freelistNode) setNext(next uint64)    { binary.BigEndian.PutUint64(n[0:8], next) }
func (n freelistNode) capacity() int          { return (len(n) - freelistHeaderSize) / 8 }
func (n freelistNode) getPtr(idx int) uint64 {
	off := freelistHeaderSize + idx*8
	return binary.BigEndian.Uint64(n[off : off+8])
}
func (n freelistNode) setPtr(idx int, ptr uint64) {
	off := freelistHeaderSize + idx*8
	binary.BigEndian.PutUint64(n[off:off+8], ptr)
}

// Freelist is the on-disk unrolled linked list of deleted pages, rooted in
// meta (§3 "Freelist"; SUPPLEMENTED FEATURES #3). The allocator pops from it
// before extending the file. maxSeq fences the list so a transaction never
// reuses a page it freed itself earlier in the same transaction (§4.1 write
// guard semantics) — popping only proceeds while headSeq < maxSeq.
type Freelist struct {
	pageSize uint32
	get      func(uint64) []byte
	new      func([]byte) uint64
	set      func(uint64, []byte)

	headPage uint64
	headSeq  uint64
	tailPage uint64
	tailSeq  uint64
	maxSeq   uint64
}

// NewFreelist constructs a Freelist over the given page-access callbacks.
func NewFreelist(pageSize uint32, get func(uint64) []byte, new func([]byte) uint64, set func(uint64, []byte)) *Freelist {
	return &Freelist{pageSize: pageSize, get: get, new: new, set: set}
}

// Total returns the number of pages currently on the list.
func (fl *Freelist) Total() int {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	return int(fl.tailSeq - fl.headSeq)
}

func (fl *Freelist) capacity() int {
	return (int(fl.pageSize) - freelistHeaderSize) / 8
}

// PopHead removes and returns a page id from the head of the list, or 0 if
// the list is empty or every remaining entry was freed within the
// in-flight transaction (maxSeq fencing).
func (fl *Freelist) PopHead() uint64 {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	if fl.maxSeq > 0 && fl.maxSeq < fl.tailSeq && fl.headSeq >= fl.maxSeq {
		return 0
	}
	if fl.headPage == 0 {
		return 0
	}

	n := fl.capacity()
	node := freelistNode(fl.get(fl.headPage))
	idx := int(fl.headSeq % uint64(n))
	ptr := node.getPtr(idx)
	fl.headSeq++

	if fl.headSeq%uint64(n) == 0 {
		next := node.getNext()
		if next != 0 {
			fl.PushTail(fl.headPage)
			fl.headPage = next
		}
	}
	return ptr
}

// PushTail appends a freed page id to the tail of the list.
func (fl *Freelist) PushTail(ptr uint64) {
	n := fl.capacity()

	if fl.tailPage == 0 {
		page := make([]byte, fl.pageSize)
		freelistNode(page).setNext(0)
		fl.tailPage = fl.new(page)
		if fl.headPage == 0 {
			fl.headPage = fl.tailPage
		}
	}

	idx := int(fl.tailSeq % uint64(n))
	if idx == 0 && fl.tailSeq > 0 {
		newPage := make([]byte, fl.pageSize)
		freelistNode(newPage).setNext(0)
		newTail := fl.new(newPage)

		oldPage := make([]byte, fl.pageSize)
		copy(oldPage, fl.get(fl.tailPage))
		freelistNode(oldPage).setNext(newTail)
		fl.set(fl.tailPage, oldPage)

		fl.tailPage = newTail
		idx = 0
	}

	page := make([]byte, fl.pageSize)
	copy(page, fl.get(fl.tailPage))
	freelistNode(page).setPtr(idx, ptr)
	fl.set(fl.tailPage, page)
	fl.tailSeq++
}

// Freeze fences the list so a page freed from this point on (within the
// current transaction) cannot be popped again until the transaction commits.
func (fl *Freelist) Freeze() { fl.maxSeq = fl.tailSeq }

// Release lifts the fence after a successful commit, making every page
// freed so far — including ones freed within the transaction that just
// committed — available for reuse.
func (fl *Freelist) Release() { fl.maxSeq = fl.tailSeq }

// State snapshots the freelist bookkeeping fields for meta persistence.
type FreelistState struct {
	HeadPage, HeadSeq, TailPage, TailSeq uint64
}

func (fl *Freelist) State() FreelistState {
	return FreelistState{fl.headPage, fl.headSeq, fl.tailPage, fl.tailSeq}
}

func (fl *Freelist) Restore(s FreelistState) {
	fl.headPage, fl.headSeq, fl.tailPage, fl.tailSeq = s.HeadPage, s.HeadSeq, s.TailPage, s.TailSeq
	if fl.tailSeq > 0 {
		fl.maxSeq = fl.tailSeq
	}
}
