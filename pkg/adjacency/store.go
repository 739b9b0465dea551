// ABOUTME: Store — one direction's (forward or reverse) node-id -> header
// ABOUTME: index, plus the bucket lookup/bind logic that spans it (§4.6)

package adjacency

import (
	"github.com/nainya/sombra/pkg/mvcc"
	"github.com/nainya/sombra/pkg/page"
)

// readGuard and writeGuard are the pager guard method subsets adjacency
// needs, declared locally for the same reason pkg/mvcc and pkg/record
// declare their own: no direct import of pkg/pager from this package's
// exported surface.
type readGuard interface {
	GetPage(pageID uint64) ([]byte, error)
}

type writeGuard interface {
	GetPage(pageID uint64) ([]byte, error)
	PageMut(pageID uint64) ([]byte, error)
	AllocatePage(kind page.Kind) (uint64, []byte)
	Put(pageID uint64, buf []byte)
	FreePage(pageID uint64)
}

// Store is one direction's root index from node id to NodeAdjHeader. It
// reuses mvcc.Index's copy-on-write B-tree — the header value is not itself
// MVCC-versioned (only the segment entries it points to carry
// create_ts/delete_ts); a header changes only when a bucket is (re)bound to
// a different or newly allocated segment chain, or when an inline entry is
// added/removed directly in place. Inline entries carry no timestamps of
// their own — they inherit visibility from the header's unversioned
// "latest committed shape" the same way a segment pointer does (§3, and
// SPEC_FULL.md SUPPLEMENTED FEATURES item 1).
type Store struct {
	index *mvcc.Index
}

// OpenStore attaches a Store to an existing root (0 for empty), per
// meta.AdjFwdRoot / meta.AdjRevRoot.
func OpenStore(pagerPageSize uint32, root uint64) (*Store, error) {
	ix, err := mvcc.OpenIndex(pagerPageSize, root)
	if err != nil {
		return nil, err
	}
	return &Store{index: ix}, nil
}

// Root returns the index's current root page id, to be persisted in meta.
func (s *Store) Root() uint64 { return s.index.Root() }

// header loads nodeID's header, returning the zero header if none exists
// yet (a node with no adjacency entries in this direction).
func (s *Store) header(rg readGuard, nodeID uint64) (NodeAdjHeader, error) {
	raw, found, err := s.index.Get(rg, nodeID)
	if err != nil {
		return NodeAdjHeader{}, err
	}
	if !found {
		return NodeAdjHeader{}, nil
	}
	return DecodeHeader(raw), nil
}

// Lookup finds the bucket for (nodeID, typeID), or found=false if nodeID
// has no entries of that type. The returned bucket is BucketInline with its
// entries populated directly, or BucketSegment with a chain head to walk.
func (s *Store) Lookup(rg readGuard, nodeID uint64, typeID uint32) (TypeBucket, bool, error) {
	h, err := s.header(rg, nodeID)
	if err != nil {
		return TypeBucket{}, false, err
	}
	return h.Lookup(rg, typeID)
}

// AddEntry records one adjacency entry (neighborID, edgeID) for
// (nodeID, typeID), created at createTS. A type's first three entries are
// stored directly inline in the header bucket; the fourth promotes the
// bucket to a real segment chain (original_source's
// src/storage/graph/ifa/types.rs low-degree optimization). A brand-new type
// beyond the header's inline capacity goes straight to the overflow chain
// as a segment bucket, matching the pre-existing overflow behavior.
func (s *Store) AddEntry(wg writeGuard, nodeID uint64, typeID uint32, neighborID, edgeID, createTS uint64) error {
	h, err := s.header(wg, nodeID)
	if err != nil {
		return err
	}

	if idx := h.findBucket(typeID); idx != -1 {
		if err := s.addToBucket(wg, &h, idx, neighborID, edgeID, createTS); err != nil {
			return err
		}
		return s.putHeader(wg, nodeID, h)
	}

	if ov, isOverflow := h.overflowSlot(); isOverflow {
		newOverflowHead, err := s.addToOverflow(wg, ov.SegmentPtr, typeID, neighborID, edgeID, createTS)
		if err != nil {
			return err
		}
		h.Buckets[InlineBuckets-1].SegmentPtr = newOverflowHead
		return s.putHeader(wg, nodeID, h)
	}

	entry := InlineEntry{NeighborID: neighborID, EdgeID: edgeID}
	if h.bindInlineEntries(typeID, []InlineEntry{entry}) {
		return s.putHeader(wg, nodeID, h)
	}

	// Every inline slot is taken and none is in overflow mode yet: promote
	// the last slot into the overflow chain's head, moving whatever
	// occupied it there first so it is not lost, then append the new type.
	evicted := h.Buckets[InlineBuckets-1]
	var overflowHead uint64
	if evicted.used() {
		evictedSegID, err := s.asSegment(wg, evicted)
		if err != nil {
			return err
		}
		overflowHead, err = bindOverflow(wg, 0, evicted.TypeID, evictedSegID)
		if err != nil {
			return err
		}
	}
	segID, err := newSegment(wg)
	if err != nil {
		return err
	}
	segID, err = appendEntry(wg, segID, Entry{NeighborID: neighborID, EdgeID: edgeID, CreateTS: createTS})
	if err != nil {
		return err
	}
	overflowHead, err = bindOverflow(wg, overflowHead, typeID, segID)
	if err != nil {
		return err
	}
	h.Buckets[InlineBuckets-1] = TypeBucket{TypeID: OverflowTag, Mode: BucketSegment, SegmentPtr: overflowHead}
	return s.putHeader(wg, nodeID, h)
}

// addToBucket appends one entry into h.Buckets[idx], promoting an inline
// bucket to a segment chain once its fourth entry would be added.
func (s *Store) addToBucket(wg writeGuard, h *NodeAdjHeader, idx int, neighborID, edgeID, createTS uint64) error {
	b := h.Buckets[idx]
	if b.Mode == BucketSegment {
		newHead, err := appendEntry(wg, b.SegmentPtr, Entry{NeighborID: neighborID, EdgeID: edgeID, CreateTS: createTS})
		if err != nil {
			return err
		}
		h.Buckets[idx].SegmentPtr = newHead
		return nil
	}
	if len(b.Inline) < maxInlineEntries {
		next := append(append([]InlineEntry(nil), b.Inline...), InlineEntry{NeighborID: neighborID, EdgeID: edgeID})
		h.Buckets[idx] = TypeBucket{TypeID: b.TypeID, Mode: BucketInline, Inline: next}
		return nil
	}
	// Promoting: prior inline entries keep zero timestamps (always visible,
	// never hiding data a reader previously saw); only the new entry is
	// stamped with createTS.
	segID, err := newSegment(wg)
	if err != nil {
		return err
	}
	for _, ie := range b.Inline {
		segID, err = appendEntry(wg, segID, Entry{NeighborID: ie.NeighborID, EdgeID: ie.EdgeID})
		if err != nil {
			return err
		}
	}
	segID, err = appendEntry(wg, segID, Entry{NeighborID: neighborID, EdgeID: edgeID, CreateTS: createTS})
	if err != nil {
		return err
	}
	h.Buckets[idx] = TypeBucket{TypeID: b.TypeID, Mode: BucketSegment, SegmentPtr: segID}
	return nil
}

// addToOverflow appends an entry for typeID within the overflow chain
// rooted at head, creating typeID's bucket there if it doesn't exist yet.
// Overflow buckets are always segment chains — the low-degree inline
// optimization applies only to a node's own six header slots.
func (s *Store) addToOverflow(wg writeGuard, head uint64, typeID uint32, neighborID, edgeID, createTS uint64) (uint64, error) {
	ptr, found, err := lookupOverflow(wg, head, typeID)
	if err != nil {
		return 0, err
	}
	if !found {
		segID, err := newSegment(wg)
		if err != nil {
			return 0, err
		}
		segID, err = appendEntry(wg, segID, Entry{NeighborID: neighborID, EdgeID: edgeID, CreateTS: createTS})
		if err != nil {
			return 0, err
		}
		return bindOverflow(wg, head, typeID, segID)
	}
	newHead, err := appendEntry(wg, ptr, Entry{NeighborID: neighborID, EdgeID: edgeID, CreateTS: createTS})
	if err != nil {
		return 0, err
	}
	if newHead == ptr {
		return head, nil
	}
	return bindOverflow(wg, head, typeID, newHead)
}

// asSegment returns b's segment chain head, materializing one from its
// inline entries first if b is currently BucketInline.
func (s *Store) asSegment(wg writeGuard, b TypeBucket) (uint64, error) {
	if b.Mode == BucketSegment {
		return b.SegmentPtr, nil
	}
	segID, err := newSegment(wg)
	if err != nil {
		return 0, err
	}
	for _, ie := range b.Inline {
		segID, err = appendEntry(wg, segID, Entry{NeighborID: ie.NeighborID, EdgeID: ie.EdgeID})
		if err != nil {
			return 0, err
		}
	}
	return segID, nil
}

// RemoveEntry tombstones (segment bucket) or physically removes (inline
// bucket) the live entry matching (neighborID, edgeID) under (nodeID,
// typeID). Inline entries carry no delete_ts to set, so removal there is
// immediate rather than deferred to vacuum.
func (s *Store) RemoveEntry(wg writeGuard, nodeID uint64, typeID uint32, neighborID, edgeID, deleteTS uint64) (bool, error) {
	h, err := s.header(wg, nodeID)
	if err != nil {
		return false, err
	}

	if idx := h.findBucket(typeID); idx != -1 {
		b := h.Buckets[idx]
		if b.Mode == BucketInline {
			for i, ie := range b.Inline {
				if ie.NeighborID != neighborID || ie.EdgeID != edgeID {
					continue
				}
				remaining := append(append([]InlineEntry(nil), b.Inline[:i]...), b.Inline[i+1:]...)
				if len(remaining) == 0 {
					h.Buckets[idx] = TypeBucket{}
				} else {
					h.Buckets[idx] = TypeBucket{TypeID: b.TypeID, Mode: BucketInline, Inline: remaining}
				}
				return true, s.putHeader(wg, nodeID, h)
			}
			return false, nil
		}
		found, err := markDeleted(wg, b.SegmentPtr, neighborID, edgeID, deleteTS)
		return found, err
	}

	if ov, isOverflow := h.overflowSlot(); isOverflow {
		ptr, found, err := lookupOverflow(wg, ov.SegmentPtr, typeID)
		if err != nil || !found {
			return false, err
		}
		return markDeleted(wg, ptr, neighborID, edgeID, deleteTS)
	}
	return false, nil
}

func (s *Store) putHeader(wg writeGuard, nodeID uint64, h NodeAdjHeader) error {
	buf := make([]byte, HeaderSize)
	EncodeHeader(buf, h)
	return s.index.Put(wg, nodeID, buf)
}

// UsedTypes returns how many distinct edge types nodeID currently has
// bound, inline + segment + overflow, for degree/diagnostic purposes.
func (s *Store) UsedTypes(rg readGuard, nodeID uint64) (int, error) {
	h, err := s.header(rg, nodeID)
	if err != nil {
		return 0, err
	}
	n := h.usedInlineSlots()
	if ov, isOverflow := h.overflowSlot(); isOverflow {
		err := walkOverflowBuckets(rg, ov.SegmentPtr, func(TypeBucket) bool {
			n++
			return true
		})
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}
