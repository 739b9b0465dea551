// ABOUTME: NeighborCursor — snapshot-filtered iteration over a node's
// ABOUTME: adjacency in one or both directions (§4.6)

package adjacency

// Direction selects which side(s) of a node's adjacency a cursor walks.
type Direction int

const (
	Out Direction = iota
	In
	Both
)

// Neighbor is one entry a NeighborCursor yields.
type Neighbor struct {
	NodeID    uint64
	EdgeID    uint64
	Direction Direction
}

// NeighborCursor yields a node's neighbors filtered by MVCC visibility and
// optionally deduplicated. Order is implementation-defined but stable for
// a given snapshot (§4.6) — this implementation yields Out entries (in
// segment-chain order) before In entries when Direction is Both.
type NeighborCursor struct {
	items []Neighbor
	pos   int
}

// typeIDs collects every bound type for nodeID in store, or just [typeID]
// when a type filter is given.
func typeIDs(rg readGuard, store *Store, nodeID uint64, typeFilter *uint32) ([]uint32, error) {
	if typeFilter != nil {
		return []uint32{*typeFilter}, nil
	}
	h, err := store.header(rg, nodeID)
	if err != nil {
		return nil, err
	}
	var types []uint32
	limit := h.bucketLimit()
	for i := 0; i < limit; i++ {
		if h.Buckets[i].used() {
			types = append(types, h.Buckets[i].TypeID)
		}
	}
	if ov, isOverflow := h.overflowSlot(); isOverflow {
		err := walkOverflowBuckets(rg, ov.SegmentPtr, func(b TypeBucket) bool {
			types = append(types, b.TypeID)
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return types, nil
}

func collect(rg readGuard, store *Store, nodeID uint64, typeFilter *uint32, snapshotTS uint64, dir Direction, out *[]Neighbor) error {
	types, err := typeIDs(rg, store, nodeID, typeFilter)
	if err != nil {
		return err
	}
	for _, t := range types {
		bucket, found, err := store.Lookup(rg, nodeID, t)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if bucket.Mode == BucketInline {
			// Inline entries carry no create_ts/delete_ts of their own —
			// they inherit the header's unversioned "latest committed
			// shape" visibility, so every inline entry is always visible.
			for _, ie := range bucket.Inline {
				*out = append(*out, Neighbor{NodeID: ie.NeighborID, EdgeID: ie.EdgeID, Direction: dir})
			}
			continue
		}
		err = walkSegments(rg, bucket.SegmentPtr, func(e Entry) bool {
			if e.Visible(snapshotTS) {
				*out = append(*out, Neighbor{NodeID: e.NeighborID, EdgeID: e.EdgeID, Direction: dir})
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NewCursor materializes a NeighborCursor over (nodeID, direction, type?,
// snapshotTS). Entries not visible to snapshotTS are excluded. When
// distinct is true, repeated (NodeID) pairs across multiple edges are
// collapsed to their first occurrence.
func NewCursor(rg readGuard, adj *Adjacency, nodeID uint64, direction Direction, typeFilter *uint32, snapshotTS uint64, distinct bool) (*NeighborCursor, error) {
	var items []Neighbor
	if direction == Out || direction == Both {
		if err := collect(rg, adj.Fwd, nodeID, typeFilter, snapshotTS, Out, &items); err != nil {
			return nil, err
		}
	}
	if direction == In || direction == Both {
		if err := collect(rg, adj.Rev, nodeID, typeFilter, snapshotTS, In, &items); err != nil {
			return nil, err
		}
	}
	if distinct {
		items = dedupNeighbors(items)
	}
	return &NeighborCursor{items: items}, nil
}

func dedupNeighbors(items []Neighbor) []Neighbor {
	seen := make(map[uint64]bool, len(items))
	out := make([]Neighbor, 0, len(items))
	for _, it := range items {
		if seen[it.NodeID] {
			continue
		}
		seen[it.NodeID] = true
		out = append(out, it)
	}
	return out
}

// Next advances the cursor, returning false once exhausted.
func (c *NeighborCursor) Next() (Neighbor, bool) {
	if c.pos >= len(c.items) {
		return Neighbor{}, false
	}
	n := c.items[c.pos]
	c.pos++
	return n, true
}

// Len reports the total number of neighbors the cursor will yield.
func (c *NeighborCursor) Len() int { return len(c.items) }
