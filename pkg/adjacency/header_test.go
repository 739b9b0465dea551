package adjacency

import (
	"path/filepath"
	"testing"

	"github.com/nainya/sombra/pkg/pager"
)

func openTestStore(t *testing.T) (*pager.Pager, *Store) {
	t.Helper()
	dir := t.TempDir()
	opts := pager.DefaultOptions()
	opts.CachePages = 64
	p, err := pager.Create(filepath.Join(dir, "adj.db"), opts)
	if err != nil {
		t.Fatalf("pager.Create: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	s, err := OpenStore(p.PageSize(), 0)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return p, s
}

// TestLowDegreeEntriesStayInline exercises the original_source-grounded
// low-degree optimization: a type's first three edges live directly in the
// header bucket, with no segment page allocated for them.
func TestLowDegreeEntriesStayInline(t *testing.T) {
	p, s := openTestStore(t)

	before := p.PageCount()

	wg := p.BeginWrite()
	for i := uint64(1); i <= 3; i++ {
		if err := s.AddEntry(wg, 100, 7, 200+i, 300+i, wg.CommitTS()); err != nil {
			t.Fatalf("AddEntry %d: %v", i, err)
		}
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("commit: %v", err)
	}

	after := p.PageCount()
	if after != before {
		t.Fatalf("expected no new pages allocated for 3 inline entries, before=%d after=%d", before, after)
	}

	rg := p.BeginRead()
	defer rg.Close()
	bucket, found, err := s.Lookup(rg, 100, 7)
	if err != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, err)
	}
	if bucket.Mode != BucketInline {
		t.Fatalf("expected BucketInline, got mode %v", bucket.Mode)
	}
	if len(bucket.Inline) != 3 {
		t.Fatalf("expected 3 inline entries, got %d", len(bucket.Inline))
	}
	for i, e := range bucket.Inline {
		want := uint64(201 + i)
		if e.NeighborID != want {
			t.Fatalf("entry %d: expected neighbor %d, got %d", i, want, e.NeighborID)
		}
	}
}

// TestFourthEntryPromotesBucketToSegment verifies the 4th edge of the same
// (node,type) promotes the bucket out of inline storage into a real segment
// chain, per original_source's "1-3 edges per type" inline ceiling.
func TestFourthEntryPromotesBucketToSegment(t *testing.T) {
	p, s := openTestStore(t)

	wg := p.BeginWrite()
	for i := uint64(1); i <= 4; i++ {
		if err := s.AddEntry(wg, 1, 9, 100+i, 200+i, wg.CommitTS()); err != nil {
			t.Fatalf("AddEntry %d: %v", i, err)
		}
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()
	bucket, found, err := s.Lookup(rg, 1, 9)
	if err != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, err)
	}
	if bucket.Mode != BucketSegment {
		t.Fatalf("expected promotion to BucketSegment, got mode %v", bucket.Mode)
	}

	var neighbors []uint64
	if err := walkSegments(rg, bucket.SegmentPtr, func(e Entry) bool {
		neighbors = append(neighbors, e.NeighborID)
		return true
	}); err != nil {
		t.Fatalf("walkSegments: %v", err)
	}
	if len(neighbors) != 4 {
		t.Fatalf("expected 4 entries in promoted segment chain, got %d", len(neighbors))
	}
}

// TestOverflowChainBeyondInlineBucketCapacity matches scenario 5 from the
// spec's testable properties: a node with edges to more distinct types
// than the header's inline slots can hold must traverse the overflow
// chain to find the later types, and every type remains independently
// reachable through Lookup.
func TestOverflowChainBeyondInlineBucketCapacity(t *testing.T) {
	p, s := openTestStore(t)

	const nodeID = 42
	const distinctTypes = 10

	wg := p.BeginWrite()
	for typeID := uint32(0); typeID < distinctTypes; typeID++ {
		if err := s.AddEntry(wg, nodeID, typeID, 1000+uint64(typeID), 2000+uint64(typeID), wg.CommitTS()); err != nil {
			t.Fatalf("AddEntry type %d: %v", typeID, err)
		}
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()

	h, err := s.header(rg, nodeID)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, isOverflow := h.overflowSlot(); !isOverflow {
		t.Fatalf("expected the 6th header slot to hold an overflow pointer once more than 6 types are bound")
	}

	n, err := s.UsedTypes(rg, nodeID)
	if err != nil {
		t.Fatalf("UsedTypes: %v", err)
	}
	if n != distinctTypes {
		t.Fatalf("expected %d used types, got %d", distinctTypes, n)
	}

	for typeID := uint32(0); typeID < distinctTypes; typeID++ {
		bucket, found, err := s.Lookup(rg, nodeID, typeID)
		if err != nil || !found {
			t.Fatalf("Lookup type %d: found=%v err=%v", typeID, found, err)
		}
		var neighbor uint64
		switch bucket.Mode {
		case BucketInline:
			if len(bucket.Inline) != 1 {
				t.Fatalf("type %d: expected 1 inline entry, got %d", typeID, len(bucket.Inline))
			}
			neighbor = bucket.Inline[0].NeighborID
		case BucketSegment:
			if err := walkSegments(rg, bucket.SegmentPtr, func(e Entry) bool {
				neighbor = e.NeighborID
				return false
			}); err != nil {
				t.Fatalf("walkSegments type %d: %v", typeID, err)
			}
		default:
			t.Fatalf("type %d: unexpected bucket mode %v", typeID, bucket.Mode)
		}
		want := 1000 + uint64(typeID)
		if neighbor != want {
			t.Fatalf("type %d: expected neighbor %d, got %d", typeID, want, neighbor)
		}
	}
}

// TestRemoveEntryFromOverflowChain deletes an edge type that only exists in
// the overflow chain and confirms the rest of the chain stays intact.
func TestRemoveEntryFromOverflowChain(t *testing.T) {
	p, s := openTestStore(t)

	const nodeID = 7
	const distinctTypes = 8 // types 5, 6 and 7 land in overflow (slots 0-4 inline + sentinel in slot 5)

	wg := p.BeginWrite()
	for typeID := uint32(0); typeID < distinctTypes; typeID++ {
		if err := s.AddEntry(wg, nodeID, typeID, 1, 10+uint64(typeID), wg.CommitTS()); err != nil {
			t.Fatalf("AddEntry type %d: %v", typeID, err)
		}
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("commit: %v", err)
	}

	overflowType := uint32(distinctTypes - 1)
	wg = p.BeginWrite()
	removed, err := s.RemoveEntry(wg, nodeID, overflowType, 1, 10+uint64(overflowType), wg.CommitTS())
	if err != nil || !removed {
		t.Fatalf("RemoveEntry: removed=%v err=%v", removed, err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("commit delete: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()

	if _, found, err := s.Lookup(rg, nodeID, overflowType); err != nil {
		t.Fatalf("Lookup removed type: %v", err)
	} else if found {
		var anyLive bool
		if bucket, _, _ := s.Lookup(rg, nodeID, overflowType); bucket.Mode == BucketSegment {
			_ = walkSegments(rg, bucket.SegmentPtr, func(e Entry) bool {
				if e.Visible(rg.SnapshotTS()) {
					anyLive = true
				}
				return true
			})
		}
		if anyLive {
			t.Fatalf("expected removed entry to no longer be visible")
		}
	}

	// A type earlier in the overflow chain must still resolve.
	otherType := uint32(distinctTypes - 2)
	bucket, found, err := s.Lookup(rg, nodeID, otherType)
	if err != nil || !found {
		t.Fatalf("Lookup surviving overflow type: found=%v err=%v", found, err)
	}
	if bucket.Mode != BucketSegment {
		t.Fatalf("expected overflow bucket to remain a segment, got mode %v", bucket.Mode)
	}
}
