// ABOUTME: Read-only enumeration helpers consumed by pkg/verify's
// ABOUTME: structural and dual-mode adjacency passes (§4.6, §4.9)

package graph

import (
	"encoding/binary"

	"github.com/nainya/sombra/pkg/adjacency"
	"github.com/nainya/sombra/pkg/pager"
)

// ScanNodeIDs walks every live node id >= start in ascending order, as of
// rg's snapshot tree shape, stopping early if fn returns false.
func (g *Graph) ScanNodeIDs(rg *pager.ReadGuard, start uint64, fn func(id uint64) bool) error {
	return g.nodes.ScanIDs(rg, start, fn)
}

// ScanEdgeIDs walks every live edge id >= start in ascending order, as of
// rg's snapshot tree shape, stopping early if fn returns false.
func (g *Graph) ScanEdgeIDs(rg *pager.ReadGuard, start uint64, fn func(id uint64) bool) error {
	return g.edges.ScanIDs(rg, start, fn)
}

// DualModeEnabled reports whether this Graph was opened with
// Options.AdjacencyBackend == Dual, mirroring every edge into a secondary
// B-tree alongside IFA (§4.6 "dual mode invariant").
func (g *Graph) DualModeEnabled() bool { return g.dual != nil }

// DualMismatch describes one (src,type,dst,edge) key present in exactly
// one of the two adjacency backends, a violation of §4.6's dual-mode
// invariant.
type DualMismatch struct {
	Src, Dst uint64
	Type     uint32
	EdgeID   uint64
	// InDual is true when the key exists in the B-tree mirror but IFA has
	// no matching forward-adjacency entry; false when IFA has the entry
	// but the dual B-tree is missing its mirror.
	InDual bool
}

// VerifyDualMode cross-checks the secondary B-tree adjacency mirror
// against IFA forward adjacency for every key the mirror holds, then the
// other direction for every live edge in the edge table. Returns nil,
// false if this Graph wasn't opened with the Dual backend.
func (g *Graph) VerifyDualMode(rg *pager.ReadGuard) ([]DualMismatch, bool, error) {
	if g.dual == nil {
		return nil, false, nil
	}

	var mismatches []DualMismatch

	// Every dual-index key must have a matching IFA forward entry.
	err := g.dual.Scan(rg, nil, func(key, _ []byte) bool {
		src, typeID, dst, edgeID, ok := decodeDualKey(key)
		if !ok {
			return true
		}
		if !ifaHasForward(rg, g, src, typeID, dst, edgeID) {
			mismatches = append(mismatches, DualMismatch{Src: src, Dst: dst, Type: typeID, EdgeID: edgeID, InDual: true})
		}
		return true
	})
	if err != nil {
		return mismatches, true, err
	}

	// Every live edge must have a matching dual-index entry.
	var scanErr error
	err = g.ScanEdgeIDs(rg, 0, func(id uint64) bool {
		e, found, getErr := g.GetEdge(rg, id)
		if getErr != nil {
			scanErr = getErr
			return false
		}
		if !found {
			return true
		}
		_, found, getErr = g.dual.Get(rg, dualKey(e.Src, e.Type, e.Dst, id))
		if getErr != nil {
			scanErr = getErr
			return false
		}
		if !found {
			mismatches = append(mismatches, DualMismatch{Src: e.Src, Dst: e.Dst, Type: e.Type, EdgeID: id, InDual: false})
		}
		return true
	})
	if err != nil {
		return mismatches, true, err
	}
	return mismatches, true, scanErr
}

func decodeDualKey(key []byte) (src uint64, typeID uint32, dst, edgeID uint64, ok bool) {
	if len(key) != 28 {
		return 0, 0, 0, 0, false
	}
	src = binary.BigEndian.Uint64(key[0:8])
	typeID = binary.BigEndian.Uint32(key[8:12])
	dst = binary.BigEndian.Uint64(key[12:20])
	edgeID = binary.BigEndian.Uint64(key[20:28])
	return src, typeID, dst, edgeID, true
}

func ifaHasForward(rg *pager.ReadGuard, g *Graph, src uint64, typeID uint32, dst, edgeID uint64) bool {
	cur, err := g.Expand(rg, src, adjacency.Out, &typeID, false)
	if err != nil {
		return false
	}
	for {
		n, more := cur.Next()
		if !more {
			return false
		}
		if n.NodeID == dst && n.EdgeID == edgeID {
			return true
		}
	}
}
