// ABOUTME: Degree cache — optional per-type (degree_out, degree_in) counters
// ABOUTME: maintained transactionally alongside adjacency writes (§4.6, §9)

package adjacency

import (
	"encoding/binary"

	"github.com/nainya/sombra/pkg/mvcc"
)

// DegreeEntry is one type's cached degree counters for a node.
type DegreeEntry struct {
	TypeID uint32
	Out    uint32
	In     uint32
}

const degreeEntrySize = 4 + 4 + 4

func encodeDegrees(entries []DegreeEntry) []byte {
	buf := make([]byte, len(entries)*degreeEntrySize)
	for i, e := range entries {
		off := i * degreeEntrySize
		binary.BigEndian.PutUint32(buf[off:off+4], e.TypeID)
		binary.BigEndian.PutUint32(buf[off+4:off+8], e.Out)
		binary.BigEndian.PutUint32(buf[off+8:off+12], e.In)
	}
	return buf
}

func decodeDegrees(buf []byte) []DegreeEntry {
	n := len(buf) / degreeEntrySize
	entries := make([]DegreeEntry, n)
	for i := range entries {
		off := i * degreeEntrySize
		entries[i] = DegreeEntry{
			TypeID: binary.BigEndian.Uint32(buf[off : off+4]),
			Out:    binary.BigEndian.Uint32(buf[off+4 : off+8]),
			In:     binary.BigEndian.Uint32(buf[off+8 : off+12]),
		}
	}
	return entries
}

// DegreeCache is the optional feature-flagged index from node id to a
// flat list of per-type degree counters (§9 Open Questions: "Degree-cache
// feature is conditionally compiled; spec treats it as optional and
// independently testable" — here that means a nil *DegreeCache on
// Adjacency, never consulted unless GraphOptions.degree_cache is set).
type DegreeCache struct {
	index *mvcc.Index
}

// OpenDegreeCache attaches a DegreeCache to an existing root (0 for empty),
// per meta.DegreeCacheRoot.
func OpenDegreeCache(pagerPageSize uint32, root uint64) (*DegreeCache, error) {
	ix, err := mvcc.OpenIndex(pagerPageSize, root)
	if err != nil {
		return nil, err
	}
	return &DegreeCache{index: ix}, nil
}

// Root returns the cache's current root page id, to be persisted in meta.
func (d *DegreeCache) Root() uint64 { return d.index.Root() }

// Get returns nodeID's cached per-type degrees, or nil if it has none.
func (d *DegreeCache) Get(rg readGuard, nodeID uint64) ([]DegreeEntry, error) {
	raw, found, err := d.index.Get(rg, nodeID)
	if err != nil || !found {
		return nil, err
	}
	return decodeDegrees(raw), nil
}

// bump adjusts typeID's (outDelta, inDelta) for nodeID, creating the entry
// if it does not exist yet and dropping it once both counters reach zero.
func (d *DegreeCache) bump(wg writeGuard, nodeID uint64, typeID uint32, outDelta, inDelta int32) error {
	raw, found, err := d.index.Get(wg, nodeID)
	if err != nil {
		return err
	}
	var entries []DegreeEntry
	if found {
		entries = decodeDegrees(raw)
	}

	idx := -1
	for i, e := range entries {
		if e.TypeID == typeID {
			idx = i
			break
		}
	}
	if idx == -1 {
		entries = append(entries, DegreeEntry{TypeID: typeID})
		idx = len(entries) - 1
	}
	entries[idx].Out = addClampedUint32(entries[idx].Out, outDelta)
	entries[idx].In = addClampedUint32(entries[idx].In, inDelta)

	if entries[idx].Out == 0 && entries[idx].In == 0 {
		entries = append(entries[:idx], entries[idx+1:]...)
	}

	if len(entries) == 0 {
		_, err := d.index.Delete(wg, nodeID)
		return err
	}
	return d.index.Put(wg, nodeID, encodeDegrees(entries))
}

func addClampedUint32(v uint32, delta int32) uint32 {
	if delta >= 0 {
		return v + uint32(delta)
	}
	dec := uint32(-delta)
	if dec > v {
		return 0
	}
	return v - dec
}

// OnAddEdge bumps degree counters for a newly added (src,dst,typeID) edge.
// No-op on a nil receiver so callers can unconditionally invoke it when
// the degree cache feature is disabled.
func (d *DegreeCache) OnAddEdge(wg writeGuard, src, dst uint64, typeID uint32) error {
	if d == nil {
		return nil
	}
	if err := d.bump(wg, src, typeID, 1, 0); err != nil {
		return err
	}
	return d.bump(wg, dst, typeID, 0, 1)
}

// OnRemoveEdge mirrors OnAddEdge for an edge removal.
func (d *DegreeCache) OnRemoveEdge(wg writeGuard, src, dst uint64, typeID uint32) error {
	if d == nil {
		return nil
	}
	if err := d.bump(wg, src, typeID, -1, 0); err != nil {
		return err
	}
	return d.bump(wg, dst, typeID, 0, -1)
}
