// ABOUTME: Adjacency — forward + reverse stores kept in lockstep so every
// ABOUTME: live edge has a mirror entry at both endpoints (§3 invariant, §4.6)

package adjacency

// Adjacency owns the forward (Out) and reverse (In) stores for the IFA
// layer. AddEdge/RemoveEdge write both sides of an edge in the same write
// guard, preserving the invariant: "for every live edge (src,dst,type)
// there exists a forward-adjacency entry at src and a reverse entry at
// dst, each visible to the same snapshot range" (§3).
type Adjacency struct {
	Fwd *Store
	Rev *Store

	// Degree is nil unless GraphOptions.degree_cache is enabled (§9).
	Degree *DegreeCache
}

// Open attaches forward and reverse stores to their meta roots. Pass
// degreeEnabled=false to leave the degree cache feature disabled
// regardless of degreeRoot (§9 "conditionally compiled").
func Open(pagerPageSize uint32, fwdRoot, revRoot uint64, degreeEnabled bool, degreeRoot uint64) (*Adjacency, error) {
	fwd, err := OpenStore(pagerPageSize, fwdRoot)
	if err != nil {
		return nil, err
	}
	rev, err := OpenStore(pagerPageSize, revRoot)
	if err != nil {
		return nil, err
	}
	a := &Adjacency{Fwd: fwd, Rev: rev}
	if degreeEnabled {
		a.Degree, err = OpenDegreeCache(pagerPageSize, degreeRoot)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// AddEdge records a live edge (src,dst,typeID,edgeID) at both src's forward
// bucket and dst's reverse bucket, stamped with createTS (§4.7: "create_ts
// = commit_ts").
func (a *Adjacency) AddEdge(wg writeGuard, src, dst uint64, typeID uint32, edgeID, createTS uint64) error {
	if err := a.Fwd.AddEntry(wg, src, typeID, dst, edgeID, createTS); err != nil {
		return err
	}
	if err := a.Rev.AddEntry(wg, dst, typeID, src, edgeID, createTS); err != nil {
		return err
	}
	return a.Degree.OnAddEdge(wg, src, dst, typeID)
}

// RemoveEdge tombstones (segment-backed buckets) or physically drops
// (inline buckets) both sides of (src,dst,typeID,edgeID) as of deleteTS.
// Physical reclamation of segment-backed entries is deferred to vacuum's
// compaction pass (§4.6, §4.8); inline entries have no tombstone state so
// their removal is immediate.
func (a *Adjacency) RemoveEdge(wg writeGuard, src, dst uint64, typeID uint32, edgeID, deleteTS uint64) error {
	if _, err := a.Fwd.RemoveEntry(wg, src, typeID, dst, edgeID, deleteTS); err != nil {
		return err
	}
	if _, err := a.Rev.RemoveEntry(wg, dst, typeID, src, edgeID, deleteTS); err != nil {
		return err
	}
	return a.Degree.OnRemoveEdge(wg, src, dst, typeID)
}
