// ABOUTME: Graph — the top-level node/edge/adjacency API tying the pager,
// ABOUTME: MVCC managers, and IFA layer together (§6 "Graph::open")

package graph

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/nainya/sombra/internal/logger"
	"github.com/nainya/sombra/internal/metrics"
	"github.com/nainya/sombra/pkg/adjacency"
	"github.com/nainya/sombra/pkg/errs"
	"github.com/nainya/sombra/pkg/maintenance"
	"github.com/nainya/sombra/pkg/mvcc"
	"github.com/nainya/sombra/pkg/pager"
	"github.com/nainya/sombra/pkg/record"
)

const (
	flagDegreeCache    uint32 = 1 << 0
	flagAdjacencyDual  uint32 = 1 << 1
)

// Graph is an open database: a Pager plus the node/edge MVCC managers, the
// IFA adjacency layer, and (when AdjacencyBackend == Dual) a secondary
// B-tree mirroring every edge for the dual-mode cross-check (§4.6).
type Graph struct {
	pager *pager.Pager
	opts  Options

	nodes *mvcc.Manager
	edges *mvcc.Manager
	adj   *adjacency.Adjacency
	dual  *mvcc.RawIndex // nil unless opts.AdjacencyBackend == Dual

	// nodeCursor/edgeCursor are RunVacuumPass's resume points — safe to
	// touch without synchronization since every write, including a vacuum
	// pass's own, runs under the pager's single-writer transaction lock.
	nodeCursor uint64
	edgeCursor uint64

	maint *maintenance.Scheduler // nil unless StartMaintenance was called
}

// Open creates or opens a database at path. A nonexistent path is created
// fresh with gopts persisted into meta's storage flags and inline
// thresholds; an existing path's persisted flags and thresholds take
// precedence over gopts (only gopts.Vacuum, an ambient runtime setting, is
// never persisted and always comes from the caller).
func Open(path string, popts pager.Options, gopts Options) (*Graph, error) {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	var p *pager.Pager
	var err error
	if fresh {
		p, err = pager.Create(path, popts)
	} else {
		p, err = pager.Open(path, popts)
	}
	if err != nil {
		return nil, err
	}

	if fresh {
		wg := p.BeginWrite()
		wg.UpdateMeta(func(m *pager.Meta) {
			m.InlinePropBlobThreshold = gopts.InlinePropBlob
			m.InlinePropValueThreshold = gopts.InlinePropValue
			m.StorageFlags = encodeFlags(gopts)
		})
		if err := p.Commit(wg); err != nil {
			p.Close()
			return nil, err
		}
	} else {
		m := p.Meta()
		gopts.InlinePropBlob = m.InlinePropBlobThreshold
		gopts.InlinePropValue = m.InlinePropValueThreshold
		gopts.DegreeCache = m.StorageFlags&flagDegreeCache != 0
		if m.StorageFlags&flagAdjacencyDual != 0 {
			gopts.AdjacencyBackend = Dual
		} else {
			gopts.AdjacencyBackend = IFAOnly
		}
	}

	return attach(p, gopts)
}

func encodeFlags(o Options) uint32 {
	var f uint32
	if o.DegreeCache {
		f |= flagDegreeCache
	}
	if o.AdjacencyBackend == Dual {
		f |= flagAdjacencyDual
	}
	return f
}

func attach(p *pager.Pager, opts Options) (*Graph, error) {
	m := p.Meta()
	nodes, err := mvcc.Open(p.PageSize(), opts.InlinePropBlob, m.NodesRoot)
	if err != nil {
		return nil, err
	}
	edges, err := mvcc.Open(p.PageSize(), opts.InlinePropBlob, m.EdgesRoot)
	if err != nil {
		return nil, err
	}
	adj, err := adjacency.Open(p.PageSize(), m.AdjFwdRoot, m.AdjRevRoot, opts.DegreeCache, m.DegreeCacheRoot)
	if err != nil {
		return nil, err
	}

	g := &Graph{pager: p, opts: opts, nodes: nodes, edges: edges, adj: adj}
	if opts.AdjacencyBackend == Dual {
		dual, err := mvcc.OpenRawIndex(p.PageSize(), m.LabelIndexRoot)
		if err != nil {
			return nil, err
		}
		g.dual = dual
	}
	return g, nil
}

// dualKey encodes the dual-mode backend's composite (src,type,dst,edge_id)
// key, big-endian so range structure mirrors numeric order (§4.4).
func dualKey(src uint64, typeID uint32, dst, edgeID uint64) []byte {
	buf := make([]byte, 8+4+8+8)
	binary.BigEndian.PutUint64(buf[0:8], src)
	binary.BigEndian.PutUint32(buf[8:12], typeID)
	binary.BigEndian.PutUint64(buf[12:20], dst)
	binary.BigEndian.PutUint64(buf[20:28], edgeID)
	return buf
}

// Pager exposes the underlying storage core for callers that need direct
// guard access (maintenance workers, verify passes).
func (g *Graph) Pager() *pager.Pager { return g.pager }

// Close stops the background scheduler, if one was started, and closes the
// underlying Pager.
func (g *Graph) Close() error {
	if g.maint != nil {
		g.maint.Stop()
	}
	return g.pager.Close()
}

// persistRoots stashes every tree's current root into the transaction's
// meta, to be called once right before Commit.
func (g *Graph) persistRoots(wg *pager.WriteGuard) {
	wg.UpdateMeta(func(m *pager.Meta) {
		m.NodesRoot = g.nodes.Root()
		m.EdgesRoot = g.edges.Root()
		m.AdjFwdRoot = g.adj.Fwd.Root()
		m.AdjRevRoot = g.adj.Rev.Root()
		if g.adj.Degree != nil {
			m.DegreeCacheRoot = g.adj.Degree.Root()
		}
		if g.dual != nil {
			m.LabelIndexRoot = g.dual.Root()
		}
	})
}

// Commit persists every tree-root change made through wg and then commits
// the transaction, returning the commit LSN.
func (g *Graph) Commit(wg *pager.WriteGuard) (uint64, error) {
	g.persistRoots(wg)
	lsn := wg.CommitTS()
	if err := g.pager.Commit(wg); err != nil {
		return 0, err
	}
	if g.maint != nil {
		g.maint.NotifyDirty()
	}
	return lsn, nil
}

// maintenanceConfig translates this Graph's VacuumOptions and its Pager's
// autocheckpoint settings into a maintenance.Config.
func (g *Graph) maintenanceConfig() maintenance.Config {
	v := g.opts.Vacuum
	popts := g.pager.Options()
	return maintenance.Config{
		Enabled:             v.Enabled,
		Interval:            time.Duration(v.Interval) * time.Millisecond,
		RetentionWindow:     v.RetentionWindow,
		LogHighWaterBytes:   v.LogHighWaterBytes,
		MaxPagesPerPass:     v.MaxPagesPerPass,
		MaxMillisPerPass:    time.Duration(v.MaxMillisPerPass) * time.Millisecond,
		IndexCleanup:        v.IndexCleanup,
		AutocheckpointPages: popts.AutocheckpointPages,
		AutocheckpointMs:    time.Duration(popts.AutocheckpointMs) * time.Millisecond,
	}
}

// StartMaintenance launches a background scheduler that checkpoints and
// vacuums this Graph on the schedule described by Options.Vacuum, using
// RunVacuumPass as its vacuum worker (§4.8, §4.9). Graph.Close stops the
// returned Scheduler before closing the Pager; Scheduler.Stop panics if it
// is called a second time.
func (g *Graph) StartMaintenance(log *logger.Logger, m *metrics.Metrics) *maintenance.Scheduler {
	s := maintenance.New(g.pager, g.maintenanceConfig(), g.RunVacuumPass, log, m)
	g.maint = s
	s.Start()
	return s
}

// CreateNode allocates a fresh node id and writes its first version.
func (g *Graph) CreateNode(wg *pager.WriteGuard, labels []uint32, props []record.Prop) (uint64, error) {
	var id uint64
	wg.UpdateMeta(func(m *pager.Meta) {
		id = m.NextNodeID
		m.NextNodeID++
	})
	raw := record.EncodeNode(record.Node{Labels: labels, Props: props})
	if err := g.nodes.Put(wg, id, raw); err != nil {
		return 0, err
	}
	return id, nil
}

// GetNode resolves node id as of rg's snapshot.
func (g *Graph) GetNode(rg *pager.ReadGuard, id uint64) (record.Node, bool, error) {
	raw, found, err := g.nodes.GetRaw(rg, id)
	if err != nil || !found {
		return record.Node{}, found, err
	}
	n, err := record.DecodeNode(raw)
	if err != nil {
		return record.Node{}, false, errs.New(errs.Corruption, "graph.GetNode", err)
	}
	return n, true, nil
}

// DeleteNode tombstones a node's version chain. It does not cascade to
// incident edges — callers are expected to delete edges first, mirroring
// the spec's silence on cascade semantics (an Open Question resolved in
// DESIGN.md: no implicit cascade).
func (g *Graph) DeleteNode(wg *pager.WriteGuard, id uint64) (bool, error) {
	return g.nodes.Delete(wg, id)
}

// CreateEdge allocates a fresh edge id, writes its version, and records
// both sides of the adjacency mirror (§3 invariant).
func (g *Graph) CreateEdge(wg *pager.WriteGuard, src, dst uint64, typeID uint32, props []record.Prop) (uint64, error) {
	var id uint64
	wg.UpdateMeta(func(m *pager.Meta) {
		id = m.NextEdgeID
		m.NextEdgeID++
	})
	raw := record.EncodeEdge(record.Edge{Src: src, Dst: dst, Type: typeID, Props: props})
	if err := g.edges.Put(wg, id, raw); err != nil {
		return 0, err
	}
	if err := g.adj.AddEdge(wg, src, dst, typeID, id, wg.CommitTS()); err != nil {
		return 0, err
	}
	if g.dual != nil {
		if err := g.dual.Put(wg, dualKey(src, typeID, dst, id), nil); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetEdge resolves edge id as of rg's snapshot.
func (g *Graph) GetEdge(rg *pager.ReadGuard, id uint64) (record.Edge, bool, error) {
	raw, found, err := g.edges.GetRaw(rg, id)
	if err != nil || !found {
		return record.Edge{}, found, err
	}
	e, err := record.DecodeEdge(raw)
	if err != nil {
		return record.Edge{}, false, errs.New(errs.Corruption, "graph.GetEdge", err)
	}
	return e, true, nil
}

// DeleteEdge tombstones the edge's version chain and removes both sides of
// its adjacency mirror.
func (g *Graph) DeleteEdge(wg *pager.WriteGuard, id uint64) (bool, error) {
	raw, found, err := g.edges.GetRawInWrite(wg, id)
	if err != nil || !found {
		return false, err
	}
	e, err := record.DecodeEdge(raw)
	if err != nil {
		return false, errs.New(errs.Corruption, "graph.DeleteEdge", err)
	}
	if _, err := g.edges.Delete(wg, id); err != nil {
		return false, err
	}
	if err := g.adj.RemoveEdge(wg, e.Src, e.Dst, e.Type, id, wg.CommitTS()); err != nil {
		return false, err
	}
	if g.dual != nil {
		if _, err := g.dual.Delete(wg, dualKey(e.Src, e.Type, e.Dst, id)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Expand opens a NeighborCursor over node as of rg's snapshot (§6
// "expand(cursor)").
func (g *Graph) Expand(rg *pager.ReadGuard, node uint64, direction adjacency.Direction, typeFilter *uint32, distinct bool) (*adjacency.NeighborCursor, error) {
	return adjacency.NewCursor(rg, g.adj, node, direction, typeFilter, rg.SnapshotTS(), distinct)
}
