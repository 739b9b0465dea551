package graph

import (
	"path/filepath"
	"testing"

	"github.com/nainya/sombra/pkg/adjacency"
	"github.com/nainya/sombra/pkg/pager"
	"github.com/nainya/sombra/pkg/record"
)

func testPagerOptions() pager.Options {
	opts := pager.DefaultOptions()
	opts.CachePages = 64
	return opts
}

func openTestGraph(t *testing.T, gopts Options) *Graph {
	t.Helper()
	dir := t.TempDir()
	g, err := Open(filepath.Join(dir, "sombra.db"), testPagerOptions(), gopts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestCreateNodeAndGetNode(t *testing.T) {
	g := openTestGraph(t, DefaultOptions())

	wg := g.pager.BeginWrite()
	id, err := g.CreateNode(wg, []uint32{1, 2}, []record.Prop{{ID: 5, Value: record.IntValue(42)}})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.pager.BeginRead()
	defer rg.Close()
	n, found, err := g.GetNode(rg, id)
	if err != nil || !found {
		t.Fatalf("GetNode: found=%v err=%v", found, err)
	}
	if !n.HasLabel(1) || !n.HasLabel(2) {
		t.Fatalf("expected labels [1,2], got %v", n.Labels)
	}
	if len(n.Props) != 1 || n.Props[0].Value.Int != 42 {
		t.Fatalf("unexpected props: %+v", n.Props)
	}
}

func TestCreateEdgeExpandsBothDirections(t *testing.T) {
	g := openTestGraph(t, DefaultOptions())

	wg := g.pager.BeginWrite()
	src, err := g.CreateNode(wg, []uint32{1}, nil)
	if err != nil {
		t.Fatalf("CreateNode src: %v", err)
	}
	dst, err := g.CreateNode(wg, []uint32{1}, nil)
	if err != nil {
		t.Fatalf("CreateNode dst: %v", err)
	}
	edgeID, err := g.CreateEdge(wg, src, dst, 7, nil)
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.pager.BeginRead()
	defer rg.Close()

	typeID := uint32(7)
	cur, err := g.Expand(rg, src, adjacency.Out, &typeID, false)
	if err != nil {
		t.Fatalf("Expand out: %v", err)
	}
	n, ok := cur.Next()
	if !ok || n.NodeID != dst || n.EdgeID != edgeID {
		t.Fatalf("expected out-neighbor %d via edge %d, got %+v ok=%v", dst, edgeID, n, ok)
	}

	cur, err = g.Expand(rg, dst, adjacency.In, &typeID, false)
	if err != nil {
		t.Fatalf("Expand in: %v", err)
	}
	n, ok = cur.Next()
	if !ok || n.NodeID != src || n.EdgeID != edgeID {
		t.Fatalf("expected in-neighbor %d via edge %d, got %+v ok=%v", src, edgeID, n, ok)
	}
}

func TestDeleteEdgeRemovesAdjacency(t *testing.T) {
	g := openTestGraph(t, DefaultOptions())

	wg := g.pager.BeginWrite()
	src, _ := g.CreateNode(wg, nil, nil)
	dst, _ := g.CreateNode(wg, nil, nil)
	edgeID, err := g.CreateEdge(wg, src, dst, 1, nil)
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	wg = g.pager.BeginWrite()
	removed, err := g.DeleteEdge(wg, edgeID)
	if err != nil || !removed {
		t.Fatalf("DeleteEdge: removed=%v err=%v", removed, err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.pager.BeginRead()
	defer rg.Close()
	typeID := uint32(1)
	cur, err := g.Expand(rg, src, adjacency.Out, &typeID, false)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if cur.Len() != 0 {
		t.Fatalf("expected no out-neighbors after delete, got %d", cur.Len())
	}
	if _, found, err := g.GetEdge(rg, edgeID); err != nil || found {
		t.Fatalf("expected edge %d gone, found=%v err=%v", edgeID, found, err)
	}
}

func TestReopenPersistsGraphOptionsAndData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.db")

	gopts := DefaultOptions()
	gopts.DegreeCache = true
	gopts.AdjacencyBackend = Dual

	g, err := Open(path, testPagerOptions(), gopts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wg := g.pager.BeginWrite()
	id, err := g.CreateNode(wg, []uint32{3}, nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen with different (ignored) options — persisted flags must win.
	g2, err := Open(path, pager.Options{}, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer g2.Close()
	if !g2.opts.DegreeCache {
		t.Fatalf("expected DegreeCache to persist as true")
	}
	if g2.opts.AdjacencyBackend != Dual {
		t.Fatalf("expected AdjacencyBackend to persist as Dual")
	}

	rg := g2.pager.BeginRead()
	defer rg.Close()
	n, found, err := g2.GetNode(rg, id)
	if err != nil || !found || !n.HasLabel(3) {
		t.Fatalf("expected node %d with label 3 to survive reopen, found=%v err=%v", id, found, err)
	}
}
