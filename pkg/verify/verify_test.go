package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nainya/sombra/pkg/graph"
	"github.com/nainya/sombra/pkg/page"
	"github.com/nainya/sombra/pkg/pager"
)

// corruptPageInPlace flips one payload byte of pageID directly in the data
// file on disk, invalidating its stored CRC without touching its header.
func corruptPageInPlace(t *testing.T, path string, pageID uint64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	defer f.Close()

	pageSize := int64(page.MinPageSize)
	off := int64(pageID)*pageSize + int64(page.HeaderSize)
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, off); err != nil {
		t.Fatalf("read byte to corrupt: %v", err)
	}
	b[0] ^= 0xFF
	if _, err := f.WriteAt(b, off); err != nil {
		t.Fatalf("write corrupted byte: %v", err)
	}
}

func testPagerOptions() pager.Options {
	opts := pager.DefaultOptions()
	opts.CachePages = 64
	return opts
}

func openTestGraph(t *testing.T, gopts graph.Options) *graph.Graph {
	t.Helper()
	dir := t.TempDir()
	g, err := graph.Open(filepath.Join(dir, "sombra.db"), testPagerOptions(), gopts)
	if err != nil {
		t.Fatalf("graph.Open: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestChecksumOnlyPassCleanDatabase(t *testing.T) {
	g := openTestGraph(t, graph.DefaultOptions())

	wg := g.Pager().BeginWrite()
	if _, err := g.CreateNode(wg, []uint32{1}, nil); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.Pager().BeginRead()
	defer rg.Close()
	report, err := Run(g, rg, ChecksumOnly, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ChecksumFailures != 0 {
		t.Fatalf("expected no checksum failures, got %d", report.ChecksumFailures)
	}
	if report.HasErrors() {
		t.Fatalf("expected no error findings, got %+v", report.Findings)
	}
	if report.PagesScanned == 0 {
		t.Fatalf("expected at least one page scanned")
	}
}

func TestStructurePassCountsNodesAndEdges(t *testing.T) {
	g := openTestGraph(t, graph.DefaultOptions())

	wg := g.Pager().BeginWrite()
	src, err := g.CreateNode(wg, []uint32{1}, nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	dst, err := g.CreateNode(wg, []uint32{1}, nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.CreateEdge(wg, src, dst, 1, nil); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.Pager().BeginRead()
	defer rg.Close()
	report, err := Run(g, rg, Structure, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.NodesFound != 2 {
		t.Fatalf("expected 2 nodes found, got %d", report.NodesFound)
	}
	if report.EdgesFound != 1 {
		t.Fatalf("expected 1 edge found, got %d", report.EdgesFound)
	}
	if report.HasErrors() {
		t.Fatalf("expected no error findings, got %+v", report.Findings)
	}
}

func TestFullPassConfirmsAdjacencyMatchesEdgeTable(t *testing.T) {
	g := openTestGraph(t, graph.DefaultOptions())

	wg := g.Pager().BeginWrite()
	src, _ := g.CreateNode(wg, nil, nil)
	dst, _ := g.CreateNode(wg, nil, nil)
	edgeID, err := g.CreateEdge(wg, src, dst, 3, nil)
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.Pager().BeginRead()
	defer rg.Close()
	report, err := Run(g, rg, Full, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.HasErrors() {
		t.Fatalf("expected clean full pass, got %+v", report.Findings)
	}
	if report.AdjacencyEntries != 2 {
		t.Fatalf("expected 2 adjacency entries (fwd+rev) for edge %d, got %d", edgeID, report.AdjacencyEntries)
	}
}

func TestFullPassDualModeConsistent(t *testing.T) {
	gopts := graph.DefaultOptions()
	gopts.AdjacencyBackend = graph.Dual
	g := openTestGraph(t, gopts)

	wg := g.Pager().BeginWrite()
	src, _ := g.CreateNode(wg, nil, nil)
	dst, _ := g.CreateNode(wg, nil, nil)
	if _, err := g.CreateEdge(wg, src, dst, 9, nil); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := g.Pager().BeginRead()
	defer rg.Close()
	report, err := Run(g, rg, Full, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.HasErrors() {
		t.Fatalf("expected dual-mode backend consistent with IFA, got %+v", report.Findings)
	}
	foundInfo := false
	for _, f := range report.Findings {
		if f.Severity == Info {
			foundInfo = true
		}
	}
	if !foundInfo {
		t.Fatalf("expected an Info finding confirming dual-mode consistency")
	}
}

func TestChecksumFailureDetected(t *testing.T) {
	g := openTestGraph(t, graph.DefaultOptions())

	wg := g.Pager().BeginWrite()
	if _, err := g.CreateNode(wg, []uint32{1}, nil); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := g.Pager().Checkpoint(pager.Force); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	path := g.Pager().Path()
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	corruptPageInPlace(t, path, 1)

	p, err := pager.Open(path, pager.Options{})
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	defer p.Close()

	var report Report
	count := p.PageCount()
	report.PagesScanned = count
	for id := uint64(0); id < count; id++ {
		_, ok, err := p.ReadPageRaw(id)
		if err != nil {
			t.Fatalf("ReadPageRaw: %v", err)
		}
		if !ok {
			report.ChecksumFailures++
		}
	}
	if report.ChecksumFailures == 0 {
		t.Fatalf("expected the corrupted page to fail its checksum")
	}
}
