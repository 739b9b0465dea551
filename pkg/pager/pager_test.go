package pager

import (
	"path/filepath"
	"testing"

	"github.com/nainya/sombra/pkg/page"
	"github.com/nainya/sombra/pkg/wal"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.PageSize = page.MinPageSize
	opts.CachePages = 32
	opts.Synchronous = wal.SyncFull
	return opts
}

func TestCreateThenReopenPersistsMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.db")

	p, err := Create(path, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := p.BeginWrite()
	w.UpdateMeta(func(m *Meta) { m.NextNodeID = 5; m.NodesRoot = 77 })
	if err := p.Commit(w); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p2.Close()

	m := p2.Meta()
	if m.NextNodeID != 5 || m.NodesRoot != 77 {
		t.Fatalf("expected persisted meta fields, got %+v", m)
	}
}

func TestCommitWithoutCheckpointRecoversFromWAL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.db")

	p, err := Create(path, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := p.BeginWrite()
	id, buf := w.AllocatePage(page.KindRecord)
	copy(page.Payload(buf), []byte("hello from the write-ahead log"))
	w.Put(id, buf)
	if err := p.Commit(w); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// No Checkpoint: the page only lives in the cache and the WAL, not yet
	// in the data file itself.
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open (recovery): %v", err)
	}
	defer p2.Close()

	rg := p2.BeginRead()
	defer rg.Close()
	got, err := rg.GetPage(id)
	if err != nil {
		t.Fatalf("GetPage after recovery: %v", err)
	}
	want := "hello from the write-ahead log"
	gotStr := string(page.Payload(got)[:len(want)])
	if gotStr != want {
		t.Fatalf("expected recovered page payload %q, got %q", want, gotStr)
	}
}

func TestCheckpointFlushesDirtyPagesAndTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.db")

	p, err := Create(path, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	w := p.BeginWrite()
	id, buf := w.AllocatePage(page.KindRecord)
	copy(page.Payload(buf), []byte("checkpointed"))
	w.Put(id, buf)
	if err := p.Commit(w); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stats, err := p.Checkpoint(Force)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if stats.PagesFlushed == 0 {
		t.Fatal("expected at least one page flushed by checkpoint")
	}
	if !stats.Truncated {
		t.Fatal("expected WAL to be truncated after checkpoint")
	}
	if p.Meta().LastCheckpointLSN == 0 {
		t.Fatal("expected last_checkpoint_lsn to advance")
	}
}

func TestFreePageReleasesForReuse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.db")

	p, err := Create(path, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	w1 := p.BeginWrite()
	id, buf := w1.AllocatePage(page.KindRecord)
	w1.Put(id, buf)
	if err := p.Commit(w1); err != nil {
		t.Fatalf("Commit 1: %v", err)
	}

	w2 := p.BeginWrite()
	w2.FreePage(id)
	if err := p.Commit(w2); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}

	w3 := p.BeginWrite()
	reusedID, _ := w3.AllocatePage(page.KindRecord)
	if reusedID != id {
		t.Fatalf("expected freed page %d to be reused, got %d", id, reusedID)
	}
	p.Abort(w3)
}

func TestBeginReadSnapshotIsolatedFromLaterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sombra.db")

	p, err := Create(path, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	rg := p.BeginRead()
	defer rg.Close()
	before := rg.Meta().NextNodeID

	w := p.BeginWrite()
	w.UpdateMeta(func(m *Meta) { m.NextNodeID = before + 100 })
	if err := p.Commit(w); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if rg.Meta().NextNodeID != before {
		t.Fatal("expected snapshot's meta view to stay fixed across a later commit")
	}
	if p.Meta().NextNodeID != before+100 {
		t.Fatal("expected a fresh read to see the committed value")
	}
}
