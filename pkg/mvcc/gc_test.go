package mvcc

import "testing"

func TestManagerPutDeleteGetRaw(t *testing.T) {
	p := openTestPager(t)
	m, err := Open(p.PageSize(), 256, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	wg := p.BeginWrite()
	if err := m.Put(wg, 1, []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := p.BeginRead()
	raw, found, err := m.GetRaw(rg, 1)
	rg.Close()
	if err != nil || !found || string(raw) != "v1" {
		t.Fatalf("GetRaw: raw=%q found=%v err=%v", raw, found, err)
	}

	wg = p.BeginWrite()
	removed, err := m.Delete(wg, 1)
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}

	rg = p.BeginRead()
	_, found, err = m.GetRaw(rg, 1)
	rg.Close()
	if err != nil || found {
		t.Fatalf("expected id 1 gone after delete, found=%v err=%v", found, err)
	}
}

// TestGCReclaimsSupersededVersionsOnlyPastMinActive verifies that GC frees
// pages belonging to versions no live snapshot can resolve to, and leaves
// the chain untouched while a snapshot older than the newest version is
// still active (§4.7 GC, §4.8 vacuum).
func TestGCReclaimsSupersededVersionsOnlyPastMinActive(t *testing.T) {
	p := openTestPager(t)
	m, err := Open(p.PageSize(), 256, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	wg := p.BeginWrite()
	if err := m.Put(wg, 1, []byte("v1")); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit v1: %v", err)
	}

	// Hold a read snapshot open across the next write so minActive can't
	// pass it yet.
	oldReader := p.BeginRead()

	wg = p.BeginWrite()
	if err := m.Put(wg, 1, []byte("v2")); err != nil {
		t.Fatalf("Put v2: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	wg = p.BeginWrite()
	freed, _, err := m.GC(wg, 1, p.MinActiveSnapshot())
	if err != nil {
		t.Fatalf("GC while reader open: %v", err)
	}
	if freed != 0 {
		t.Fatalf("expected no pages freed while old snapshot is still active, freed %d", freed)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit GC no-op: %v", err)
	}

	// v1 is still resolvable through oldReader's snapshot.
	raw, found, err := m.GetRaw(oldReader, 1)
	if err != nil || !found || string(raw) != "v1" {
		t.Fatalf("expected v1 still visible to old snapshot, raw=%q found=%v err=%v", raw, found, err)
	}
	oldReader.Close()

	wg = p.BeginWrite()
	freed, _, err = m.GC(wg, 1, p.MinActiveSnapshot())
	if err != nil {
		t.Fatalf("GC after snapshot closed: %v", err)
	}
	if freed == 0 {
		t.Fatalf("expected GC to reclaim v1's page once no snapshot needs it")
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit GC: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()
	raw, found, err = m.GetRaw(rg, 1)
	if err != nil || !found || string(raw) != "v2" {
		t.Fatalf("expected current version v2 still resolvable, raw=%q found=%v err=%v", raw, found, err)
	}
}
