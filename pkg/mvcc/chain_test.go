package mvcc

import (
	"path/filepath"
	"testing"

	"github.com/nainya/sombra/pkg/pager"
	"github.com/nainya/sombra/pkg/record"
)

func testPagerOptions() pager.Options {
	opts := pager.DefaultOptions()
	opts.CachePages = 64
	return opts
}

func openTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Create(filepath.Join(dir, "mvcc.db"), testPagerOptions())
	if err != nil {
		t.Fatalf("pager.Create: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestAppendAndReadVersion(t *testing.T) {
	p := openTestPager(t)

	wg := p.BeginWrite()
	e := record.Entry{CreateTS: wg.CommitTS(), PayloadKind: record.PayloadInline, Payload: []byte("hello")}
	ptr, err := AppendVersion(wg, e)
	if err != nil {
		t.Fatalf("AppendVersion: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()
	got, err := ReadVersion(rg, ptr)
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if string(got.Payload) != "hello" {
		t.Fatalf("expected payload %q, got %q", "hello", got.Payload)
	}
}

func TestResolveWalksChainToFirstVisibleVersion(t *testing.T) {
	p := openTestPager(t)

	wg := p.BeginWrite()
	ts1 := wg.CommitTS()
	ptr1, err := AppendVersion(wg, record.Entry{CreateTS: ts1, Payload: []byte("v1")})
	if err != nil {
		t.Fatalf("AppendVersion v1: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit v1: %v", err)
	}

	wg = p.BeginWrite()
	ts2 := wg.CommitTS()
	ptr2, err := AppendVersion(wg, record.Entry{CreateTS: ts2, Prev: ptr1, Payload: []byte("v2")})
	if err != nil {
		t.Fatalf("AppendVersion v2: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()

	e, found, depth, err := Resolve(rg, ptr2, ts1)
	if err != nil || !found {
		t.Fatalf("Resolve at ts1: found=%v err=%v", found, err)
	}
	if string(e.Payload) != "v1" || depth != 2 {
		t.Fatalf("expected v1 at depth 2, got %q at depth %d", e.Payload, depth)
	}

	e, found, depth, err = Resolve(rg, ptr2, ts2)
	if err != nil || !found {
		t.Fatalf("Resolve at ts2: found=%v err=%v", found, err)
	}
	if string(e.Payload) != "v2" || depth != 1 {
		t.Fatalf("expected v2 at depth 1, got %q at depth %d", e.Payload, depth)
	}
}

func TestResolveTreatsTombstoneAsNotFound(t *testing.T) {
	p := openTestPager(t)

	wg := p.BeginWrite()
	ts1 := wg.CommitTS()
	ptr1, err := AppendVersion(wg, record.Entry{CreateTS: ts1, Payload: []byte("alive")})
	if err != nil {
		t.Fatalf("AppendVersion: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	wg = p.BeginWrite()
	ts2 := wg.CommitTS()
	ptr2, err := AppendVersion(wg, record.Entry{CreateTS: ts2, DeleteTS: ts2, Prev: ptr1})
	if err != nil {
		t.Fatalf("AppendVersion tombstone: %v", err)
	}
	if err := p.Commit(wg); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rg := p.BeginRead()
	defer rg.Close()

	if _, found, _, err := Resolve(rg, ptr2, ts1); err != nil || !found {
		t.Fatalf("expected version visible before delete: found=%v err=%v", found, err)
	}
	if _, found, _, err := Resolve(rg, ptr2, ts2); err != nil || found {
		t.Fatalf("expected tombstone at ts2 to resolve as not found, got found=%v err=%v", found, err)
	}
}
