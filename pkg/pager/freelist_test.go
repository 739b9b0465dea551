package pager

import "testing"

type fakeFreelistBackend struct {
	pages  map[uint64][]byte
	nextID uint64
}

func newFakeFreelistBackend() *fakeFreelistBackend {
	return &fakeFreelistBackend{pages: make(map[uint64][]byte), nextID: 1}
}

func (b *fakeFreelistBackend) get(id uint64) []byte { return b.pages[id] }
func (b *fakeFreelistBackend) set(id uint64, buf []byte) {
	cp := append([]byte(nil), buf...)
	b.pages[id] = cp
}
func (b *fakeFreelistBackend) new(buf []byte) uint64 {
	id := b.nextID
	b.nextID++
	b.set(id, buf)
	return id
}

const testFreelistPageSize = 64 // tiny: (64-8)/8 = 7 entries per node

func TestFreelistPushPopRoundTrip(t *testing.T) {
	b := newFakeFreelistBackend()
	fl := NewFreelist(testFreelistPageSize, b.get, b.new, b.set)

	fl.PushTail(100)
	fl.PushTail(200)
	fl.PushTail(300)

	if got := fl.Total(); got != 3 {
		t.Fatalf("expected 3 entries, got %d", got)
	}
	if got := fl.PopHead(); got != 100 {
		t.Fatalf("expected FIFO pop 100, got %d", got)
	}
	if got := fl.PopHead(); got != 200 {
		t.Fatalf("expected FIFO pop 200, got %d", got)
	}
	if got := fl.Total(); got != 1 {
		t.Fatalf("expected 1 remaining, got %d", got)
	}
}

func TestFreelistPopEmptyReturnsZero(t *testing.T) {
	b := newFakeFreelistBackend()
	fl := NewFreelist(testFreelistPageSize, b.get, b.new, b.set)
	if got := fl.PopHead(); got != 0 {
		t.Fatalf("expected 0 from empty freelist, got %d", got)
	}
}

func TestFreelistSpansMultipleNodes(t *testing.T) {
	b := newFakeFreelistBackend()
	fl := NewFreelist(testFreelistPageSize, b.get, b.new, b.set)

	const n = 25 // more than one node's worth of 7 entries
	for i := uint64(1); i <= n; i++ {
		fl.PushTail(i * 10)
	}
	if got := fl.Total(); got != n {
		t.Fatalf("expected %d entries, got %d", n, got)
	}
	for i := uint64(1); i <= n; i++ {
		got := fl.PopHead()
		want := i * 10
		if got != want {
			t.Fatalf("entry %d: expected %d, got %d", i, want, got)
		}
	}
	// PopHead pushes each exhausted node page (pages 1-3) back onto the
	// tail as it drains, so only those three recycled pages remain.
	if fl.Total() != 3 {
		t.Fatalf("expected only the 3 recycled node pages left, total=%d", fl.Total())
	}
}

func TestFreelistFreezeFencesNewlyFreedPages(t *testing.T) {
	b := newFakeFreelistBackend()
	fl := NewFreelist(testFreelistPageSize, b.get, b.new, b.set)

	fl.PushTail(1)
	fl.PushTail(2)
	fl.Freeze()
	fl.PushTail(3) // freed "during" the in-flight transaction

	if got := fl.PopHead(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := fl.PopHead(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := fl.PopHead(); got != 0 {
		t.Fatalf("expected fenced pop to return 0 before page 3 is reachable, got %d", got)
	}

	fl.Release()
	if got := fl.PopHead(); got != 3 {
		t.Fatalf("expected 3 reachable after release, got %d", got)
	}
}

func TestFreelistStateRoundTrip(t *testing.T) {
	b := newFakeFreelistBackend()
	fl := NewFreelist(testFreelistPageSize, b.get, b.new, b.set)
	fl.PushTail(42)
	fl.PushTail(43)
	fl.PopHead()

	s := fl.State()

	fl2 := NewFreelist(testFreelistPageSize, b.get, b.new, b.set)
	fl2.Restore(s)
	if got := fl2.Total(); got != 1 {
		t.Fatalf("expected restored total 1, got %d", got)
	}
	if got := fl2.PopHead(); got != 43 {
		t.Fatalf("expected 43 after restore, got %d", got)
	}
}
