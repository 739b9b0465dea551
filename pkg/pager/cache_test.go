package pager

import "testing"

func TestCacheEvictsUnreferencedColdFrame(t *testing.T) {
	c := NewCache(2, nil)
	if !c.Insert(&Frame{PageID: 1, Buffer: []byte("a")}) {
		t.Fatal("insert 1 failed")
	}
	if !c.Insert(&Frame{PageID: 2, Buffer: []byte("b")}) {
		t.Fatal("insert 2 failed")
	}
	// Touch page 1 so it's referenced; page 2 stays cold.
	c.Get(1)
	if !c.Insert(&Frame{PageID: 3, Buffer: []byte("c")}) {
		t.Fatal("insert 3 failed")
	}
	if c.Len() != 2 {
		t.Fatalf("expected cache to stay at capacity 2, got %d", c.Len())
	}
	if c.Get(2) != nil {
		t.Fatal("expected cold unreferenced page 2 to be evicted")
	}
	if c.Get(1) == nil {
		t.Fatal("expected referenced page 1 to survive eviction")
	}
	if !c.WasRecentlyEvicted(2) {
		t.Fatal("expected evicted page to be remembered as a Test ghost")
	}
}

func TestCacheNeverEvictsPinnedFrame(t *testing.T) {
	c := NewCache(1, nil)
	c.Insert(&Frame{PageID: 1, Buffer: []byte("a")})
	c.Pin(1)
	if c.Insert(&Frame{PageID: 2, Buffer: []byte("b")}) {
		t.Fatal("expected insert to fail: only frame is pinned and cache is full")
	}
	if c.Len() != 1 {
		t.Fatalf("expected pinned frame to remain, got len %d", c.Len())
	}
	c.Unpin(1)
	if !c.Insert(&Frame{PageID: 2, Buffer: []byte("b")}) {
		t.Fatal("expected insert to succeed once pin released")
	}
}

func TestCacheStagesWALBeforeEvictingDirtyFrame(t *testing.T) {
	var staged []uint64
	c := NewCache(1, func(f *Frame) error {
		staged = append(staged, f.PageID)
		return nil
	})
	c.Insert(&Frame{PageID: 1, Buffer: []byte("a"), Dirty: true})
	c.Insert(&Frame{PageID: 2, Buffer: []byte("b")})
	if len(staged) != 1 || staged[0] != 1 {
		t.Fatalf("expected dirty page 1 staged before eviction, got %v", staged)
	}
}

func TestCacheDirtyFramesReportsOnlyDirty(t *testing.T) {
	c := NewCache(4, nil)
	c.Insert(&Frame{PageID: 1, Dirty: true})
	c.Insert(&Frame{PageID: 2, Dirty: false})
	c.Insert(&Frame{PageID: 3, Dirty: true})
	dirty := c.DirtyFrames()
	if len(dirty) != 2 {
		t.Fatalf("expected 2 dirty frames, got %d", len(dirty))
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewCache(4, nil)
	c.Insert(&Frame{PageID: 1})
	c.Remove(1)
	if c.Get(1) != nil {
		t.Fatal("expected page removed")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}
