// ABOUTME: Bounded page cache with CLOCK-Pro-style Hot/Cold/Test replacement
// ABOUTME: Pinned frames are never evicted; dirty frames are written back before eviction

package pager

import "sync"

// FrameState classifies a cached frame for CLOCK-Pro-style replacement.
type FrameState int

const (
	// Cold frames are candidates for eviction on their next clock sweep if
	// unreferenced.
	Cold FrameState = iota
	// Hot frames have demonstrated reuse and are promoted out of the
	// eviction-candidate pool.
	Hot
	// Test frames are metadata-only ghosts of recently evicted pages,
	// tracked so a quick re-reference promotes the page straight to Hot.
	Test
)

// Frame is one cache slot (§4.1 "Cache").
type Frame struct {
	PageID            uint64
	Buffer            []byte
	State             FrameState
	Referenced        bool
	Dirty             bool
	PinCount          int
	PendingCheckpoint bool
	NewlyAllocated    bool
	NeedsRefresh      bool
}

// Cache is a bounded, fixed-capacity page cache. Replacement favors Hot
// frames over Cold, skips pinned frames entirely, evicts a dirty frame only
// after onEvictDirty has written it back, and remembers a
// short history of recently evicted page ids (Test state) so pages that
// cycle in and out under working-set pressure are recognized and promoted.
type Cache struct {
	mu sync.Mutex

	capacity int
	frames   map[uint64]*Frame
	clock    []uint64 // page ids in clock-hand order
	hand     int

	ghosts     map[uint64]struct{} // Test-state page ids, capped at capacity
	ghostOrder []uint64

	onEvictDirty func(*Frame) error // stage a WAL write before evicting a dirty frame
}

// NewCache creates a cache that holds at most capacity pages.
func NewCache(capacity int, onEvictDirty func(*Frame) error) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity:     capacity,
		frames:       make(map[uint64]*Frame, capacity),
		ghosts:       make(map[uint64]struct{}),
		onEvictDirty: onEvictDirty,
	}
}

// Get returns the cached frame for pageID, or nil if not present, marking
// it referenced for the clock sweep.
func (c *Cache) Get(pageID uint64) *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.frames[pageID]
	if !ok {
		return nil
	}
	f.Referenced = true
	return f
}

// Pin increments a frame's refcount, preventing eviction. Callers holding a
// read guard pin every frame they observe. Checkpoint does not consult pin
// counts: it neither waits for nor skips pinned frames.
func (c *Cache) Pin(pageID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[pageID]; ok {
		f.PinCount++
	}
}

// Unpin decrements a frame's refcount.
func (c *Cache) Unpin(pageID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[pageID]; ok && f.PinCount > 0 {
		f.PinCount--
	}
}

// Insert adds or replaces a frame, evicting via the clock sweep if the
// cache is already at capacity. Returns an overflow buffer page id flag
// (via ok=false) when eviction cannot free a slot because every frame is
// pinned — callers then must keep the page in a transient overflow buffer
// rather than block (§4.1 "Failure semantics").
func (c *Cache) Insert(f *Frame) (ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.frames[f.PageID]; exists {
		c.frames[f.PageID] = f
		return true
	}

	if len(c.frames) >= c.capacity {
		if !c.evictLocked() {
			return false
		}
	}

	c.frames[f.PageID] = f
	c.clock = append(c.clock, f.PageID)
	delete(c.ghosts, f.PageID)
	return true
}

// evictLocked runs one clock sweep looking for an unpinned, unreferenced
// frame to evict (writing a dirty frame back via onEvictDirty first); returns
// false if no frame in the whole cache is currently evictable.
func (c *Cache) evictLocked() bool {
	n := len(c.clock)
	for i := 0; i < 2*n; i++ {
		if len(c.clock) == 0 {
			return false
		}
		idx := c.hand % len(c.clock)
		pageID := c.clock[idx]
		f, ok := c.frames[pageID]
		if !ok {
			c.clock = append(c.clock[:idx], c.clock[idx+1:]...)
			continue
		}
		if f.PinCount > 0 {
			c.hand++
			continue
		}
		if f.Referenced && f.State != Test {
			f.Referenced = false
			f.State = Hot
			c.hand++
			continue
		}
		if f.Dirty {
			if c.onEvictDirty != nil {
				if err := c.onEvictDirty(f); err != nil {
					// Can't safely evict a dirty frame we failed to stage;
					// try the next candidate instead of propagating here —
					// the caller's next write path will surface the error.
					c.hand++
					continue
				}
			}
		}
		delete(c.frames, pageID)
		c.clock = append(c.clock[:idx], c.clock[idx+1:]...)
		c.remember(pageID)
		return true
	}
	return false
}

func (c *Cache) remember(pageID uint64) {
	if _, ok := c.ghosts[pageID]; ok {
		return
	}
	c.ghosts[pageID] = struct{}{}
	c.ghostOrder = append(c.ghostOrder, pageID)
	if len(c.ghostOrder) > c.capacity {
		oldest := c.ghostOrder[0]
		c.ghostOrder = c.ghostOrder[1:]
		delete(c.ghosts, oldest)
	}
}

// WasRecentlyEvicted reports whether pageID is a Test-state ghost.
func (c *Cache) WasRecentlyEvicted(pageID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ghosts[pageID]
	return ok
}

// Remove drops a frame outright (used when a page is freed).
func (c *Cache) Remove(pageID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.frames, pageID)
	for i, id := range c.clock {
		if id == pageID {
			c.clock = append(c.clock[:i], c.clock[i+1:]...)
			break
		}
	}
}

// Len returns the number of frames currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// DirtyFrames returns every currently dirty frame, for checkpoint flushing.
func (c *Cache) DirtyFrames() []*Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Frame
	for _, f := range c.frames {
		if f.Dirty {
			out = append(out, f)
		}
	}
	return out
}
