// ABOUTME: ReadGuard and WriteGuard — the pager's transaction handles
// ABOUTME: Readers pin a snapshot; the single WriteGuard stages dirty pages

package pager

import (
	"fmt"

	"github.com/nainya/sombra/pkg/errs"
	"github.com/nainya/sombra/pkg/page"
)

// ReadGuard is a live snapshot: a commit LSN plus an oracle timestamp taken
// together at begin_read() (§4.1). Every page it touches is pinned in the
// cache so it is not evicted while the guard is open; checkpoint does not
// look at these pins. Close releases both the pins and the oracle's hold
// on the snapshot timestamp.
type ReadGuard struct {
	pager      *Pager
	snapshotTS uint64
	commitLSN  uint64
	meta       Meta
	pinned     map[uint64]struct{}
	closed     bool
}

// SnapshotTS returns the MVCC timestamp this read is pinned to.
func (g *ReadGuard) SnapshotTS() uint64 { return g.snapshotTS }

// CommitLSN returns the WAL LSN durable as of this snapshot.
func (g *ReadGuard) CommitLSN() uint64 { return g.commitLSN }

// Meta returns the meta-page contents as of this snapshot.
func (g *ReadGuard) Meta() Meta { return g.meta }

// GetPage returns the current bytes of pageID, pinning it against eviction
// for the lifetime of the guard.
func (g *ReadGuard) GetPage(pageID uint64) ([]byte, error) {
	if g.closed {
		return nil, errs.New(errs.Invalid, "ReadGuard.GetPage", fmt.Errorf("guard already closed"))
	}
	buf, err := g.pager.fetchPage(pageID)
	if err != nil {
		return nil, err
	}
	if _, already := g.pinned[pageID]; !already {
		g.pager.cache.Pin(pageID)
		g.pinned[pageID] = struct{}{}
	}
	return buf, nil
}

// Close releases every page pin taken through this guard and drops the
// oracle's hold on its snapshot timestamp, letting GC and checkpoint
// truncation proceed past it.
func (g *ReadGuard) Close() {
	if g.closed {
		return
	}
	g.closed = true
	for pageID := range g.pinned {
		g.pager.cache.Unpin(pageID)
	}
	g.pager.oracle.EndSnapshot(g.snapshotTS)
}

// WriteGuard is the single live write transaction (§5: one writer at a
// time). It stages page mutations and meta changes entirely in memory;
// nothing is visible to readers or durable until Pager.Commit succeeds.
type WriteGuard struct {
	pager *Pager

	base Meta // meta as of begin_write(), kept for rollback

	dirty     map[uint64][]byte // pageID -> new full page image
	allocated []uint64
	freed     []uint64

	metaDirty bool
	meta      Meta

	// commitTS is reserved from the oracle at BeginWrite time, before any
	// page is staged, so callers building MVCC version entries (§3, §4.7)
	// can stamp create_ts/delete_ts while still mutating pages — the value
	// is fixed by the single-writer model (§5) and Commit reuses exactly
	// this LSN rather than allocating a second one.
	commitTS uint64

	done bool
}

// CommitTS returns the LSN this transaction will commit at. Reserved at
// BeginWrite so callers can stamp MVCC version entries with it before the
// transaction actually commits (§4.7 write path: "create_ts = commit_ts").
func (w *WriteGuard) CommitTS() uint64 { return w.commitTS }

// AllocatePage reserves a page id — reused from the freelist if one is
// fenced available, otherwise extending the file — and returns a buffer
// pre-stamped with PageID/Kind/PageSize/Salt that the caller fills in and
// stages via PageMut/Put.
func (w *WriteGuard) AllocatePage(kind page.Kind) (uint64, []byte) {
	var id uint64
	if reused := w.pager.freelist.PopHead(); reused != 0 {
		id = reused
	} else {
		id = w.pager.allocNewPageID()
	}
	buf := w.pager.bufPool.Acquire(int(w.pager.pageSize))
	page.EncodeHeader(buf, page.Header{PageID: id, Kind: kind, PageSize: w.pager.pageSize, Salt: w.pager.salt})
	w.allocated = append(w.allocated, id)
	w.dirty[id] = buf
	return id, buf
}

// FreePage marks pageID reclaimable. Under the maxSeq fence (Freelist.Freeze,
// taken in BeginWrite) it cannot be popped again until this transaction
// commits, so a transaction never hands itself back a page it just freed.
func (w *WriteGuard) FreePage(pageID uint64) {
	w.freed = append(w.freed, pageID)
	delete(w.dirty, pageID)
}

// PageMut returns a mutable copy-on-write buffer for pageID: the first
// call in a transaction copies the current committed bytes; subsequent
// calls within the same transaction return the same staged buffer.
func (w *WriteGuard) PageMut(pageID uint64) ([]byte, error) {
	if buf, ok := w.dirty[pageID]; ok {
		return buf, nil
	}
	cur, err := w.pager.fetchPage(pageID)
	if err != nil {
		return nil, err
	}
	buf := w.pager.bufPool.Acquire(len(cur))
	copy(buf, cur)
	w.dirty[pageID] = buf
	return buf, nil
}

// Put stages an already-encoded full page image for pageID (used after
// AllocatePage's buffer has been filled in and re-stamped).
func (w *WriteGuard) Put(pageID uint64, buf []byte) {
	w.dirty[pageID] = buf
}

// UpdateMeta applies fn to a working copy of meta, staged for commit
// alongside the transaction's page writes.
func (w *WriteGuard) UpdateMeta(fn func(*Meta)) {
	if !w.metaDirty {
		w.meta = w.base
		w.metaDirty = true
	}
	fn(&w.meta)
}

// Meta returns the transaction's working meta (staged edits applied).
func (w *WriteGuard) Meta() Meta {
	if w.metaDirty {
		return w.meta
	}
	return w.base
}

// GetPage reads a page as staged by this same transaction if dirtied,
// falling back to the last committed image otherwise.
func (w *WriteGuard) GetPage(pageID uint64) ([]byte, error) {
	if buf, ok := w.dirty[pageID]; ok {
		return buf, nil
	}
	return w.pager.fetchPage(pageID)
}

func (w *WriteGuard) kind(pageID uint64) page.Kind {
	if buf, ok := w.dirty[pageID]; ok && len(buf) >= page.HeaderSize {
		return page.DecodeHeader(buf).Kind
	}
	return 0
}
