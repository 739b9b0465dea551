// ABOUTME: Binds a btree.BTree's page-access callbacks to a pager read or
// ABOUTME: write guard for the duration of one call (§4.4, §4.7)

package mvcc

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/sombra/pkg/btree"
	"github.com/nainya/sombra/pkg/errs"
	"github.com/nainya/sombra/pkg/page"
)

// readGuard and writeGuard are the pager.ReadGuard/WriteGuard method
// subsets the index needs. Declared locally so pkg/mvcc never imports
// pkg/pager's package path directly into its exported surface (the
// concrete guards still satisfy these structurally).
type readGuard interface {
	GetPage(pageID uint64) ([]byte, error)
}

type writeGuard interface {
	GetPage(pageID uint64) ([]byte, error)
	PageMut(pageID uint64) ([]byte, error)
	AllocatePage(kind page.Kind) (uint64, []byte)
	Put(pageID uint64, buf []byte)
	FreePage(pageID uint64)
}

// btreeNodeKind inspects an encoded node's own header to tell leaf from
// internal, mirroring the wire constants in pkg/btree/node.go (BNODE_NODE=1,
// BNODE_LEAF=2) without needing them exported.
func btreeNodeKind(payload []byte) page.Kind {
	if len(payload) >= 2 && binary.LittleEndian.Uint16(payload[0:2]) == 2 {
		return page.KindBTreeLeaf
	}
	return page.KindBTreeInternal
}

// IndexPageSize is the buffer size callers must pass to btree.New: a
// BTree's node buffer is the page's *payload* region, not the raw page —
// the page.Header wrapping it is the index binding's concern, not the
// tree's (mirrors the freelist's own "payload region, never raw page_size"
// convention).
func IndexPageSize(pagerPageSize uint32) uint32 {
	return pagerPageSize - page.HeaderSize
}

// bindRead rebinds tree's callbacks to read through rg: a closure reading
// a page's payload. Write callbacks panic if reached — a read-bound tree
// must never split/merge.
func bindRead(tree *btree.BTree, rg readGuard) {
	tree.SetCallbacks(
		func(id uint64) []byte {
			buf, err := rg.GetPage(id)
			if err != nil {
				panic(err)
			}
			return page.Payload(buf)
		},
		func([]byte) uint64 { panic(fmt.Errorf("mvcc: read-only index binding cannot allocate")) },
		func(uint64) { panic(fmt.Errorf("mvcc: read-only index binding cannot free")) },
	)
}

// bindWrite rebinds tree's callbacks to mutate through wg: new pages are
// allocated with the right BTreeLeaf/BTreeInternal kind inferred from
// their own encoded header, and freed pages are staged for the freelist.
func bindWrite(tree *btree.BTree, wg writeGuard) {
	tree.SetCallbacks(
		func(id uint64) []byte {
			buf, err := wg.GetPage(id)
			if err != nil {
				panic(err)
			}
			return page.Payload(buf)
		},
		func(payload []byte) uint64 {
			id, buf := wg.AllocatePage(btreeNodeKind(payload))
			copy(page.Payload(buf), payload)
			wg.Put(id, buf)
			return id
		},
		func(id uint64) {
			wg.FreePage(id)
		},
	)
}

// safeCall converts a page-access panic raised from inside a bound
// callback (GetPage/AllocatePage failures have no other way to cross the
// btree package's error-less callback signature) back into a normal error.
func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = errs.New(errs.Corruption, "mvcc.index", fmt.Errorf("%v", r))
		}
	}()
	fn()
	return nil
}

// idKey encodes a u64 id as a big-endian byte key for order-preserving
// comparison (§4.4 "u64 keys big-endian").
func idKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// Index is a copy-on-write B+tree keyed by a u64 id — the primary index
// locating a node or edge's head version (§2.5, §3 "B-tree"). Reused as-is
// by pkg/adjacency to store per-node adjacency headers and the degree
// cache; the optional dual-mode B-tree adjacency backend in pkg/graph uses
// RawIndex instead.
type Index struct {
	pageSize uint32
	tree     *btree.BTree
}

// OpenIndex attaches an Index to an existing root (0 for an empty tree).
func OpenIndex(pageSize uint32, root uint64) (*Index, error) {
	t, err := btree.New(IndexPageSize(pageSize), root, nil, nil, nil)
	if err != nil {
		return nil, errs.New(errs.Invalid, "mvcc.OpenIndex", err)
	}
	return &Index{pageSize: pageSize, tree: t}, nil
}

// Root returns the tree's current root page id, to be persisted in meta.
func (ix *Index) Root() uint64 { return ix.tree.GetRoot() }

// Get looks up id's stored value as of rg's snapshot view of the tree
// structure (note: the tree itself is not versioned — only the entries it
// points to are (§3) — so Get always sees the latest committed tree
// shape; callers resolving MVCC records then apply the version chain's own
// visibility on top).
func (ix *Index) Get(rg readGuard, id uint64) (value []byte, found bool, err error) {
	err = safeCall(func() {
		bindRead(ix.tree, rg)
		v, ok := ix.tree.Get(idKey(id))
		found = ok
		if ok {
			value = append([]byte(nil), v...)
		}
	})
	return
}

// Put inserts or updates id's head-version locator.
func (ix *Index) Put(wg writeGuard, id uint64, value []byte) error {
	return safeCall(func() {
		bindWrite(ix.tree, wg)
		tmp := append([]byte(nil), value...)
		ix.tree.Insert(idKey(id), tmp)
	})
}

// Delete removes id from the index entirely (used only when a tombstoned
// chain is fully vacuumed away, never on a logical delete — logical
// deletes write a terminal version instead, §4.7).
func (ix *Index) Delete(wg writeGuard, id uint64) (bool, error) {
	var removed bool
	err := safeCall(func() {
		bindWrite(ix.tree, wg)
		removed = ix.tree.Delete(idKey(id))
	})
	return removed, err
}

// Scan walks every id >= start in ascending order, stopping early if fn
// returns false. Grounded on the teacher's own BTree.Scan/BIter (§4.4
// "leaves are linked for range scans" — the teacher's leaf nodes carry no
// sibling pointer either; its iterator instead backtracks through the
// path-stack it keeps from root to leaf, which is what this binds into).
func (ix *Index) Scan(rg readGuard, start uint64, fn func(id uint64, value []byte) bool) error {
	return safeCall(func() {
		bindRead(ix.tree, rg)
		ix.tree.Scan(idKey(start), func(key, val []byte) bool {
			if len(key) != 8 {
				return true
			}
			return fn(binary.BigEndian.Uint64(key), val)
		})
	})
}
