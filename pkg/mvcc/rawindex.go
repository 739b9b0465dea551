// ABOUTME: RawIndex — a copy-on-write B+tree keyed by an arbitrary byte
// ABOUTME: slice, for secondary indexes that aren't id-keyed (§4.4, §4.6)

package mvcc

import "github.com/nainya/sombra/pkg/btree"

// RawIndex is Index without the u64-id key convention: callers supply
// their own byte-slice keys, compared lexicographically (§4.4 "byte-slice
// keys compared lexicographically"). Used by the optional dual-mode
// adjacency backend's (src,type,dst,edge_id) composite key.
type RawIndex struct {
	pageSize uint32
	tree     *btree.BTree
}

// OpenRawIndex attaches a RawIndex to an existing root (0 for an empty tree).
func OpenRawIndex(pageSize uint32, root uint64) (*RawIndex, error) {
	t, err := btree.New(IndexPageSize(pageSize), root, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return &RawIndex{pageSize: pageSize, tree: t}, nil
}

// Root returns the tree's current root page id.
func (rx *RawIndex) Root() uint64 { return rx.tree.GetRoot() }

// Get looks up key's stored value.
func (rx *RawIndex) Get(rg readGuard, key []byte) (value []byte, found bool, err error) {
	err = safeCall(func() {
		bindRead(rx.tree, rg)
		v, ok := rx.tree.Get(key)
		found = ok
		if ok {
			value = append([]byte(nil), v...)
		}
	})
	return
}

// Put inserts or updates key's value.
func (rx *RawIndex) Put(wg writeGuard, key, value []byte) error {
	return safeCall(func() {
		bindWrite(rx.tree, wg)
		tmp := append([]byte(nil), value...)
		rx.tree.Insert(append([]byte(nil), key...), tmp)
	})
}

// Delete removes key entirely.
func (rx *RawIndex) Delete(wg writeGuard, key []byte) (bool, error) {
	var removed bool
	err := safeCall(func() {
		bindWrite(rx.tree, wg)
		removed = rx.tree.Delete(key)
	})
	return removed, err
}

// Scan walks every key >= start in lexicographic order, stopping early if
// fn returns false. Consulted by pkg/verify's Full-level dual-mode
// cross-check (§4.6) to enumerate the secondary (src,type,dst,edge_id)
// mirror without a dedicated iterator type of its own.
func (rx *RawIndex) Scan(rg readGuard, start []byte, fn func(key, value []byte) bool) error {
	return safeCall(func() {
		bindRead(rx.tree, rg)
		rx.tree.Scan(start, fn)
	})
}
