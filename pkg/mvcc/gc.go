// ABOUTME: MVCC garbage collection — reclaims version-chain entries no
// ABOUTME: live snapshot can ever resolve to (§4.7 GC, §4.8 vacuum)

package mvcc

import (
	"encoding/binary"

	"github.com/nainya/sombra/pkg/page"
	"github.com/nainya/sombra/pkg/record"
)

// severPrev patches ptr's stored Prev field to the zero VersionPtr in
// place. Safe because PageMut copy-on-writes the page into this
// transaction's dirty set first — no reader still walking the previously
// committed image is affected.
func severPrev(wg writeGuard, ptr record.VersionPtr) error {
	buf, err := wg.PageMut(ptr.PageID)
	if err != nil {
		return err
	}
	payload := page.Payload(buf)
	off := int(ptr.Offset) + 16 // create_ts(8) + delete_ts(8) precede prev_page
	binary.BigEndian.PutUint64(payload[off:off+8], 0)
	binary.BigEndian.PutUint16(payload[off+8:off+10], 0)
	wg.Put(ptr.PageID, buf)
	return nil
}

// gcChain reclaims every version in head's chain that no live snapshot can
// ever resolve to: everything older than the first entry (scanning newest
// to oldest) whose create_ts <= minActive — the version the oldest live
// reader would land on (§4.3 MinActiveSnapshot, §4.7 "a version V is
// reclaimable when delete_ts < min_active_snapshot").
//
// Sombra never physically stamps delete_ts onto a version it supersedes
// (see DESIGN.md): reclaimability is instead derived from the next-newer
// version's create_ts, which bounds how far back any snapshot could ever
// need to walk — operationally equivalent for both visibility and GC.
func gcChain(wg writeGuard, head record.VersionPtr, minActive uint64) (freedPages int, err error) {
	if head.IsZero() {
		return 0, nil
	}
	var chain []record.VersionPtr
	var entries []record.Entry
	ptr := head
	for !ptr.IsZero() {
		e, err := ReadVersion(wg, ptr)
		if err != nil {
			return freedPages, err
		}
		chain = append(chain, ptr)
		entries = append(entries, e)
		ptr = e.Prev
	}

	cutoff := len(chain) - 1
	for i, e := range entries {
		if e.CreateTS <= minActive {
			cutoff = i
			break
		}
	}
	if cutoff >= len(chain)-1 {
		return 0, nil
	}
	for _, p := range chain[cutoff+1:] {
		wg.FreePage(p.PageID)
		freedPages++
	}
	if err := severPrev(wg, chain[cutoff]); err != nil {
		return freedPages, err
	}
	return freedPages, nil
}

// GC runs one pass of version-chain reclamation for id: it frees every
// obsolete version and, if the head itself is a tombstone no longer
// needed by any live snapshot, removes id from the primary index entirely.
func (m *Manager) GC(wg commitWriteGuard, id uint64, minActive uint64) (freedPages int, indexRemoved bool, err error) {
	head, found, err := m.headPtr(wg, id)
	if err != nil || !found {
		return 0, false, err
	}
	headEntry, err := ReadVersion(wg, head)
	if err != nil {
		return 0, false, err
	}

	if headEntry.Tombstone() && headEntry.CreateTS <= minActive {
		wg.FreePage(head.PageID)
		freedPages++
		for ptr := headEntry.Prev; !ptr.IsZero(); {
			e, err := ReadVersion(wg, ptr)
			if err != nil {
				return freedPages, false, err
			}
			wg.FreePage(ptr.PageID)
			freedPages++
			ptr = e.Prev
		}
		if _, err := m.index.Delete(wg, id); err != nil {
			return freedPages, false, err
		}
		return freedPages, true, nil
	}

	n, err := gcChain(wg, head, minActive)
	return n, false, err
}
