// ABOUTME: Version chain append/resolve — the read and write paths of the
// ABOUTME: MVCC manager over RecordPage slabs (§4.7)

package mvcc

import (
	"github.com/nainya/sombra/pkg/errs"
	"github.com/nainya/sombra/pkg/page"
	"github.com/nainya/sombra/pkg/record"
)

// AppendVersion writes e into a freshly allocated RecordPage slab and
// returns its locator. Each version gets its own dedicated page rather
// than packing several into a shared arena page — simpler to reason about
// and to vacuum (a page is reclaimable exactly when its one entry is),
// at the cost of density; see DESIGN.md.
func AppendVersion(wg writeGuard, e record.Entry) (record.VersionPtr, error) {
	id, buf := wg.AllocatePage(page.KindRecord)
	payload := page.Payload(buf)
	record.NewSlab(payload)
	if record.EntrySize(e) > record.SlabFree(payload) {
		return record.VersionPtr{}, errs.New(errs.Invalid, "mvcc.AppendVersion", errTooLarge)
	}
	off, err := record.SlabAppend(payload, e)
	if err != nil {
		return record.VersionPtr{}, err
	}
	wg.Put(id, buf)
	return record.VersionPtr{PageID: id, Offset: off}, nil
}

var errTooLarge = recordTooLargeErr{}

type recordTooLargeErr struct{}

func (recordTooLargeErr) Error() string {
	return "record payload exceeds one RecordPage slab; spill to VStore first"
}

// ReadVersion loads the entry at ptr.
func ReadVersion(rg readGuard, ptr record.VersionPtr) (record.Entry, error) {
	buf, err := rg.GetPage(ptr.PageID)
	if err != nil {
		return record.Entry{}, err
	}
	return record.SlabRead(page.Payload(buf), ptr.Offset)
}

// Resolve walks the chain from head, newest first, returning the first
// entry visible to snapshotTS (§3 "Version chain", §4.7 read path). found
// is false both when nothing is visible and when the visible entry is a
// tombstone (logically "not present" either way).
func Resolve(rg readGuard, head record.VersionPtr, snapshotTS uint64) (e record.Entry, found bool, depth int, err error) {
	ptr := head
	for !ptr.IsZero() {
		depth++
		e, err = ReadVersion(rg, ptr)
		if err != nil {
			return record.Entry{}, false, depth, err
		}
		if e.Visible(snapshotTS) {
			if e.Tombstone() {
				return record.Entry{}, false, depth, nil
			}
			return e, true, depth, nil
		}
		ptr = e.Prev
	}
	return record.Entry{}, false, depth, nil
}
