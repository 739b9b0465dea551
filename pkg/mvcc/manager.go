// ABOUTME: MVCC manager — ties the id->head-version B-tree index to the
// ABOUTME: version chain and VStore spill decision for nodes and edges

package mvcc

import (
	"github.com/nainya/sombra/pkg/record"
)

// snapshotReadGuard extends readGuard with the snapshot timestamp a
// ReadGuard carries, so Manager methods don't need it passed separately.
type snapshotReadGuard interface {
	readGuard
	SnapshotTS() uint64
}

// commitWriteGuard extends writeGuard with the reserved commit timestamp a
// WriteGuard carries (§4.7: "create_ts = commit_ts").
type commitWriteGuard interface {
	writeGuard
	CommitTS() uint64
}

// Manager is the MVCC layer over one id space (nodes or edges): a primary
// B-tree index from id to head-version locator, plus version-chain
// read/write and the inline-vs-spill decision for payloads (§4.5, §4.7).
type Manager struct {
	pageSize    uint32
	inlineBytes uint32
	index       *Index
}

// Open attaches a Manager to an existing index root (0 for empty).
func Open(pageSize uint32, inlineBytes uint32, root uint64) (*Manager, error) {
	ix, err := OpenIndex(pageSize, root)
	if err != nil {
		return nil, err
	}
	return &Manager{pageSize: pageSize, inlineBytes: inlineBytes, index: ix}, nil
}

// Root returns the primary index's current root page id.
func (m *Manager) Root() uint64 { return m.index.Root() }

// headPtr looks up id's current head version locator.
func (m *Manager) headPtr(rg readGuard, id uint64) (record.VersionPtr, bool, error) {
	raw, found, err := m.index.Get(rg, id)
	if err != nil || !found {
		return record.VersionPtr{}, found, err
	}
	return record.DecodeVersionPtr(raw[:]), true, nil
}

// GetRaw resolves id's encoded payload as of rg's snapshot (spilling
// through the VStore if the payload was too large to inline). The graph
// layer decodes the bytes into a record.Node or record.Edge — Manager
// stays agnostic to which.
func (m *Manager) GetRaw(rg snapshotReadGuard, id uint64) ([]byte, bool, error) {
	return m.resolveAt(rg, id, rg.SnapshotTS())
}

// GetRawInWrite resolves id's current payload from within an in-flight
// write transaction, using wg's own reserved commit timestamp as the
// visibility horizon. Safe under the single-writer model (§5): every
// version already durable has create_ts < wg.CommitTS() by construction
// (commit timestamps are reserved in allocation order), so this sees the
// latest committed version — or this transaction's own staged version once
// it has written id — and never a concurrent write.
func (m *Manager) GetRawInWrite(wg commitWriteGuard, id uint64) ([]byte, bool, error) {
	return m.resolveAt(wg, id, wg.CommitTS())
}

func (m *Manager) resolveAt(rg readGuard, id uint64, ts uint64) ([]byte, bool, error) {
	head, found, err := m.headPtr(rg, id)
	if err != nil || !found {
		return nil, false, err
	}
	e, found, _, err := Resolve(rg, head, ts)
	if err != nil || !found {
		return nil, false, err
	}
	raw, err := m.resolvePayload(rg, e)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// ScanIDs walks every id >= start in ascending order, stopping early if fn
// returns false. Consulted by the vacuum worker to enumerate GC candidates
// in place of a true leaf-chain scan (§4.8; see pkg/graph's RunVacuumPass).
func (m *Manager) ScanIDs(rg readGuard, start uint64, fn func(id uint64) bool) error {
	return m.index.Scan(rg, start, func(id uint64, _ []byte) bool {
		return fn(id)
	})
}

func (m *Manager) resolvePayload(rg readGuard, e record.Entry) ([]byte, error) {
	if e.PayloadKind == record.PayloadInline {
		return e.Payload, nil
	}
	ref := record.DecodeVRef(e.Payload)
	return record.ReadValue(rg, m.pageSize, ref)
}

// Put creates id's first version or supersedes its current head with a new
// one built from raw (already-encoded node/edge bytes), per §4.7's write
// path: "produces a new version V_new ... that links to the prior head via
// prev_version_ptr". Large payloads spill to the VStore as a VRef instead
// of inlining (§4.5).
func (m *Manager) Put(wg commitWriteGuard, id uint64, raw []byte) error {
	prev, _, err := m.headPtr(wg, id)
	if err != nil {
		return err
	}

	e := record.Entry{
		CreateTS: wg.CommitTS(),
		Prev:     prev,
	}
	if uint32(len(raw)) > m.inlineBytes {
		ref := record.WriteValue(wg, m.pageSize, raw)
		e.PayloadKind = record.PayloadVRef
		buf := make([]byte, record.VRefSize)
		record.EncodeVRef(buf, ref)
		e.Payload = buf
	} else {
		e.PayloadKind = record.PayloadInline
		e.Payload = raw
	}

	ptr, err := AppendVersion(wg, e)
	if err != nil {
		return err
	}
	var ptrBuf [record.VersionPtrSize]byte
	record.EncodeVersionPtr(ptrBuf[:], ptr)
	return m.index.Put(wg, id, ptrBuf[:])
}

// Delete appends a terminal tombstone version over id's current head
// (§4.7: "a delete writes a terminal version with delete_ts = commit_ts
// and empty payload"). Returns false if id has no live head to delete.
func (m *Manager) Delete(wg commitWriteGuard, id uint64) (bool, error) {
	prev, found, err := m.headPtr(wg, id)
	if err != nil || !found {
		return false, err
	}
	e := record.Entry{
		CreateTS: wg.CommitTS(),
		DeleteTS: wg.CommitTS(),
		Prev:     prev,
	}
	ptr, err := AppendVersion(wg, e)
	if err != nil {
		return false, err
	}
	var ptrBuf [record.VersionPtrSize]byte
	record.EncodeVersionPtr(ptrBuf[:], ptr)
	if err := m.index.Put(wg, id, ptrBuf[:]); err != nil {
		return false, err
	}
	return true, nil
}
