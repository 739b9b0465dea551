// ABOUTME: Meta page (page 0) codec — the database's single source of truth
// ABOUTME: for format version, salt, checkpoint LSN, tree roots, and counters

package pager

import (
	"encoding/binary"

	"github.com/nainya/sombra/pkg/page"
)

// metaMagic identifies a Sombra data file: "SOMBRA\0\0" (§6).
var metaMagic = [8]byte{'S', 'O', 'M', 'B', 'R', 'A', 0, 0}

// FormatVersion is the current on-disk format version.
const FormatVersion = 1

// Meta is the decoded contents of page 0 (§3 "Meta page").
type Meta struct {
	FormatVersion uint32
	PageSize      uint32
	Salt          uint32
	LastCheckpointLSN uint64

	// Tree roots, 0 meaning "empty tree".
	NodesRoot        uint64
	EdgesRoot        uint64
	AdjFwdRoot       uint64
	AdjRevRoot       uint64
	LabelIndexRoot   uint64
	IndexCatalogRoot uint64
	DegreeCacheRoot  uint64

	NextNodeID uint64
	NextEdgeID uint64

	InlinePropBlobThreshold  uint32
	InlinePropValueThreshold uint32

	StorageFlags uint32
	DDLEpoch     uint64

	// Freelist head/tail bookkeeping (§4.9 / SUPPLEMENTED FEATURES).
	FreelistHeadPage uint64
	FreelistHeadSeq  uint64
	FreelistTailPage uint64
	FreelistTailSeq  uint64
}

// metaPayloadSize is the encoded size of Meta's fields, excluding the
// 32-byte page.Header that prefixes every page.
const metaPayloadSize = 8 /*magic*/ + 4 + 4 + 4 + 8 + 7*8 + 8 + 8 + 4 + 4 + 4 + 8 + 8*4

// EncodeMeta writes m into a full page-sized buffer's payload region,
// leaving the page.Header region untouched for the caller to stamp via
// page.Stamp.
func EncodeMeta(buf []byte, m Meta) {
	p := page.Payload(buf)
	copy(p[0:8], metaMagic[:])
	binary.BigEndian.PutUint32(p[8:12], m.FormatVersion)
	binary.BigEndian.PutUint32(p[12:16], m.PageSize)
	binary.BigEndian.PutUint32(p[16:20], m.Salt)
	binary.BigEndian.PutUint64(p[20:28], m.LastCheckpointLSN)

	roots := []uint64{
		m.NodesRoot, m.EdgesRoot, m.AdjFwdRoot, m.AdjRevRoot,
		m.LabelIndexRoot, m.IndexCatalogRoot, m.DegreeCacheRoot,
	}
	off := 28
	for _, r := range roots {
		binary.BigEndian.PutUint64(p[off:off+8], r)
		off += 8
	}

	binary.BigEndian.PutUint64(p[off:off+8], m.NextNodeID)
	off += 8
	binary.BigEndian.PutUint64(p[off:off+8], m.NextEdgeID)
	off += 8
	binary.BigEndian.PutUint32(p[off:off+4], m.InlinePropBlobThreshold)
	off += 4
	binary.BigEndian.PutUint32(p[off:off+4], m.InlinePropValueThreshold)
	off += 4
	binary.BigEndian.PutUint32(p[off:off+4], m.StorageFlags)
	off += 4
	binary.BigEndian.PutUint64(p[off:off+8], m.DDLEpoch)
	off += 8
	binary.BigEndian.PutUint64(p[off:off+8], m.FreelistHeadPage)
	off += 8
	binary.BigEndian.PutUint64(p[off:off+8], m.FreelistHeadSeq)
	off += 8
	binary.BigEndian.PutUint64(p[off:off+8], m.FreelistTailPage)
	off += 8
	binary.BigEndian.PutUint64(p[off:off+8], m.FreelistTailSeq)
}

// DecodeMeta reads a Meta back out of buf's payload region. Returns false if
// the magic is absent/wrong (bad-magic exit condition, §6).
func DecodeMeta(buf []byte) (Meta, bool) {
	p := page.Payload(buf)
	var magic [8]byte
	copy(magic[:], p[0:8])
	if magic != metaMagic {
		return Meta{}, false
	}

	var m Meta
	m.FormatVersion = binary.BigEndian.Uint32(p[8:12])
	m.PageSize = binary.BigEndian.Uint32(p[12:16])
	m.Salt = binary.BigEndian.Uint32(p[16:20])
	m.LastCheckpointLSN = binary.BigEndian.Uint64(p[20:28])

	off := 28
	roots := []*uint64{
		&m.NodesRoot, &m.EdgesRoot, &m.AdjFwdRoot, &m.AdjRevRoot,
		&m.LabelIndexRoot, &m.IndexCatalogRoot, &m.DegreeCacheRoot,
	}
	for _, r := range roots {
		*r = binary.BigEndian.Uint64(p[off : off+8])
		off += 8
	}

	m.NextNodeID = binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	m.NextEdgeID = binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	m.InlinePropBlobThreshold = binary.BigEndian.Uint32(p[off : off+4])
	off += 4
	m.InlinePropValueThreshold = binary.BigEndian.Uint32(p[off : off+4])
	off += 4
	m.StorageFlags = binary.BigEndian.Uint32(p[off : off+4])
	off += 4
	m.DDLEpoch = binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	m.FreelistHeadPage = binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	m.FreelistHeadSeq = binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	m.FreelistTailPage = binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	m.FreelistTailSeq = binary.BigEndian.Uint64(p[off : off+8])

	return m, true
}
