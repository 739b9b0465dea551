// ABOUTME: CRC32 checksum over (page_no, salt, payload)
// ABOUTME: Shared by pages, WAL frames, and VRef verification

package page

import (
	"encoding/binary"
	"hash/crc32"
)

// Checksum computes crc32.ChecksumIEEE over the big-endian encoding of
// pageNo and salt, followed by payload. Every on-disk page, WAL frame, and
// spilled-value chunk in Sombra is checksummed this same way so that a page
// misplaced onto the wrong slot (same bytes, wrong page_no) is detected.
func Checksum(pageNo uint64, salt uint32, payload []byte) uint32 {
	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:8], pageNo)
	binary.BigEndian.PutUint32(hdr[8:12], salt)

	h := crc32.NewIEEE()
	h.Write(hdr[:])
	h.Write(payload)
	return h.Sum32()
}
