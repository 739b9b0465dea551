// ABOUTME: WAL frame format — full-page images with LSN and CRC32
// ABOUTME: Mirrors the teacher's op-log Entry shape but carries page bytes

package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// FrameHeaderSize is the fixed size, in bytes, of a Frame's on-disk header:
// total_len(4) lsn(8) page_id(8) page_size(4) crc32(4) = 28
const FrameHeaderSize = 28

// Frame is a single WAL record: the full image of one page as of one LSN.
// §6: "{u32 total_len, u64 lsn, u64 page_id, u32 page_size, u32 crc32,
// payload[page_size]}".
type Frame struct {
	LSN      uint64
	PageID   uint64
	PageSize uint32
	Payload  []byte // len(Payload) == PageSize
}

// Size returns the total encoded size of the frame, including its header.
func (f *Frame) Size() int {
	return FrameHeaderSize + len(f.Payload)
}

// Encode serializes f, including a CRC32 over the header fields (excluding
// total_len and crc32 itself) plus the payload.
func (f *Frame) Encode() []byte {
	total := f.Size()
	buf := make([]byte, total)

	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint64(buf[4:12], f.LSN)
	binary.BigEndian.PutUint64(buf[12:20], f.PageID)
	binary.BigEndian.PutUint32(buf[20:24], f.PageSize)
	copy(buf[FrameHeaderSize:], f.Payload)

	crc := frameChecksum(buf)
	binary.BigEndian.PutUint32(buf[24:28], crc)
	return buf
}

// frameChecksum computes crc32.ChecksumIEEE over the frame's header and
// payload, excluding the crc32 field itself (bytes [24:28)) — "crc32(header+
// payload)" per §4.2.
func frameChecksum(buf []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(buf[:24])
	h.Write(buf[28:])
	return h.Sum32()
}

// DecodeFrame parses a frame from buf, which must contain at least the
// header; returns ErrTruncated if buf is shorter than the declared
// total_len, ErrCorrupted if the CRC32 does not match.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < FrameHeaderSize {
		return nil, ErrTruncated
	}
	total := binary.BigEndian.Uint32(buf[0:4])
	if int(total) > len(buf) {
		return nil, ErrTruncated
	}
	buf = buf[:total]

	storedCRC := binary.BigEndian.Uint32(buf[24:28])
	if frameChecksum(buf) != storedCRC {
		return nil, ErrCorrupted
	}

	f := &Frame{
		LSN:      binary.BigEndian.Uint64(buf[4:12]),
		PageID:   binary.BigEndian.Uint64(buf[12:20]),
		PageSize: binary.BigEndian.Uint32(buf[20:24]),
	}
	f.Payload = append([]byte(nil), buf[FrameHeaderSize:]...)
	return f, nil
}
