package wal

import (
	"encoding/binary"
	"io"
	"os"
)

// FileReader reads Frames sequentially from a WAL sidecar file starting at
// a given byte offset (immediately after the file header).
type FileReader struct {
	f      *os.File
	offset int64
}

// NewFileReader creates a reader positioned at startOffset (HeaderSize for
// reading from the beginning of the frame stream).
func NewFileReader(f *os.File, startOffset int64) *FileReader {
	return &FileReader{f: f, offset: startOffset}
}

// Offset returns the byte offset of the next frame to be read.
func (r *FileReader) Offset() int64 { return r.offset }

// Next reads and decodes the frame at the reader's current offset, then
// advances past it. Returns io.EOF when there is no more data, ErrTruncated
// when a partial frame header/body is present, and ErrCorrupted when a
// frame's CRC32 does not match — callers performing recovery treat both of
// the latter as "stop here, the tail is torn" (§4.2 recovery step 3).
func (r *FileReader) Next() (*Frame, error) {
	lenBuf := make([]byte, 4)
	n, err := r.f.ReadAt(lenBuf, r.offset)
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n < 4 {
		return nil, ErrTruncated
	}
	total := binary.BigEndian.Uint32(lenBuf)
	if total < FrameHeaderSize {
		return nil, ErrTruncated
	}

	buf := make([]byte, total)
	n, err = r.f.ReadAt(buf, r.offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n < int(total) {
		return nil, ErrTruncated
	}

	frame, err := DecodeFrame(buf)
	if err != nil {
		return nil, err
	}
	r.offset += int64(total)
	return frame, nil
}
