package wal

import (
	"os"
)

// PageWriter is the subset of the pager's data-file access recovery needs:
// write one full page image at its page_id, with no fsync between frames
// (§4.2 recovery step 4 — the data file is fsynced once at the end).
type PageWriter interface {
	WritePageImage(pageID uint64, payload []byte) error
}

// Result summarizes one recovery pass.
type Result struct {
	FramesReplayed    int
	HighestReplayedLSN uint64
	TornTailOffset     int64 // -1 if the WAL ended cleanly
}

// Recover replays every WAL frame with lsn > lastCheckpointLSN into dst,
// stopping at the first frame that fails CRC or has a non-monotonic LSN —
// the remainder of the file is a torn tail from an incomplete write and is
// simply not replayed (§4.2 recovery / §8 property "Idempotence: replaying
// a WAL tail twice yields the same page bytes and LSN"). A WAL whose file
// header salt differs from salt is refused with ErrSaltMismatch before any
// frame is read.
//
// Recover does not fsync dst or truncate the WAL; the caller (pager open
// path) does that once recovery succeeds, exactly as a checkpoint would.
func Recover(path string, salt uint32, lastCheckpointLSN uint64, dst PageWriter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{TornTailOffset: -1}, nil
		}
		return nil, err
	}
	defer f.Close()

	hdrBuf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		return &Result{TornTailOffset: -1}, nil
	}
	hdr, err := decodeHeader(hdrBuf)
	if err != nil {
		return &Result{TornTailOffset: -1}, nil
	}
	if hdr.Salt != salt {
		return nil, ErrSaltMismatch
	}

	reader := NewFileReader(f, HeaderSize)
	result := &Result{TornTailOffset: -1}
	var lastLSN uint64

	for {
		offsetBefore := reader.Offset()
		frame, err := reader.Next()
		if err != nil {
			if err == ErrCorrupted || err == ErrTruncated {
				result.TornTailOffset = offsetBefore
				break
			}
			// io.EOF: clean end of file.
			break
		}
		if frame.LSN <= lastLSN && lastLSN != 0 {
			result.TornTailOffset = offsetBefore
			break
		}
		lastLSN = frame.LSN

		if frame.LSN <= lastCheckpointLSN {
			continue
		}
		if err := dst.WritePageImage(frame.PageID, frame.Payload); err != nil {
			return nil, err
		}
		result.FramesReplayed++
		if frame.LSN > result.HighestReplayedLSN {
			result.HighestReplayedLSN = frame.LSN
		}
	}

	if result.HighestReplayedLSN == 0 {
		result.HighestReplayedLSN = lastCheckpointLSN
	}
	return result, nil
}
