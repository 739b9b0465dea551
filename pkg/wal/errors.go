// Package wal implements the write-ahead log: full-page-image frames,
// group commit, and crash recovery.
package wal

import "errors"

var (
	// ErrCorrupted indicates a frame whose CRC32 does not match its payload.
	ErrCorrupted = errors.New("wal: corrupted frame")

	// ErrLogClosed indicates an operation on a closed WAL.
	ErrLogClosed = errors.New("wal: log closed")

	// ErrTruncated indicates a frame header claiming more bytes than present.
	ErrTruncated = errors.New("wal: truncated frame")

	// ErrSaltMismatch indicates the WAL header salt disagrees with the data
	// file's meta salt — the WAL belongs to a different incarnation of the
	// database and is refused rather than replayed (§6 Exit conditions).
	ErrSaltMismatch = errors.New("wal: salt mismatch with data file")

	// ErrBadMagic indicates a WAL file whose header magic is absent or wrong.
	ErrBadMagic = errors.New("wal: bad header magic")
)
