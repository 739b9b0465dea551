package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// SyncMode controls how aggressively commit batches are fsynced (§4.2).
type SyncMode int

const (
	// SyncOff performs no fsync at all. Test only.
	SyncOff SyncMode = iota
	// SyncNormal fsyncs per batch but allows async-fsync coalescing: callers
	// may be told "written" before the coalescer's fsync actually lands.
	SyncNormal
	// SyncFull fsyncs the WAL after every commit batch before returning.
	SyncFull
)

func (m SyncMode) String() string {
	switch m {
	case SyncOff:
		return "Off"
	case SyncNormal:
		return "Normal"
	case SyncFull:
		return "Full"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// headerMagic identifies a Sombra WAL sidecar file.
var headerMagic = [8]byte{'S', 'O', 'M', 'B', 'R', 'A', 'W', 'L'}

// HeaderSize is the fixed size of the WAL file header: magic(8) page_size(4)
// salt(4) start_lsn(8) = 24.
const HeaderSize = 24

// Header is the WAL sidecar's own header, written once at creation. Its
// salt mirrors the data file's meta salt so a WAL belonging to a different
// incarnation of the database is detected and refused (§6 Exit conditions).
type Header struct {
	PageSize uint32
	Salt     uint32
	StartLSN uint64
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], headerMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], h.PageSize)
	binary.BigEndian.PutUint32(buf[12:16], h.Salt)
	binary.BigEndian.PutUint64(buf[16:24], h.StartLSN)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncated
	}
	var magic [8]byte
	copy(magic[:], buf[0:8])
	if magic != headerMagic {
		return Header{}, ErrBadMagic
	}
	return Header{
		PageSize: binary.BigEndian.Uint32(buf[8:12]),
		Salt:     binary.BigEndian.Uint32(buf[12:16]),
		StartLSN: binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// Options configures group commit and fsync behavior. Field names mirror
// PagerOptions in §6: Synchronous, async_fsync, async_fsync_max_wait_ms.
type Options struct {
	Synchronous       SyncMode
	AsyncFsync        bool
	AsyncFsyncMaxWait time.Duration
	MaxBatchCommits   int
	MaxBatchFrames    int
	MaxBatchWait      time.Duration
}

// DefaultOptions returns conservative group-commit defaults.
func DefaultOptions() Options {
	return Options{
		Synchronous:       SyncFull,
		AsyncFsync:        false,
		AsyncFsyncMaxWait: 5 * time.Millisecond,
		MaxBatchCommits:   64,
		MaxBatchFrames:    256,
		MaxBatchWait:      2 * time.Millisecond,
	}
}

// commitRequest is one caller's batch of frames waiting on the committer.
type commitRequest struct {
	frames   []*Frame
	syncMode SyncMode
	done     chan commitResult
}

type commitResult struct {
	lsn uint64
	err error
}

// WAL is the append-only sidecar log of full-page images backing one
// database file. A single background committer goroutine coalesces
// concurrent commit() calls into batched writes plus at most one fsync,
// per the group-commit design in §4.2.
type WAL struct {
	path string
	file *os.File

	header Header

	lsn      uint64 // atomic: highest LSN appended so far
	durable  uint64 // atomic: highest LSN known fsynced
	fileSize int64  // guarded by writeMu

	opts Options

	requests chan *commitRequest
	done     chan struct{}
	wg       sync.WaitGroup

	writeMu sync.Mutex // serializes actual file writes/fsyncs

	backlog *asyncFsyncBacklog

	durableMu   sync.Mutex
	durableCond *sync.Cond

	closed int32 // atomic bool
}

// Create creates a new WAL sidecar file at path with the given header,
// truncating any existing file. Callers open a brand-new WAL only when
// creating a brand-new database file (§6: "Open on a file with bad
// magic/salt/page_size ⇒ fail immediately" governs the data file; the WAL
// itself is simply (re)written alongside it).
func Create(path string, pageSize uint32, salt uint32, startLSN uint64, opts Options) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	h := Header{PageSize: pageSize, Salt: salt, StartLSN: startLSN}
	if _, err := f.Write(encodeHeader(h)); err != nil {
		f.Close()
		return nil, err
	}
	return newWAL(f, path, h, startLSN, opts), nil
}

// Open opens an existing WAL sidecar file, validating its header salt
// against expectedSalt. Returns ErrSaltMismatch if they differ — the WAL
// belongs to a different incarnation of the data file and must be refused,
// never replayed (§6 Exit conditions).
func Open(path string, expectedSalt uint32, opts Options) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	hdrBuf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, err
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if h.Salt != expectedSalt {
		f.Close()
		return nil, ErrSaltMismatch
	}

	maxLSN, err := scanHighestLSN(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	start := h.StartLSN
	if maxLSN > start {
		start = maxLSN
	}
	return newWAL(f, path, h, start, opts), nil
}

func newWAL(f *os.File, path string, h Header, lsn uint64, opts Options) *WAL {
	stat, _ := f.Stat()
	w := &WAL{
		path:     path,
		file:     f,
		header:   h,
		lsn:      lsn,
		durable:  lsn,
		fileSize: statSize(stat),
		opts:     opts,
		requests: make(chan *commitRequest, 256),
		done:     make(chan struct{}),
	}
	w.durableCond = sync.NewCond(&w.durableMu)
	if opts.AsyncFsync {
		w.backlog = newAsyncFsyncBacklog(w, opts.AsyncFsyncMaxWait)
		w.backlog.start()
	}
	w.wg.Add(1)
	go w.committerLoop()
	return w
}

func statSize(fi os.FileInfo) int64 {
	if fi == nil {
		return HeaderSize
	}
	return fi.Size()
}

// NextLSN allocates the next LSN without appending a frame. Used by the
// pager to stamp page buffers before building frames so that a
// transaction's commit LSN is known ahead of the WAL append.
func (w *WAL) NextLSN() uint64 {
	return atomic.AddUint64(&w.lsn, 1)
}

// Salt returns the WAL's incarnation salt.
func (w *WAL) Salt() uint32 { return w.header.Salt }

// ConfiguredSync returns the durability mode this WAL was opened with.
func (w *WAL) ConfiguredSync() SyncMode { return w.opts.Synchronous }

// DurableLSN returns the highest LSN known to be fsynced to disk.
func (w *WAL) DurableLSN() uint64 {
	return atomic.LoadUint64(&w.durable)
}

// Commit appends frames as one batch and returns once the batch's
// durability promise (per syncMode) is satisfied. The frame(s)' own LSNs
// must already be assigned by the caller (typically via NextLSN); Commit
// returns the highest LSN in the batch on success.
func (w *WAL) Commit(frames []*Frame, syncMode SyncMode) (uint64, error) {
	if atomic.LoadInt32(&w.closed) != 0 {
		return 0, ErrLogClosed
	}
	if len(frames) == 0 {
		return atomic.LoadUint64(&w.lsn), nil
	}
	req := &commitRequest{frames: frames, syncMode: syncMode, done: make(chan commitResult, 1)}
	select {
	case w.requests <- req:
	case <-w.done:
		return 0, ErrLogClosed
	}
	res := <-req.done
	return res.lsn, res.err
}

// committerLoop is the single writer goroutine that coalesces concurrent
// Commit callers into batched writes and at most one fsync per batch,
// per the group-commit design in §4.2.
func (w *WAL) committerLoop() {
	defer w.wg.Done()
	for {
		req, ok := <-w.requests
		if !ok {
			return
		}
		batch := []*commitRequest{req}
		nframes := len(req.frames)
		deadline := time.After(w.opts.MaxBatchWait)

	collect:
		for len(batch) < w.opts.MaxBatchCommits && nframes < w.opts.MaxBatchFrames {
			select {
			case next, ok := <-w.requests:
				if !ok {
					break collect
				}
				batch = append(batch, next)
				nframes += len(next.frames)
			case <-deadline:
				break collect
			}
		}

		w.flushBatch(batch)
	}
}

func (w *WAL) flushBatch(batch []*commitRequest) {
	w.writeMu.Lock()
	maxLSN := uint64(0)
	needSync := false
	hasFull := false
	var writeErr error
	for _, req := range batch {
		for _, f := range req.frames {
			buf := f.Encode()
			if _, err := w.file.WriteAt(buf, w.fileSize); err != nil {
				writeErr = err
				break
			}
			w.fileSize += int64(len(buf))
			if f.LSN > maxLSN {
				maxLSN = f.LSN
			}
		}
		if writeErr != nil {
			break
		}
		if req.syncMode != SyncOff {
			needSync = true
		}
		if req.syncMode == SyncFull {
			hasFull = true
		}
	}

	if writeErr != nil {
		w.writeMu.Unlock()
		w.respondAll(batch, writeErr)
		return
	}

	var syncErr error
	if needSync {
		if hasFull || !w.opts.AsyncFsync {
			syncErr = w.file.Sync()
			if syncErr == nil {
				atomic.StoreUint64(&w.durable, maxLSN)
				w.durableMu.Lock()
				w.durableCond.Broadcast()
				w.durableMu.Unlock()
			}
		} else {
			w.backlog.record(maxLSN)
		}
	}
	w.writeMu.Unlock()

	if syncErr != nil {
		w.respondAll(batch, syncErr)
		return
	}
	w.respondAll(batch, nil)
}

func (w *WAL) respondAll(batch []*commitRequest, err error) {
	for _, req := range batch {
		if err != nil {
			req.done <- commitResult{err: err}
			continue
		}
		reqMax := uint64(0)
		for _, f := range req.frames {
			if f.LSN > reqMax {
				reqMax = f.LSN
			}
		}
		req.done <- commitResult{lsn: reqMax}
	}
}

// WaitDurable blocks until lsn is known to be fsynced to the WAL file, or
// the WAL is closed first. Used by the pager to make a page's data-file
// write-back wait until its WAL frame is actually durable, preserving
// write-ahead ordering across cache eviction and checkpoint.
func (w *WAL) WaitDurable(lsn uint64) {
	for atomic.LoadUint64(&w.durable) < lsn {
		if atomic.LoadInt32(&w.closed) != 0 {
			return
		}
		w.durableMu.Lock()
		if atomic.LoadUint64(&w.durable) < lsn && atomic.LoadInt32(&w.closed) == 0 {
			w.durableCond.Wait()
		}
		w.durableMu.Unlock()
	}
}

// FileSize returns the WAL sidecar's current on-disk size, consulted by
// the maintenance scheduler's HighWater vacuum trigger (§4.8).
func (w *WAL) FileSize() int64 {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.fileSize
}

// Truncate resets the WAL to empty (just the header, new start_lsn), used
// after a checkpoint has made every frame durable in the data file.
func (w *WAL) Truncate(newStartLSN uint64) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.file.Truncate(HeaderSize); err != nil {
		return err
	}
	w.header.StartLSN = newStartLSN
	if _, err := w.file.WriteAt(encodeHeader(w.header), 0); err != nil {
		return err
	}
	w.fileSize = HeaderSize
	return w.file.Sync()
}

// Close stops the committer and async-fsync coalescer and closes the file.
func (w *WAL) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}
	close(w.done)
	close(w.requests)
	w.wg.Wait()
	if w.backlog != nil {
		w.backlog.stop()
	}
	w.durableMu.Lock()
	w.durableCond.Broadcast()
	w.durableMu.Unlock()
	return w.file.Close()
}

// scanHighestLSN reads every frame sequentially to recover the high-water
// LSN mark after a clean reopen with no replay needed. Corrupted tails are
// Recovery's job, not this scan's — it stops at the first decode error and
// reports what it found so far.
func scanHighestLSN(f *os.File) (uint64, error) {
	r := NewFileReader(f, HeaderSize)
	var max uint64
	for {
		frame, err := r.Next()
		if err != nil {
			break
		}
		if frame.LSN > max {
			max = frame.LSN
		}
	}
	return max, nil
}
