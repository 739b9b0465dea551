package wal

import (
	"sync/atomic"
	"time"
)

// asyncFsyncBacklog coalesces fsync calls under SyncNormal: writes land
// immediately but the fsync that makes them durable is deferred and batched,
// per §4.2 "Normal: ... an AsyncFsyncBacklog records pending LSNs and a
// background thread issues the fsync within async_fsync_max_wait_ms".
type asyncFsyncBacklog struct {
	w        *WAL
	maxWait  time.Duration
	pending  uint64 // atomic: highest LSN written but not yet confirmed durable
	wake     chan struct{}
	done     chan struct{}
	finished chan struct{}
}

func newAsyncFsyncBacklog(w *WAL, maxWait time.Duration) *asyncFsyncBacklog {
	return &asyncFsyncBacklog{
		w:        w,
		maxWait:  maxWait,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// record marks lsn as written-but-not-yet-synced and nudges the coalescer.
func (b *asyncFsyncBacklog) record(lsn uint64) {
	for {
		cur := atomic.LoadUint64(&b.pending)
		if lsn <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&b.pending, cur, lsn) {
			break
		}
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *asyncFsyncBacklog) start() {
	go b.loop()
}

func (b *asyncFsyncBacklog) loop() {
	defer close(b.finished)
	ticker := time.NewTicker(b.maxWait)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			b.flush()
			return
		case <-b.wake:
		case <-ticker.C:
		}
		b.flush()
	}
}

func (b *asyncFsyncBacklog) flush() {
	target := atomic.LoadUint64(&b.pending)
	if target <= b.w.DurableLSN() {
		return
	}
	b.w.writeMu.Lock()
	err := b.w.file.Sync()
	b.w.writeMu.Unlock()
	if err == nil {
		atomic.StoreUint64(&b.w.durable, target)
		b.w.durableMu.Lock()
		b.w.durableCond.Broadcast()
		b.w.durableMu.Unlock()
	}
}

func (b *asyncFsyncBacklog) stop() {
	close(b.done)
	<-b.finished
}
