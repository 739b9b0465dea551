// ABOUTME: Monotonic timestamp oracle for MVCC snapshots and commits
// ABOUTME: Tracks the active-snapshot set that gates GC and checkpoint drain

package oracle

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Oracle hands out monotonically increasing timestamps. Because Sombra has
// at most one writer, commit timestamps and LSNs are the same totally
// ordered sequence (§4.3): snapshot_ts(T_r) < commit_ts(T_w) iff T_r does
// not observe T_w's effects.
type Oracle struct {
	counter uint64 // atomic: last *published* ts, the one new snapshots see
	pending uint64 // atomic: last *reserved* ts (always >= counter)

	mu     sync.Mutex
	active map[uint64]int // snapshot ts -> number of live readers holding it
}

// New creates an Oracle. last is the highest timestamp/LSN already durable
// on disk (0 for a brand-new database); the oracle resumes counting after it.
func New(last uint64) *Oracle {
	return &Oracle{
		counter: last,
		pending: last,
		active:  make(map[uint64]int),
	}
}

// NextCommitTS atomically reserves and publishes the next commit
// timestamp in one step. Equal to the commit LSN under the single-writer
// model. Most callers that don't need to stamp MVCC payloads before the
// transaction's WAL write lands should use this.
func (o *Oracle) NextCommitTS() uint64 {
	ts := atomic.AddUint64(&o.pending, 1)
	atomic.StoreUint64(&o.counter, ts)
	return ts
}

// ReserveCommitTS allocates the next commit timestamp without publishing
// it to new readers yet. A single writer transaction reserves its LSN up
// front (at begin_write) so it can stamp MVCC version entries' create_ts
// while still mutating pages (§4.7), then calls PublishCommit once its WAL
// write actually lands — so a reader starting mid-transaction never
// observes the in-flight writer's effects (§4.3 ordering guarantee).
func (o *Oracle) ReserveCommitTS() uint64 {
	return atomic.AddUint64(&o.pending, 1)
}

// PublishCommit makes ts visible to snapshots begun from this point on.
// Called once the reserving transaction's WAL write is durable.
func (o *Oracle) PublishCommit(ts uint64) {
	atomic.StoreUint64(&o.counter, ts)
}

// Current returns the highest *published* timestamp — the one a new
// snapshot would observe — without allocating a new one.
func (o *Oracle) Current() uint64 {
	return atomic.LoadUint64(&o.counter)
}

// BeginSnapshot samples the current published timestamp for a new reader
// and registers it as active until the matching EndSnapshot call.
func (o *Oracle) BeginSnapshot() uint64 {
	ts := atomic.LoadUint64(&o.counter)
	o.mu.Lock()
	o.active[ts]++
	o.mu.Unlock()
	return ts
}

// EndSnapshot releases a reader's hold on ts, taken out by BeginSnapshot.
func (o *Oracle) EndSnapshot(ts uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.active[ts]
	if n <= 1 {
		delete(o.active, ts)
	} else {
		o.active[ts] = n - 1
	}
}

// MinActiveSnapshot returns the lowest snapshot timestamp currently held by
// any live reader, or current+1 if there are none — i.e. nothing older
// than "now" needs to be retained for readers. It gates MVCC GC (§4.7) and
// checkpoint(Force) drain (§4.1).
func (o *Oracle) MinActiveSnapshot() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.active) == 0 {
		return atomic.LoadUint64(&o.counter) + 1
	}
	min := uint64(0)
	first := true
	for ts := range o.active {
		if first || ts < min {
			min = ts
			first = false
		}
	}
	return min
}

// ActiveSnapshots returns a sorted copy of the currently held snapshot
// timestamps, for diagnostics and tests.
func (o *Oracle) ActiveSnapshots() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]uint64, 0, len(o.active))
	for ts := range o.active {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
