// Package metrics provides Prometheus metrics for Sombra's storage core.
// It owns the counters and gauges an out-of-scope admin surface (`stats`,
// `vacuum`, `verify`, `checkpoint` commands) would scrape; it does not
// expose an HTTP handler itself.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the storage core maintains.
type Metrics struct {
	// Pager cache metrics (§6 PagerStats: hits, misses, evictions,
	// dirty_writebacks).
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	DirtyWritebacksTotal prometheus.Counter

	// WAL group-commit metrics (§4.2).
	WalCommitBatchesTotal prometheus.Counter
	WalCommitFramesTotal  prometheus.Counter
	WalFsyncTotal         prometheus.Counter
	WalCommitDuration     prometheus.Histogram
	WalBatchSize          prometheus.Histogram

	// Checkpoint metrics (§4.1).
	CheckpointsTotal    *prometheus.CounterVec
	CheckpointDuration  prometheus.Histogram
	CheckpointPagesFlushed prometheus.Counter

	// MVCC metrics (§4.7).
	ActiveSnapshots   prometheus.Gauge
	VersionChainDepth prometheus.Histogram

	// Vacuum metrics (§4.8).
	VacuumPassesTotal      *prometheus.CounterVec
	VacuumPagesReclaimed   prometheus.Counter
	VacuumVersionsGCed     prometheus.Counter
	VacuumPassDuration     prometheus.Histogram

	// Verify metrics (§4.9).
	VerifyPassesTotal      *prometheus.CounterVec
	VerifyChecksumFailures prometheus.Counter
	VerifyFindingsTotal    prometheus.Counter

	// Process metrics.
	UptimeSeconds prometheus.Gauge
	StartTime     time.Time
}

// New creates and registers every Sombra storage-core metric.
func New() *Metrics {
	m := &Metrics{StartTime: time.Now()}

	m.CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_pager_cache_hits_total",
		Help: "Total page cache hits.",
	})
	m.CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_pager_cache_misses_total",
		Help: "Total page cache misses requiring a disk read.",
	})
	m.CacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_pager_cache_evictions_total",
		Help: "Total frames evicted from the page cache.",
	})
	m.DirtyWritebacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_pager_dirty_writebacks_total",
		Help: "Total dirty frames written back to the data file.",
	})

	m.WalCommitBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_wal_commit_batches_total",
		Help: "Total group-commit batches written.",
	})
	m.WalCommitFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_wal_commit_frames_total",
		Help: "Total WAL frames appended across all batches.",
	})
	m.WalFsyncTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_wal_fsync_total",
		Help: "Total fsync calls issued against the WAL file.",
	})
	m.WalCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sombra_wal_commit_duration_seconds",
		Help:    "Duration of one group-commit batch, write plus optional fsync.",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
	m.WalBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sombra_wal_commit_batch_frames",
		Help:    "Number of frames coalesced into each committed batch.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	m.CheckpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sombra_checkpoints_total",
			Help: "Total checkpoint passes, by mode and outcome.",
		},
		[]string{"mode", "status"},
	)
	m.CheckpointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sombra_checkpoint_duration_seconds",
		Help:    "Duration of a checkpoint pass.",
		Buckets: prometheus.DefBuckets,
	})
	m.CheckpointPagesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_checkpoint_pages_flushed_total",
		Help: "Total pages flushed to the data file across all checkpoints.",
	})

	m.ActiveSnapshots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sombra_mvcc_active_snapshots",
		Help: "Number of reader snapshots currently held open.",
	})
	m.VersionChainDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sombra_mvcc_version_chain_depth",
		Help:    "Number of versions walked to resolve visibility for a lookup.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
	})

	m.VacuumPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sombra_vacuum_passes_total",
			Help: "Total vacuum passes, by trigger.",
		},
		[]string{"trigger"},
	)
	m.VacuumPagesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_vacuum_pages_reclaimed_total",
		Help: "Total pages returned to the freelist by vacuum.",
	})
	m.VacuumVersionsGCed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_vacuum_versions_gc_total",
		Help: "Total obsolete record versions reclaimed by vacuum.",
	})
	m.VacuumPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sombra_vacuum_pass_duration_seconds",
		Help:    "Duration of one vacuum pass.",
		Buckets: prometheus.DefBuckets,
	})

	m.VerifyPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sombra_verify_passes_total",
			Help: "Total integrity-verify passes, by level.",
		},
		[]string{"level"},
	)
	m.VerifyChecksumFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_verify_checksum_failures_total",
		Help: "Total page CRC mismatches found across all verify passes.",
	})
	m.VerifyFindingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sombra_verify_findings_total",
		Help: "Total findings of any severity recorded across all verify passes.",
	})

	m.UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sombra_uptime_seconds",
		Help: "Seconds since this Pager was opened.",
	})

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.UptimeSeconds.Set(time.Since(m.StartTime).Seconds())
	}
}

// RecordCacheHit/Miss update pager cache counters.
func (m *Metrics) RecordCacheHit()  { m.CacheHitsTotal.Inc() }
func (m *Metrics) RecordCacheMiss() { m.CacheMissesTotal.Inc() }

// RecordEviction records one frame leaving the cache.
func (m *Metrics) RecordEviction() { m.CacheEvictionsTotal.Inc() }

// RecordDirtyWriteback records one dirty-frame writeback, either from
// eviction pressure or a checkpoint pass.
func (m *Metrics) RecordDirtyWriteback() { m.DirtyWritebacksTotal.Inc() }

// RecordWalCommit records one group-commit batch.
func (m *Metrics) RecordWalCommit(frameCount int, fsynced bool, duration time.Duration) {
	m.WalCommitBatchesTotal.Inc()
	m.WalCommitFramesTotal.Add(float64(frameCount))
	m.WalBatchSize.Observe(float64(frameCount))
	m.WalCommitDuration.Observe(duration.Seconds())
	if fsynced {
		m.WalFsyncTotal.Inc()
	}
}

// RecordCheckpoint records one checkpoint pass outcome.
func (m *Metrics) RecordCheckpoint(mode string, pagesFlushed int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CheckpointsTotal.WithLabelValues(mode, status).Inc()
	m.CheckpointPagesFlushed.Add(float64(pagesFlushed))
	m.CheckpointDuration.Observe(duration.Seconds())
}

// UpdateActiveSnapshots reports the current live-reader count.
func (m *Metrics) UpdateActiveSnapshots(n int) { m.ActiveSnapshots.Set(float64(n)) }

// RecordVersionChainWalk records how many versions a visibility lookup walked.
func (m *Metrics) RecordVersionChainWalk(depth int) { m.VersionChainDepth.Observe(float64(depth)) }

// RecordVacuumPass records one vacuum worker pass (§4.8).
func (m *Metrics) RecordVacuumPass(trigger string, pagesReclaimed, versionsGCed int, duration time.Duration) {
	m.VacuumPassesTotal.WithLabelValues(trigger).Inc()
	m.VacuumPagesReclaimed.Add(float64(pagesReclaimed))
	m.VacuumVersionsGCed.Add(float64(versionsGCed))
	m.VacuumPassDuration.Observe(duration.Seconds())
}

// RecordVerifyPass records one integrity-verify pass (§4.9).
func (m *Metrics) RecordVerifyPass(level string, checksumFailures, findings int) {
	m.VerifyPassesTotal.WithLabelValues(level).Inc()
	m.VerifyChecksumFailures.Add(float64(checksumFailures))
	m.VerifyFindingsTotal.Add(float64(findings))
}
