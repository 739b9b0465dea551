// ABOUTME: Scheduler — one background goroutine dispatching checkpoint and
// ABOUTME: vacuum work through bounded channels (§4.8, §4.9, §9)

package maintenance

import (
	"time"

	"github.com/nainya/sombra/internal/logger"
	"github.com/nainya/sombra/internal/metrics"
	"github.com/nainya/sombra/pkg/pager"
)

// VacuumTrigger identifies why a vacuum pass ran (§4.8).
type VacuumTrigger int

const (
	Timer VacuumTrigger = iota
	HighWater
	Manual
)

func (t VacuumTrigger) String() string {
	switch t {
	case Timer:
		return "timer"
	case HighWater:
		return "high_water"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// Config mirrors §4.8's vacuum worker config plus the pager's
// autocheckpoint thresholds (§6 PagerOptions) — both live in one scheduler
// per the "single scheduler thread" design note (§9).
type Config struct {
	Enabled           bool
	Interval          time.Duration
	RetentionWindow   uint64
	LogHighWaterBytes int64
	MaxPagesPerPass   int
	MaxMillisPerPass  time.Duration
	IndexCleanup      bool

	AutocheckpointPages int
	AutocheckpointMs    time.Duration
}

// DefaultConfig returns a conservative always-on configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Interval:            30 * time.Second,
		MaxPagesPerPass:     2000,
		MaxMillisPerPass:    100 * time.Millisecond,
		IndexCleanup:        true,
		AutocheckpointPages: 1000,
		AutocheckpointMs:    5 * time.Second,
	}
}

// PassStats is published after every vacuum pass.
type PassStats struct {
	Trigger        VacuumTrigger
	PagesReclaimed int
	VersionsGCed   int
	Duration       time.Duration
	Err            error
}

// VacuumFunc runs one bounded vacuum pass under a fresh write transaction
// and returns what it reclaimed. Supplied by the graph layer, which knows
// how to enumerate GC candidates — the scheduler itself is graph-agnostic.
type VacuumFunc func(wg *pager.WriteGuard, maxPages int, maxDuration time.Duration) (pagesReclaimed, versionsGCed int, err error)

// Scheduler is the single background dispatcher for checkpoint and vacuum
// work (§9 "Prefer a single scheduler thread that dispatches to WAL
// committer / async-fsync / checkpoint / vacuum tasks via bounded
// channels"; the WAL committer and async-fsync coalescer already run their
// own goroutines inside pkg/wal — this scheduler owns the two tasks layered
// on top of the pager: checkpointing and vacuum).
type Scheduler struct {
	p       *pager.Pager
	cfg     Config
	vacuum  VacuumFunc
	log     *logger.Logger
	metrics *metrics.Metrics

	manualCheckpoint chan pager.CheckpointMode
	manualVacuum     chan struct{}
	dirtyHint        chan struct{}
	stop             chan struct{}
	done             chan struct{}

	lastPass PassStats
}

// New constructs a Scheduler. Call Start to launch its background
// goroutine and Stop to drain it.
func New(p *pager.Pager, cfg Config, vacuum VacuumFunc, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		p:                p,
		cfg:              cfg,
		vacuum:           vacuum,
		log:              log,
		metrics:          m,
		manualCheckpoint: make(chan pager.CheckpointMode, 1),
		manualVacuum:     make(chan struct{}, 1),
		dirtyHint:        make(chan struct{}, 1),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// NotifyDirty is called by the write path after a commit so the
// checkpointer can react to autocheckpoint_pages without a full poll loop.
// Non-blocking: a pending hint is enough, a second one before it's
// consumed is redundant.
func (s *Scheduler) NotifyDirty() {
	select {
	case s.dirtyHint <- struct{}{}:
	default:
	}
}

// RequestVacuum triggers an out-of-cycle vacuum pass (§4.8 "Manual").
func (s *Scheduler) RequestVacuum() {
	select {
	case s.manualVacuum <- struct{}{}:
	default:
	}
}

// RequestCheckpoint triggers an out-of-cycle checkpoint.
func (s *Scheduler) RequestCheckpoint(mode pager.CheckpointMode) {
	select {
	case s.manualCheckpoint <- mode:
	default:
	}
}

// Start launches the scheduler's background goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the background goroutine to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// LastVacuumPass returns the most recently published vacuum pass result.
func (s *Scheduler) LastVacuumPass() PassStats { return s.lastPass }

func (s *Scheduler) run() {
	defer close(s.done)

	checkpointTicker := time.NewTicker(durationOr(s.cfg.AutocheckpointMs, 5*time.Second))
	defer checkpointTicker.Stop()

	var vacuumTicker *time.Ticker
	if s.cfg.Enabled {
		vacuumTicker = time.NewTicker(durationOr(s.cfg.Interval, 30*time.Second))
		defer vacuumTicker.Stop()
	}

	dirtySince := 0
	for {
		select {
		case <-s.stop:
			return

		case <-s.dirtyHint:
			dirtySince++
			if s.cfg.AutocheckpointPages > 0 && dirtySince >= s.cfg.AutocheckpointPages {
				dirtySince = 0
				s.runCheckpoint(pager.BestEffort)
			}

		case <-checkpointTicker.C:
			dirtySince = 0
			s.runCheckpoint(pager.BestEffort)

		case mode := <-s.manualCheckpoint:
			s.runCheckpoint(mode)

		case <-tickerC(vacuumTicker):
			s.runVacuum(Timer)

		case <-s.manualVacuum:
			s.runVacuum(Manual)
		}

		if s.cfg.Enabled && s.cfg.LogHighWaterBytes > 0 && s.p.WalFileSize() > s.cfg.LogHighWaterBytes {
			s.runVacuum(HighWater)
		}
	}
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func (s *Scheduler) runCheckpoint(mode pager.CheckpointMode) {
	start := time.Now()
	stats, err := s.p.Checkpoint(mode)
	dur := time.Since(start)
	if s.log != nil {
		modeName := "best_effort"
		if mode == pager.Force {
			modeName = "force"
		}
		s.log.LogCheckpoint(modeName, stats.PagesFlushed, dur, err)
	}
	if s.metrics != nil {
		modeName := "best_effort"
		if mode == pager.Force {
			modeName = "force"
		}
		s.metrics.RecordCheckpoint(modeName, stats.PagesFlushed, dur, err)
	}
}

func (s *Scheduler) runVacuum(trigger VacuumTrigger) {
	if s.vacuum == nil {
		return
	}
	start := time.Now()
	wg := s.p.BeginWrite()
	pagesReclaimed, versionsGCed, err := s.vacuum(wg, s.cfg.MaxPagesPerPass, s.cfg.MaxMillisPerPass)
	if err != nil {
		s.p.Abort(wg)
	} else if cerr := s.p.Commit(wg); cerr != nil {
		err = cerr
	}
	dur := time.Since(start)
	s.lastPass = PassStats{Trigger: trigger, PagesReclaimed: pagesReclaimed, VersionsGCed: versionsGCed, Duration: dur, Err: err}
	if s.log != nil {
		s.log.LogVacuumPass(trigger.String(), pagesReclaimed, versionsGCed, dur)
	}
	if s.metrics != nil {
		s.metrics.RecordVacuumPass(trigger.String(), pagesReclaimed, versionsGCed, dur)
	}
}
