// Package scheduler owns the timed triggers for discovery runs and download
// sweeps, including tick coalescing and lifecycle control.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmunix/mvarr/internal/config"
	"github.com/vmunix/mvarr/internal/discovery"
	"github.com/vmunix/mvarr/internal/queue"
)

// ErrNotRunning is returned by triggers when the scheduler is stopped.
var ErrNotRunning = errors.New("scheduler not running")

// configRetryInterval is how long the loop waits before re-reading a
// schedule config that failed to load. While waiting the scheduler reports
// itself degraded and fires nothing.
const configRetryInterval = 30 * time.Second

// DiscoveryRunner runs discovery passes.
type DiscoveryRunner interface {
	Run(ctx context.Context) (*discovery.Summary, error)
	RunArtist(ctx context.Context, artistID int64) (*discovery.Summary, error)
}

// SweepRunner runs download sweeps.
type SweepRunner interface {
	Sweep(ctx context.Context) (*queue.SweepSummary, error)
	QueueDepth() (int, error)
}

// ConfigProvider supplies the schedule snapshot, re-read at tick boundaries
// only; a run in progress never sees a config change.
type ConfigProvider interface {
	Schedule() (config.ScheduleConfig, error)
}

// StaticConfig is a ConfigProvider over an in-memory snapshot, replaced
// atomically on reload.
type StaticConfig struct {
	mu  sync.RWMutex
	cfg config.ScheduleConfig
}

// NewStaticConfig creates a provider with an initial snapshot.
func NewStaticConfig(cfg config.ScheduleConfig) *StaticConfig {
	return &StaticConfig{cfg: cfg}
}

// Schedule returns the current snapshot.
func (p *StaticConfig) Schedule() (config.ScheduleConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg, nil
}

// Set replaces the snapshot.
func (p *StaticConfig) Set(cfg config.ScheduleConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Status is an observability snapshot of the scheduler.
type Status struct {
	Running            bool                `json:"running"`
	Degraded           bool                `json:"degraded"`
	DegradedReason     string              `json:"degraded_reason,omitempty"`
	NextDiscovery      *time.Time          `json:"next_discovery,omitempty"`
	NextSweep          *time.Time          `json:"next_sweep,omitempty"`
	LastDiscovery      *discovery.Summary  `json:"last_discovery,omitempty"`
	LastSweep          *queue.SweepSummary `json:"last_sweep,omitempty"`
	CoalescedDiscovery int                 `json:"coalesced_discovery"`
	CoalescedSweeps    int                 `json:"coalesced_sweeps"`
	QueueDepth         int                 `json:"queue_depth"`
}

// Scheduler drives the two independent timed triggers. The tick evaluation
// loop is single-threaded; it spawns at most one concurrent discovery run
// and one concurrent download sweep, coalescing ticks that fire while the
// same kind of run is in progress.
type Scheduler struct {
	discovery DiscoveryRunner
	sweeper   SweepRunner
	provider  ConfigProvider
	log       *slog.Logger

	reload    chan struct{}
	trigDisco chan int64 // artist id, 0 = all eligible
	trigSweep chan struct{}

	cancel context.CancelFunc
	loopWG sync.WaitGroup
	runWG  sync.WaitGroup

	discoRunning atomic.Bool
	sweepRunning atomic.Bool

	mu sync.Mutex
	st Status
}

// New creates a scheduler.
func New(d DiscoveryRunner, s SweepRunner, provider ConfigProvider, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		discovery: d,
		sweeper:   s,
		provider:  provider,
		log:       log,
		reload:    make(chan struct{}, 1),
		trigDisco: make(chan int64),
		trigSweep: make(chan struct{}),
	}
}

// Start launches the scheduling loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.st.Running {
		s.mu.Unlock()
		return
	}
	s.st.Running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopWG.Add(1)
	go s.loop(ctx)
	s.log.Info("scheduler started")
}

// Stop signals the loop to exit after the current tick and waits for
// in-flight runs to finish. No run is interrupted mid-artist or
// mid-download.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.st.Running {
		s.mu.Unlock()
		return
	}
	s.st.Running = false
	s.mu.Unlock()

	s.cancel()
	s.loopWG.Wait()
	s.runWG.Wait()
	s.log.Info("scheduler stopped")
}

// Reload makes the loop re-read its ConfigProvider at the next tick
// boundary without dropping in-flight work.
func (s *Scheduler) Reload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// TriggerDiscovery requests an immediate discovery run outside the
// schedule. artistID 0 runs all eligible artists. The run is still subject
// to coalescing against a scheduled run already in progress.
func (s *Scheduler) TriggerDiscovery(artistID int64) error {
	s.mu.Lock()
	running := s.st.Running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case s.trigDisco <- artistID:
		return nil
	case <-time.After(time.Second):
		return ErrNotRunning
	}
}

// TriggerSweep requests an immediate download sweep outside the schedule.
func (s *Scheduler) TriggerSweep() error {
	s.mu.Lock()
	running := s.st.Running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case s.trigSweep <- struct{}{}:
		return nil
	case <-time.After(time.Second):
		return ErrNotRunning
	}
}

// Status returns an observability snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := s.st
	s.mu.Unlock()

	if depth, err := s.sweeper.QueueDepth(); err == nil {
		st.QueueDepth = depth
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWG.Done()

	for {
		cfg, err := s.provider.Schedule()
		if err != nil {
			// Without a valid schedule the loop cannot safely decide what
			// to run; surface the degraded state and wait.
			s.log.Error("schedule config unavailable", "error", err)
			s.setDegraded(err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(configRetryInterval):
			case <-s.reload:
			}
			continue
		}
		s.setDegraded("")

		now := time.Now()
		nextD := nextFire(cfg.Discovery, now)
		nextS := nextFire(cfg.Download, now)
		s.setNextFires(nextD, nextS)

		dCh, dStop := fireChan(nextD, now)
		sCh, sStop := fireChan(nextS, now)

		select {
		case <-ctx.Done():
			dStop()
			sStop()
			return
		case <-dCh:
			s.startDiscovery(ctx, 0)
		case <-sCh:
			s.startSweep(ctx)
		case artistID := <-s.trigDisco:
			s.startDiscovery(ctx, artistID)
		case <-s.trigSweep:
			s.startSweep(ctx)
		case <-s.reload:
			s.log.Info("schedule reloaded")
		}
		dStop()
		sStop()
	}
}

// fireChan returns a channel that delivers at the fire time, or a nil
// channel (never delivers) for the zero time.
func fireChan(at time.Time, now time.Time) (<-chan time.Time, func()) {
	if at.IsZero() {
		return nil, func() {}
	}
	timer := time.NewTimer(at.Sub(now))
	return timer.C, func() { timer.Stop() }
}

func (s *Scheduler) startDiscovery(ctx context.Context, artistID int64) {
	if !s.discoRunning.CompareAndSwap(false, true) {
		s.log.Info("discovery tick coalesced, previous run still in progress")
		s.mu.Lock()
		s.st.CoalescedDiscovery++
		s.mu.Unlock()
		return
	}

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer s.discoRunning.Store(false)

		var summary *discovery.Summary
		var err error
		if artistID > 0 {
			summary, err = s.discovery.RunArtist(ctx, artistID)
		} else {
			summary, err = s.discovery.Run(ctx)
		}
		if err != nil {
			s.log.Error("discovery run failed", "error", err)
			return
		}
		s.mu.Lock()
		s.st.LastDiscovery = summary
		s.mu.Unlock()
	}()
}

func (s *Scheduler) startSweep(ctx context.Context) {
	if !s.sweepRunning.CompareAndSwap(false, true) {
		s.log.Info("download sweep coalesced, previous sweep still in progress")
		s.mu.Lock()
		s.st.CoalescedSweeps++
		s.mu.Unlock()
		return
	}

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer s.sweepRunning.Store(false)

		summary, err := s.sweeper.Sweep(ctx)
		if err != nil {
			s.log.Error("download sweep failed", "error", err)
			return
		}
		s.mu.Lock()
		s.st.LastSweep = summary
		s.mu.Unlock()
	}()
}

func (s *Scheduler) setDegraded(reason string) {
	s.mu.Lock()
	s.st.Degraded = reason != ""
	s.st.DegradedReason = reason
	s.mu.Unlock()
}

func (s *Scheduler) setNextFires(nextD, nextS time.Time) {
	s.mu.Lock()
	if nextD.IsZero() {
		s.st.NextDiscovery = nil
	} else {
		s.st.NextDiscovery = &nextD
	}
	if nextS.IsZero() {
		s.st.NextSweep = nil
	} else {
		s.st.NextSweep = &nextS
	}
	s.mu.Unlock()
}
