package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/mvarr/internal/config"
	"github.com/vmunix/mvarr/internal/discovery"
	"github.com/vmunix/mvarr/internal/queue"
)

// fakeDiscovery records runs and optionally blocks until released.
type fakeDiscovery struct {
	runs    atomic.Int64
	artists sync.Map // artistID -> true
	block   chan struct{}
}

func (f *fakeDiscovery) Run(ctx context.Context) (*discovery.Summary, error) {
	f.runs.Add(1)
	if f.block != nil {
		<-f.block
	}
	return &discovery.Summary{RunID: "run"}, nil
}

func (f *fakeDiscovery) RunArtist(ctx context.Context, artistID int64) (*discovery.Summary, error) {
	f.runs.Add(1)
	f.artists.Store(artistID, true)
	if f.block != nil {
		<-f.block
	}
	return &discovery.Summary{RunID: "run"}, nil
}

// fakeSweeper records sweeps and optionally blocks until released.
type fakeSweeper struct {
	sweeps atomic.Int64
	depth  int
	block  chan struct{}
}

func (f *fakeSweeper) Sweep(ctx context.Context) (*queue.SweepSummary, error) {
	f.sweeps.Add(1)
	if f.block != nil {
		<-f.block
	}
	return &queue.SweepSummary{RunID: "sweep"}, nil
}

func (f *fakeSweeper) QueueDepth() (int, error) {
	return f.depth, nil
}

func disabledSchedule() config.ScheduleConfig {
	return config.ScheduleConfig{
		Discovery: config.Trigger{Enabled: false},
		Download:  config.Trigger{Enabled: false},
	}
}

// errProvider fails until cleared.
type errProvider struct {
	mu  sync.Mutex
	err error
	cfg config.ScheduleConfig
}

func (p *errProvider) Schedule() (config.ScheduleConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return config.ScheduleConfig{}, p.err
	}
	return p.cfg, nil
}

func (p *errProvider) clear(cfg config.ScheduleConfig) {
	p.mu.Lock()
	p.err = nil
	p.cfg = cfg
	p.mu.Unlock()
}

func newTestScheduler(d *fakeDiscovery, s *fakeSweeper) *Scheduler {
	return New(d, s, NewStaticConfig(disabledSchedule()), nil)
}

func TestScheduler_TriggerWhileStopped(t *testing.T) {
	sched := newTestScheduler(&fakeDiscovery{}, &fakeSweeper{})

	assert.ErrorIs(t, sched.TriggerDiscovery(0), ErrNotRunning)
	assert.ErrorIs(t, sched.TriggerSweep(), ErrNotRunning)
}

func TestScheduler_StartStop(t *testing.T) {
	sched := newTestScheduler(&fakeDiscovery{}, &fakeSweeper{})

	sched.Start()
	assert.True(t, sched.Status().Running)

	// Idempotent.
	sched.Start()

	sched.Stop()
	assert.False(t, sched.Status().Running)
	sched.Stop()
}

func TestScheduler_TriggerDiscovery(t *testing.T) {
	disco := &fakeDiscovery{}
	sched := newTestScheduler(disco, &fakeSweeper{})
	sched.Start()
	defer sched.Stop()

	require.NoError(t, sched.TriggerDiscovery(0))

	assert.Eventually(t, func() bool {
		return disco.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return sched.Status().LastDiscovery != nil
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerDiscoveryForArtist(t *testing.T) {
	disco := &fakeDiscovery{}
	sched := newTestScheduler(disco, &fakeSweeper{})
	sched.Start()
	defer sched.Stop()

	require.NoError(t, sched.TriggerDiscovery(42))

	assert.Eventually(t, func() bool {
		_, ok := disco.artists.Load(int64(42))
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerSweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	sched := newTestScheduler(&fakeDiscovery{}, sweeper)
	sched.Start()
	defer sched.Stop()

	require.NoError(t, sched.TriggerSweep())

	assert.Eventually(t, func() bool {
		return sweeper.sweeps.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_CoalescesOverlappingSweeps(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{})}
	sched := newTestScheduler(&fakeDiscovery{}, sweeper)
	sched.Start()

	require.NoError(t, sched.TriggerSweep())
	assert.Eventually(t, func() bool {
		return sweeper.sweeps.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// The first sweep is still blocked; these ticks coalesce into it.
	require.NoError(t, sched.TriggerSweep())
	require.NoError(t, sched.TriggerSweep())

	assert.Eventually(t, func() bool {
		return sched.Status().CoalescedSweeps == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), sweeper.sweeps.Load())

	close(sweeper.block)
	sched.Stop()
}

func TestScheduler_CoalescesOverlappingDiscovery(t *testing.T) {
	disco := &fakeDiscovery{block: make(chan struct{})}
	sched := newTestScheduler(disco, &fakeSweeper{})
	sched.Start()

	require.NoError(t, sched.TriggerDiscovery(0))
	assert.Eventually(t, func() bool {
		return disco.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sched.TriggerDiscovery(0))
	assert.Eventually(t, func() bool {
		return sched.Status().CoalescedDiscovery == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), disco.runs.Load())

	close(disco.block)
	sched.Stop()
}

func TestScheduler_IndependentTriggers(t *testing.T) {
	// A blocked sweep must not stop discovery from running.
	disco := &fakeDiscovery{}
	sweeper := &fakeSweeper{block: make(chan struct{})}
	sched := newTestScheduler(disco, sweeper)
	sched.Start()

	require.NoError(t, sched.TriggerSweep())
	assert.Eventually(t, func() bool {
		return sweeper.sweeps.Load() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sched.TriggerDiscovery(0))
	assert.Eventually(t, func() bool {
		return disco.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	close(sweeper.block)
	sched.Stop()
}

func TestScheduler_StopWaitsForInFlightRuns(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{})}
	sched := newTestScheduler(&fakeDiscovery{}, sweeper)
	sched.Start()

	require.NoError(t, sched.TriggerSweep())
	assert.Eventually(t, func() bool {
		return sweeper.sweeps.Load() == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a sweep was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sweeper.block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the sweep resolved")
	}
}

func TestScheduler_DegradedOnConfigFailure(t *testing.T) {
	provider := &errProvider{err: errors.New("schedule: invalid cadence")}
	sched := New(&fakeDiscovery{}, &fakeSweeper{}, provider, nil)
	sched.Start()
	defer sched.Stop()

	assert.Eventually(t, func() bool {
		st := sched.Status()
		return st.Degraded && st.DegradedReason != ""
	}, time.Second, 5*time.Millisecond)

	// A fixed config plus a reload poke recovers without a restart.
	provider.clear(disabledSchedule())
	sched.Reload()

	assert.Eventually(t, func() bool {
		return !sched.Status().Degraded
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_StatusReportsNextFires(t *testing.T) {
	provider := NewStaticConfig(config.ScheduleConfig{
		Discovery: config.Trigger{Enabled: true, Cadence: config.CadenceDaily, At: "03:00"},
		Download:  config.Trigger{Enabled: true, Cadence: config.CadenceHourly},
	})
	sched := New(&fakeDiscovery{}, &fakeSweeper{depth: 7}, provider, nil)
	sched.Start()
	defer sched.Stop()

	assert.Eventually(t, func() bool {
		st := sched.Status()
		return st.NextDiscovery != nil && st.NextSweep != nil
	}, time.Second, 5*time.Millisecond)

	st := sched.Status()
	assert.True(t, st.NextDiscovery.After(time.Now()))
	assert.True(t, st.NextSweep.After(time.Now()))
	assert.Equal(t, 7, st.QueueDepth)
}

func TestScheduler_DisabledTriggersReportNoNextFire(t *testing.T) {
	sched := newTestScheduler(&fakeDiscovery{}, &fakeSweeper{})
	sched.Start()
	defer sched.Stop()

	// Give the loop a tick to publish its fire times.
	require.NoError(t, sched.TriggerSweep())
	assert.Eventually(t, func() bool {
		st := sched.Status()
		return st.NextDiscovery == nil && st.NextSweep == nil
	}, time.Second, 5*time.Millisecond)
}
