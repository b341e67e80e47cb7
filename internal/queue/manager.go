package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vmunix/mvarr/internal/events"
	"github.com/vmunix/mvarr/internal/library"
)

// SweepSummary reports one download sweep.
type SweepSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Claimed    int
	Downloaded int
	Requeued   int
	Failed     int
}

// Manager owns sweep admission and the retry policy. It claims wanted
// videos, dispatches them to the worker pool, and resolves each claim to
// downloaded, wanted (retry), or failed.
type Manager struct {
	store      *library.Store
	fetcher    Fetcher
	pool       *Pool
	bus        *events.Bus
	maxPerRun  int
	maxRetries int
	log        *slog.Logger
}

// Config for the queue manager.
type Config struct {
	Workers     int
	MaxPerSweep int
	MaxRetries  int
}

// NewManager creates a queue manager and its worker pool.
// The bus is optional.
func NewManager(store *library.Store, fetcher Fetcher, cfg Config, bus *events.Bus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		store:      store,
		fetcher:    fetcher,
		bus:        bus,
		maxPerRun:  cfg.MaxPerSweep,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
	// The queue holds one claim per worker beyond the ones in flight;
	// admission blocks once that fills.
	m.pool = NewPool(cfg.Workers, cfg.Workers, m.process, log.With("component", "pool"))
	return m
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
}

// Stop drains the pool, waiting for in-flight downloads to resolve.
func (m *Manager) Stop() {
	m.pool.Stop()
}

// Sweep claims up to the configured number of wanted videos and runs them
// through the pool, blocking until every claim in this sweep has resolved.
// Failures are contained per video; the returned error covers only claim
// admission itself.
func (m *Manager) Sweep(ctx context.Context) (*SweepSummary, error) {
	summary := &SweepSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	claimed, err := m.store.ClaimWanted(m.maxPerRun)
	summary.Claimed = len(claimed)
	if err != nil {
		// Claims made before the error still have to be resolved.
		m.log.Error("claim pass failed", "run_id", summary.RunID, "claimed", len(claimed), "error", err)
		if len(claimed) == 0 {
			return summary, fmt.Errorf("claim wanted: %w", err)
		}
	}
	m.log.Debug("sweep started", "run_id", summary.RunID, "claimed", len(claimed))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, v := range claimed {
		artist, artistErr := m.store.Artist(v.ArtistID)
		if artistErr != nil {
			// Can't fetch without the artist; release the claim for the
			// next sweep rather than leaving the video stuck downloading.
			m.log.Error("artist lookup failed", "video_id", v.ID, "error", artistErr)
			if relErr := m.store.ReleaseForRetry(v, artistErr.Error()); relErr != nil {
				m.log.Error("release failed", "video_id", v.ID, "error", relErr)
			}
			mu.Lock()
			summary.Requeued++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		video := v
		task := Task{
			Artist: artist,
			Video:  video,
			done: func() {
				mu.Lock()
				switch video.Status {
				case library.StatusDownloaded:
					summary.Downloaded++
				case library.StatusFailed:
					summary.Failed++
				default:
					summary.Requeued++
				}
				mu.Unlock()
				wg.Done()
			},
		}
		if err := m.pool.Submit(ctx, task); err != nil {
			// Shutdown mid-sweep: resolve the claim ourselves.
			wg.Done()
			if relErr := m.store.ReleaseForRetry(video, "sweep canceled"); relErr != nil {
				m.log.Error("release failed", "video_id", video.ID, "error", relErr)
			}
			mu.Lock()
			summary.Requeued++
			mu.Unlock()
		}
	}

	wg.Wait()
	summary.FinishedAt = time.Now()

	m.log.Info("sweep finished",
		"run_id", summary.RunID,
		"claimed", summary.Claimed,
		"downloaded", summary.Downloaded,
		"requeued", summary.Requeued,
		"failed", summary.Failed,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	m.publishSweep(ctx, summary)
	return summary, nil
}

// QueueDepth returns the number of videos wanted or in flight.
func (m *Manager) QueueDepth() (int, error) {
	wanted, err := m.store.CountByStatus(library.StatusWanted)
	if err != nil {
		return 0, err
	}
	downloading, err := m.store.CountByStatus(library.StatusDownloading)
	if err != nil {
		return 0, err
	}
	return wanted + downloading, nil
}

// process resolves one claimed video on a pool worker.
func (m *Manager) process(ctx context.Context, t Task) {
	path, err := m.fetcher.Fetch(ctx, t.Artist, t.Video)
	if err == nil {
		if err := m.store.MarkDownloaded(t.Video, path); err != nil {
			m.log.Error("mark downloaded failed", "video_id", t.Video.ID, "error", err)
		} else {
			m.log.Info("video downloaded", "video_id", t.Video.ID, "title", t.Video.Title, "path", path)
		}
		return
	}

	if !Retryable(err) {
		m.log.Warn("download failed permanently", "video_id", t.Video.ID, "error", err)
		if err := m.store.MarkFailed(t.Video, err.Error()); err != nil {
			m.log.Error("mark failed failed", "video_id", t.Video.ID, "error", err)
		}
		return
	}

	// Retryable: next attempt would exceed the budget once the count is
	// bumped past maxRetries, so exhaust to failed instead of requeueing.
	if t.Video.RetryCount+1 > m.maxRetries {
		m.log.Warn("retries exhausted", "video_id", t.Video.ID, "retries", t.Video.RetryCount, "error", err)
		if err := m.store.MarkFailed(t.Video, err.Error()); err != nil {
			m.log.Error("mark failed failed", "video_id", t.Video.ID, "error", err)
		}
		return
	}

	m.log.Info("download failed, requeued", "video_id", t.Video.ID, "attempt", t.Video.RetryCount+1, "error", err)
	if err := m.store.ReleaseForRetry(t.Video, err.Error()); err != nil {
		m.log.Error("release failed", "video_id", t.Video.ID, "error", err)
	}
}

func (m *Manager) publishSweep(ctx context.Context, s *SweepSummary) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, events.SweepCompleted{
		BaseEvent:  events.NewBaseEvent(events.EventSweepCompleted, events.EntityRun, 0),
		RunID:      s.RunID,
		Claimed:    s.Claimed,
		Downloaded: s.Downloaded,
		Requeued:   s.Requeued,
		Failed:     s.Failed,
	})
}
