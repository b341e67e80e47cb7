// Package discovery orchestrates per-artist source queries, deduplication,
// and persistence of newly found videos.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vmunix/mvarr/internal/dedup"
	"github.com/vmunix/mvarr/internal/events"
	"github.com/vmunix/mvarr/internal/library"
	"github.com/vmunix/mvarr/internal/source"
)

// Summary reports one discovery run.
type Summary struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Artists        int // artists processed
	Failed         int // artists whose run failed entirely
	Discovered     int // new videos persisted
	Merged         int // external ids merged onto known videos
	Duplicates     int // candidates already fully known
	SourcesSkipped []string
}

// Config bounds one discovery run.
type Config struct {
	DefaultInterval time.Duration            // per-artist re-discovery interval
	MaxNewPerArtist int                      // cap on new videos per artist per run
	SourceDelays    map[string]time.Duration // per-source minimum call gaps
	DefaultDelay    time.Duration
	BreakAfter      int      // circuit breaker threshold
	Priority        []string // source trust order
}

// Coordinator runs discovery across eligible artists. Artists are processed
// sequentially in ascending id order so per-source rate limits hold globally
// and repeated runs are reproducible.
type Coordinator struct {
	store   *library.Store
	sources []source.Source
	cfg     Config
	bus     *events.Bus
	log     *slog.Logger
}

// NewCoordinator creates a discovery coordinator. The bus is optional.
func NewCoordinator(store *library.Store, sources []source.Source, cfg Config, bus *events.Bus, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		store:   store,
		sources: sources,
		cfg:     cfg,
		bus:     bus,
		log:     log,
	}
}

// Run performs one discovery pass over all eligible artists. Per-artist and
// per-source failures are contained; the returned error covers only the
// eligibility query itself.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	now := time.Now()
	artists, err := c.store.EligibleArtists(now, c.cfg.DefaultInterval)
	if err != nil {
		return nil, fmt.Errorf("eligible artists: %w", err)
	}
	return c.run(ctx, artists), nil
}

// RunArtist performs discovery for a single artist regardless of its
// last-discovery timestamp. Used by the manual trigger path.
func (c *Coordinator) RunArtist(ctx context.Context, artistID int64) (*Summary, error) {
	artist, err := c.store.Artist(artistID)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, []*library.Artist{artist}), nil
}

func (c *Coordinator) run(ctx context.Context, artists []*library.Artist) *Summary {
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := c.log.With("run_id", summary.RunID)
	log.Info("discovery started", "eligible_artists", len(artists))

	// Gate state (delay timers, breaker counters) is scoped to this run.
	gate := source.NewGate(c.cfg.SourceDelays, c.cfg.DefaultDelay, c.cfg.BreakAfter, log)

	for _, artist := range artists {
		if ctx.Err() != nil {
			break
		}
		summary.Artists++
		if err := c.runArtist(ctx, gate, artist, summary, log); err != nil {
			summary.Failed++
			log.Error("artist discovery failed", "artist_id", artist.ID, "artist", artist.Name, "error", err)
		}
	}

	summary.SourcesSkipped = gate.Skipped()
	summary.FinishedAt = time.Now()
	log.Info("discovery finished",
		"artists", summary.Artists,
		"failed", summary.Failed,
		"discovered", summary.Discovered,
		"merged", summary.Merged,
		"duplicates", summary.Duplicates,
		"sources_skipped", summary.SourcesSkipped,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	c.publishRun(ctx, summary)
	return summary
}

// runArtist queries every source for one artist, plans the merge, and
// applies it in a single pass. An error here affects only this artist.
func (c *Coordinator) runArtist(ctx context.Context, gate *source.Gate, artist *library.Artist, summary *Summary, log *slog.Logger) error {
	var candidates []source.Candidate
	succeeded := 0

	for _, src := range c.sources {
		if gate.Tripped(src.Name()) {
			continue
		}
		results, err := gate.Search(ctx, src, artist.Name, artist.LastDiscoveryAt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One source failing must not block the others.
			log.Warn("source search failed",
				"source", src.Name(), "artist", artist.Name, "error", err)
			continue
		}
		succeeded++
		candidates = append(candidates, results...)
	}

	if succeeded == 0 {
		// Nothing answered; leave last_discovery_at untouched so the
		// artist stays eligible next tick.
		return fmt.Errorf("all sources failed for artist %d", artist.ID)
	}

	existing, err := c.store.VideosByArtist(artist.ID)
	if err != nil {
		return err
	}

	plan := dedup.BuildPlan(candidates, existing, c.cfg.Priority)
	if len(plan.NewVideos) > c.cfg.MaxNewPerArtist {
		// Backfill continues on later runs. Plan order is source priority
		// then external id, so the kept slice is deterministic.
		log.Info("capping new videos for artist",
			"artist_id", artist.ID, "planned", len(plan.NewVideos), "cap", c.cfg.MaxNewPerArtist)
		plan.NewVideos = plan.NewVideos[:c.cfg.MaxNewPerArtist]
	}

	ids, err := c.store.AddVideos(artist.ID, plan.NewVideos)
	if err != nil {
		return err
	}
	for _, merge := range plan.IDMerges {
		if err := c.store.MergeExternalID(merge.VideoID, merge.Source, merge.ExternalID); err != nil {
			return err
		}
	}
	if err := c.store.TouchDiscovery(artist.ID, time.Now()); err != nil {
		return err
	}

	summary.Discovered += len(plan.NewVideos)
	summary.Merged += len(plan.IDMerges)
	summary.Duplicates += plan.Duplicates

	for i, nv := range plan.NewVideos {
		log.Info("video discovered",
			"artist", artist.Name, "title", nv.Title, "sources", len(nv.ExternalIDs))
		c.publishDiscovered(ctx, ids[i], artist.ID, nv)
	}
	return nil
}

func (c *Coordinator) publishDiscovered(ctx context.Context, videoID, artistID int64, nv *library.NewVideo) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, events.VideoDiscovered{
		BaseEvent: events.NewBaseEvent(events.EventVideoDiscovered, events.EntityVideo, videoID),
		ArtistID:  artistID,
		Title:     nv.Title,
		Sources:   len(nv.ExternalIDs),
	})
}

func (c *Coordinator) publishRun(ctx context.Context, s *Summary) {
	if c.bus == nil {
		return
	}
	for _, name := range s.SourcesSkipped {
		_ = c.bus.Publish(ctx, events.SourceSkipped{
			BaseEvent: events.NewBaseEvent(events.EventSourceSkipped, events.EntityRun, 0),
			RunID:     s.RunID,
			Source:    name,
		})
	}
	_ = c.bus.Publish(ctx, events.DiscoveryCompleted{
		BaseEvent:  events.NewBaseEvent(events.EventDiscoveryCompleted, events.EntityRun, 0),
		RunID:      s.RunID,
		Artists:    s.Artists,
		Failed:     s.Failed,
		Discovered: s.Discovered,
		Merged:     s.Merged,
		Duplicates: s.Duplicates,
	})
}
