package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Gate enforces a minimum inter-call delay per source and trips a circuit
// breaker after repeated failures. A Gate is scoped to one discovery run:
// artists are processed sequentially within a run, so no locking is needed,
// and a tripped source comes back automatically on the next run.
type Gate struct {
	intervals  map[string]time.Duration
	defaultGap time.Duration
	breakAfter int

	lastCall map[string]time.Time
	failures map[string]int
	tripped  map[string]bool

	log *slog.Logger
}

// NewGate creates a gate for one discovery run. intervals holds per-source
// minimum delays; sources not listed use defaultGap. breakAfter is the
// number of consecutive unavailable/rate-limited results that disables a
// source for the rest of the run.
func NewGate(intervals map[string]time.Duration, defaultGap time.Duration, breakAfter int, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		intervals:  intervals,
		defaultGap: defaultGap,
		breakAfter: breakAfter,
		lastCall:   make(map[string]time.Time),
		failures:   make(map[string]int),
		tripped:    make(map[string]bool),
		log:        log,
	}
}

// Search performs a gated, bounded adapter call.
func (g *Gate) Search(ctx context.Context, src Source, artistName string, since *time.Time) ([]Candidate, error) {
	name := src.Name()
	if g.tripped[name] {
		return nil, fmt.Errorf("search %s: %w", name, ErrTripped)
	}

	if err := g.wait(ctx, name); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	g.lastCall[name] = time.Now()
	candidates, err := src.Search(callCtx, artistName, since)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("search %s: %w", name, ErrTimeout)
		}
		g.recordFailure(name, err)
		return nil, err
	}

	g.failures[name] = 0
	return candidates, nil
}

// Tripped reports whether the breaker has disabled a source this run.
func (g *Gate) Tripped(name string) bool {
	return g.tripped[name]
}

// Skipped returns the sorted names of sources disabled this run.
func (g *Gate) Skipped() []string {
	var names []string
	for name := range g.tripped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wait blocks until the source's minimum inter-call delay has elapsed.
func (g *Gate) wait(ctx context.Context, name string) error {
	gap := g.defaultGap
	if d, ok := g.intervals[name]; ok {
		gap = d
	}
	last, ok := g.lastCall[name]
	if !ok {
		return nil
	}
	remaining := gap - time.Since(last)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) recordFailure(name string, err error) {
	if !Transient(err) {
		return
	}
	g.failures[name]++
	if g.failures[name] >= g.breakAfter && !g.tripped[name] {
		g.tripped[name] = true
		g.log.Warn("source disabled for this run",
			"source", name,
			"consecutive_failures", g.failures[name],
			"error", err)
	}
}
