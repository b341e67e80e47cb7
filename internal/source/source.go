// Package source defines the uniform contract over external video metadata
// providers and the rate-limit gate that wraps their calls.
package source

import (
	"context"
	"time"
)

// SearchTimeout bounds one adapter call. A hung provider fails the call with
// ErrTimeout instead of stalling the discovery run.
const SearchTimeout = 30 * time.Second

// Candidate is a raw video hit from one provider for one artist query.
// Candidates live only for the duration of a discovery run; the dedup
// planner decides what, if anything, is persisted.
type Candidate struct {
	Source      string
	ExternalID  string
	Title       string
	Duration    time.Duration
	PublishedAt *time.Time
	Score       float64 // provider-reported match confidence, 0 if unknown
}

// Source is a pluggable client for one external metadata provider.
type Source interface {
	// Name returns the provider's stable identifier, e.g. "youtube".
	Name() string

	// Search returns candidate videos for an artist. A non-nil since
	// restricts results to videos published after that time where the
	// provider supports it.
	Search(ctx context.Context, artistName string, since *time.Time) ([]Candidate, error)
}
