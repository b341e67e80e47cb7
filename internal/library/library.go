// Package library provides durable storage for tracked artists and their
// music videos, including the video download state machine.
package library

import (
	"time"
)

// Artist is a tracked artist. The engine only reads artists and stamps
// last_discovery_at; monitoring flags are managed externally.
type Artist struct {
	ID                int64
	Name              string
	Monitored         bool
	DiscoveryInterval *time.Duration // per-artist override, nil = global default
	LastDiscoveryAt   *time.Time
	CreatedAt         time.Time
}

// Video is one real-world music video for an artist. Exactly one Video row
// exists per track; external ids from multiple sources attach to the same row.
type Video struct {
	ID          int64
	ArtistID    int64
	Title       string
	Duration    time.Duration
	PublishedAt *time.Time
	Status      Status
	FilePath    string
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// ExternalIDs maps source name to that source's id for this video.
	ExternalIDs map[string]string
}

// NewVideo describes a video to be created, produced by the dedup planner.
type NewVideo struct {
	Title       string
	Duration    time.Duration
	PublishedAt *time.Time
	ExternalIDs map[string]string
}

// TransitionEvent describes a completed status transition.
type TransitionEvent struct {
	VideoID  int64
	ArtistID int64
	From     Status
	To       Status
	At       time.Time
}

// TransitionHandler is called after a successful status transition.
type TransitionHandler func(TransitionEvent)
