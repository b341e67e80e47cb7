package events

// Entity types
const (
	EntityVideo = "video"
	EntityRun   = "run"
)

// Event type constants
const (
	EventVideoDiscovered    = "video.discovered"
	EventVideoTransition    = "video.transition"
	EventDiscoveryCompleted = "discovery.completed"
	EventSweepCompleted     = "sweep.completed"
	EventSourceSkipped      = "source.skipped"
)

// VideoDiscovered is emitted when discovery persists a new wanted video.
type VideoDiscovered struct {
	BaseEvent
	ArtistID int64  `json:"artist_id"`
	Title    string `json:"title"`
	Sources  int    `json:"sources"` // external ids attached at creation
}

// VideoTransition is emitted on every video status change.
type VideoTransition struct {
	BaseEvent
	ArtistID int64  `json:"artist_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// DiscoveryCompleted is emitted at the end of a discovery run.
type DiscoveryCompleted struct {
	BaseEvent
	RunID      string `json:"run_id"`
	Artists    int    `json:"artists"`
	Failed     int    `json:"failed"`
	Discovered int    `json:"discovered"`
	Merged     int    `json:"merged"`
	Duplicates int    `json:"duplicates"`
}

// SweepCompleted is emitted at the end of a download sweep.
type SweepCompleted struct {
	BaseEvent
	RunID      string `json:"run_id"`
	Claimed    int    `json:"claimed"`
	Downloaded int    `json:"downloaded"`
	Requeued   int    `json:"requeued"`
	Failed     int    `json:"failed"`
}

// SourceSkipped is emitted when the circuit breaker disables a source for
// the remainder of a discovery run.
type SourceSkipped struct {
	BaseEvent
	RunID  string `json:"run_id"`
	Source string `json:"source"`
}
