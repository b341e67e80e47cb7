package library

// Status tracks a video's position in the download lifecycle.
type Status string

const (
	StatusWanted      Status = "wanted"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusFailed      Status = "failed"
	StatusIgnored     Status = "ignored"   // set externally, never by the engine
	StatusMonitored   Status = "monitored" // set externally, never by the engine
)

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
// The engine only drives wanted/downloading/downloaded/failed; ignored and
// monitored are reachable only through external actors.
var validTransitions = map[Status][]Status{
	StatusWanted:      {StatusDownloading, StatusFailed, StatusIgnored},
	StatusDownloading: {StatusDownloaded, StatusWanted, StatusFailed},
	StatusDownloaded:  {StatusIgnored},
	StatusFailed:      {StatusWanted}, // external reset re-enables retries
	StatusIgnored:     {StatusWanted},
	StatusMonitored:   {StatusWanted},
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses the engine never moves a video out of.
func (s Status) IsTerminal() bool {
	return s == StatusDownloaded || s == StatusFailed
}
