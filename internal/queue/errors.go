// Package queue drives claimed videos through a bounded worker pool and
// applies the retry policy for download outcomes.
package queue

import "errors"

// Sentinel errors fetchers wrap their failures with so the manager can
// classify outcomes without knowing the downloader.
var (
	// ErrRetryable marks a transient failure; the video returns to wanted
	// and is retried at the next sweep.
	ErrRetryable = errors.New("download failed, will retry")

	// ErrTerminal marks a permanent failure (media removed, private,
	// region-blocked); the video is failed without further retries.
	ErrTerminal = errors.New("download failed permanently")
)

// Retryable reports whether err should send the video back to wanted.
// Unclassified errors are treated as retryable; only an explicit terminal
// classification stops retries.
func Retryable(err error) bool {
	return !errors.Is(err, ErrTerminal)
}
