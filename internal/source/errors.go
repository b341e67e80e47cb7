package source

import "errors"

// Sentinel errors for the source package. Adapters map transport and API
// failures onto these so callers can classify without knowing the provider.
var (
	// ErrUnavailable indicates the provider could not be reached or
	// rejected authentication.
	ErrUnavailable = errors.New("source unavailable")

	// ErrRateLimited indicates the provider explicitly throttled the call.
	ErrRateLimited = errors.New("source rate limited")

	// ErrTimeout indicates the provider did not answer within SearchTimeout.
	ErrTimeout = errors.New("source timed out")

	// ErrTripped indicates the gate's circuit breaker has disabled this
	// source for the remainder of the current discovery run.
	ErrTripped = errors.New("source circuit tripped")
)

// Transient reports whether err is one of the per-source failures that a
// discovery run recovers from by skipping the source.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout)
}
