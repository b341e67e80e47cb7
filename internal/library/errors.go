package library

import "errors"

// Sentinel errors for the library package.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrClaimLost is returned when a conditional claim finds the video no
	// longer in the expected status (another sweep got there first).
	ErrClaimLost = errors.New("claim lost")
)
