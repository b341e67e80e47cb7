package queue

import (
	"context"

	"github.com/vmunix/mvarr/internal/library"
)

// Fetcher performs the actual media download for one video.
// Implementations wrap failures in ErrRetryable or ErrTerminal.
type Fetcher interface {
	// Fetch downloads the video and returns the final file location.
	Fetch(ctx context.Context, artist *library.Artist, video *library.Video) (string, error)
}
