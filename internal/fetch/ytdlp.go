// Package fetch downloads media files via yt-dlp.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/vmunix/mvarr/internal/library"
	"github.com/vmunix/mvarr/internal/queue"
)

// watchURL builds a playable URL for a video's external id on one source.
// Only sources that host media are listed; metadata-only sources (imvdb)
// identify a video but cannot serve its file.
var watchURL = map[string]func(id string) string{
	"youtube": func(id string) string { return "https://www.youtube.com/watch?v=" + id },
}

// terminalMarkers are yt-dlp error fragments meaning the media is gone for
// good; retrying cannot help.
var terminalMarkers = []string{
	"video unavailable",
	"private video",
	"has been removed",
	"account associated with this video has been terminated",
	"no longer available",
	"copyright",
}

// YTDLP fetches videos with yt-dlp into a per-artist directory layout.
type YTDLP struct {
	root string
	log  *slog.Logger
}

// NewYTDLP creates a fetcher writing under root.
func NewYTDLP(root string, log *slog.Logger) *YTDLP {
	if log == nil {
		log = slog.Default()
	}
	return &YTDLP{root: root, log: log}
}

// Fetch downloads the video's media from the first fetchable source and
// returns the final file path. Classification: missing or removed media is
// terminal, everything else (network, throttling, extraction hiccups) is
// retryable.
func (f *YTDLP) Fetch(ctx context.Context, artist *library.Artist, video *library.Video) (string, error) {
	url := f.mediaURL(video)
	if url == "" {
		// Only metadata sources know this video so far; a later discovery
		// run may attach a hosted id.
		return "", fmt.Errorf("video %d has no fetchable source: %w", video.ID, queue.ErrRetryable)
	}

	outTmpl := filepath.Join(f.root, sanitizeDir(artist.Name), "%(title)s.%(ext)s")
	dl := ytdlp.New().
		RestrictFilenames().
		Output(outTmpl)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return "", classify(err)
	}

	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 || info[0].Filename == nil {
		return "", fmt.Errorf("no output file reported for video %d: %w", video.ID, queue.ErrRetryable)
	}
	return *info[0].Filename, nil
}

func (f *YTDLP) mediaURL(video *library.Video) string {
	for source, build := range watchURL {
		if id, ok := video.ExternalIDs[source]; ok {
			return build(id)
		}
	}
	return ""
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range terminalMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%v: %w", err, queue.ErrTerminal)
		}
	}
	return fmt.Errorf("%v: %w", err, queue.ErrRetryable)
}

// sanitizeDir strips path separators and characters that break common
// filesystems from an artist directory name.
func sanitizeDir(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", " -",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
