package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

// musicCategoryID is YouTube's category for music content.
const musicCategoryID = "10"

// YouTube searches the YouTube Data API v3 for an artist's music videos.
type YouTube struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// YouTubeOption configures a YouTube source.
type YouTubeOption func(*YouTube)

// WithYouTubeBaseURL sets a custom base URL (for testing).
func WithYouTubeBaseURL(url string) YouTubeOption {
	return func(y *YouTube) {
		y.baseURL = url
	}
}

// WithYouTubeHTTPClient sets a custom HTTP client.
func WithYouTubeHTTPClient(hc *http.Client) YouTubeOption {
	return func(y *YouTube) {
		y.httpClient = hc
	}
}

// NewYouTube creates a YouTube source adapter.
func NewYouTube(apiKey string, opts ...YouTubeOption) *YouTube {
	y := &YouTube{
		apiKey:     apiKey,
		baseURL:    youtubeBaseURL,
		maxResults: 50,
		httpClient: &http.Client{
			Timeout: SearchTimeout,
		},
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name returns "youtube".
func (y *YouTube) Name() string { return "youtube" }

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string    `json:"title"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"` // ISO 8601, e.g. "PT4M13S"
		} `json:"contentDetails"`
	} `json:"items"`
}

// Search queries the search endpoint restricted to the music category, then
// resolves durations through the videos endpoint.
func (y *YouTube) Search(ctx context.Context, artistName string, since *time.Time) ([]Candidate, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("videoCategoryId", musicCategoryID)
	q.Set("q", artistName)
	q.Set("maxResults", strconv.Itoa(y.maxResults))
	q.Set("key", y.apiKey)
	if since != nil {
		q.Set("publishedAfter", since.UTC().Format(time.RFC3339))
	}

	var search ytSearchResponse
	if err := y.get(ctx, "/search", q, &search); err != nil {
		return nil, err
	}
	if len(search.Items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	durations, err := y.durations(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID == "" {
			continue
		}
		published := item.Snippet.PublishedAt
		candidates = append(candidates, Candidate{
			Source:      y.Name(),
			ExternalID:  item.ID.VideoID,
			Title:       item.Snippet.Title,
			Duration:    durations[item.ID.VideoID],
			PublishedAt: &published,
		})
	}
	return candidates, nil
}

// durations resolves video lengths for a batch of ids.
func (y *YouTube) durations(ctx context.Context, ids []string) (map[string]time.Duration, error) {
	q := url.Values{}
	q.Set("part", "contentDetails")
	q.Set("id", strings.Join(ids, ","))
	q.Set("key", y.apiKey)

	var videos ytVideosResponse
	if err := y.get(ctx, "/videos", q, &videos); err != nil {
		return nil, err
	}

	result := make(map[string]time.Duration, len(videos.Items))
	for _, item := range videos.Items {
		result[item.ID] = parseISO8601Duration(item.ContentDetails.Duration)
	}
	return result, nil
}

func (y *YouTube) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("youtube %s: %w", path, ErrTimeout)
		}
		return fmt.Errorf("youtube %s: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("youtube %s: %w", path, ErrRateLimited)
	case resp.StatusCode == http.StatusForbidden:
		// The Data API signals quota exhaustion with 403.
		return fmt.Errorf("youtube %s: quota: %w", path, ErrRateLimited)
	default:
		return fmt.Errorf("youtube %s: status %s: %w", path, resp.Status, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode youtube response: %w", err)
	}
	return nil
}

var iso8601DurationRegex = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISO8601Duration parses the subset of ISO 8601 durations the Data API
// emits (PT#H#M#S). Unparseable input yields zero.
func parseISO8601Duration(s string) time.Duration {
	m := iso8601DurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var d time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		d += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		min, _ := strconv.Atoi(m[2])
		d += time.Duration(min) * time.Minute
	}
	if m[3] != "" {
		sec, _ := strconv.Atoi(m[3])
		d += time.Duration(sec) * time.Second
	}
	return d
}
