package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const imvdbBaseURL = "https://imvdb.com/api/v1"

// IMVDb searches the IMVDb (Internet Music Video Database) API.
type IMVDb struct {
	appKey     string
	baseURL    string
	httpClient *http.Client
}

// IMVDbOption configures an IMVDb source.
type IMVDbOption func(*IMVDb)

// WithIMVDbBaseURL sets a custom base URL (for testing).
func WithIMVDbBaseURL(url string) IMVDbOption {
	return func(i *IMVDb) {
		i.baseURL = url
	}
}

// WithIMVDbHTTPClient sets a custom HTTP client.
func WithIMVDbHTTPClient(hc *http.Client) IMVDbOption {
	return func(i *IMVDb) {
		i.httpClient = hc
	}
}

// NewIMVDb creates an IMVDb source adapter.
func NewIMVDb(appKey string, opts ...IMVDbOption) *IMVDb {
	i := &IMVDb{
		appKey:  appKey,
		baseURL: imvdbBaseURL,
		httpClient: &http.Client{
			Timeout: SearchTimeout,
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name returns "imvdb".
func (i *IMVDb) Name() string { return "imvdb" }

type imvdbSearchResponse struct {
	Results []struct {
		ID        int64  `json:"id"`
		SongTitle string `json:"song_title"`
		Year      int    `json:"year"`
		Artists   []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"results"`
}

// Search queries the video search endpoint. IMVDb carries no duration and
// only a release year; since filtering happens client-side on the year.
func (i *IMVDb) Search(ctx context.Context, artistName string, since *time.Time) ([]Candidate, error) {
	q := url.Values{}
	q.Set("q", artistName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		i.baseURL+"/search/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("IMVDB-APP-KEY", i.appKey)
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("imvdb search: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("imvdb search: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("imvdb search: %w", ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("imvdb search: auth rejected: %w", ErrUnavailable)
	default:
		return nil, fmt.Errorf("imvdb search: status %s: %w", resp.Status, ErrUnavailable)
	}

	var search imvdbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, fmt.Errorf("decode imvdb response: %w", err)
	}

	var candidates []Candidate
	for _, r := range search.Results {
		if since != nil && r.Year > 0 && r.Year < since.Year() {
			continue
		}
		var published *time.Time
		if r.Year > 0 {
			t := time.Date(r.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
			published = &t
		}
		title := r.SongTitle
		// IMVDb titles are bare song names; prefix the primary artist so
		// title matching sees the same shape other sources produce.
		if len(r.Artists) > 0 {
			title = r.Artists[0].Name + " - " + r.SongTitle
		}
		candidates = append(candidates, Candidate{
			Source:      i.Name(),
			ExternalID:  strconv.FormatInt(r.ID, 10),
			Title:       title,
			PublishedAt: published,
		})
	}
	return candidates, nil
}
