package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vmunix/mvarr/internal/library"
	"github.com/vmunix/mvarr/internal/migrations"
)

func setupStore(t *testing.T) *library.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(migrations.InitialSQL)
	require.NoError(t, err)
	return library.NewStore(db)
}

func seedVideos(t *testing.T, store *library.Store, n int) (*library.Artist, []int64) {
	t.Helper()
	artist := &library.Artist{Name: "Daft Punk", Monitored: true}
	require.NoError(t, store.AddArtist(artist))

	videos := make([]*library.NewVideo, 0, n)
	for i := 0; i < n; i++ {
		videos = append(videos, &library.NewVideo{
			Title:       fmt.Sprintf("Video %d", i),
			Duration:    4 * time.Minute,
			ExternalIDs: map[string]string{"youtube": fmt.Sprintf("yt-%d", i)},
		})
	}
	ids, err := store.AddVideos(artist.ID, videos)
	require.NoError(t, err)
	return artist, ids
}

// stubFetcher scripts per-video outcomes. A nil error means success.
type stubFetcher struct {
	mu     sync.Mutex
	errs   map[int64]error
	calls  map[int64]int
	fetchF func(video *library.Video) (string, error)
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{errs: make(map[int64]error), calls: make(map[int64]int)}
}

func (f *stubFetcher) Fetch(ctx context.Context, artist *library.Artist, video *library.Video) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[video.ID]++
	if f.fetchF != nil {
		return f.fetchF(video)
	}
	if err, ok := f.errs[video.ID]; ok && err != nil {
		return "", err
	}
	return "/music/" + artist.Name + "/" + video.Title + ".mp4", nil
}

func (f *stubFetcher) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestManager(store *library.Store, fetcher Fetcher, maxRetries int) *Manager {
	return NewManager(store, fetcher, Config{
		Workers:     2,
		MaxPerSweep: 10,
		MaxRetries:  maxRetries,
	}, nil, nil)
}

func TestManager_Sweep_Downloads(t *testing.T) {
	store := setupStore(t)
	_, ids := seedVideos(t, store, 3)

	m := newTestManager(store, newStubFetcher(), 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Claimed)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Zero(t, summary.Requeued)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.RunID)

	for _, id := range ids {
		v, err := store.Video(id)
		require.NoError(t, err)
		assert.Equal(t, library.StatusDownloaded, v.Status)
		assert.True(t, strings.HasSuffix(v.FilePath, ".mp4"))
	}
}

func TestManager_Sweep_FetcherSeesExternalIDs(t *testing.T) {
	store := setupStore(t)
	_, ids := seedVideos(t, store, 1)

	f := newStubFetcher()
	var mu sync.Mutex
	seen := make(map[int64]map[string]string)
	f.fetchF = func(video *library.Video) (string, error) {
		mu.Lock()
		seen[video.ID] = video.ExternalIDs
		mu.Unlock()
		return "/music/file.mp4", nil
	}

	m := newTestManager(store, f, 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	_, err := m.Sweep(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, seen, ids[0])
	assert.Equal(t, "yt-0", seen[ids[0]]["youtube"])
}

func TestManager_Sweep_Empty(t *testing.T) {
	store := setupStore(t)
	m := newTestManager(store, newStubFetcher(), 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
}

func TestManager_Sweep_RespectsMaxPerSweep(t *testing.T) {
	store := setupStore(t)
	seedVideos(t, store, 5)

	m := NewManager(store, newStubFetcher(), Config{
		Workers:     2,
		MaxPerSweep: 2,
		MaxRetries:  3,
	}, nil, nil)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Claimed)

	wanted, err := store.CountByStatus(library.StatusWanted)
	require.NoError(t, err)
	assert.Equal(t, 3, wanted)
}

func TestManager_Sweep_RetryableRequeues(t *testing.T) {
	store := setupStore(t)
	_, ids := seedVideos(t, store, 1)

	fetcher := newStubFetcher()
	fetcher.errs[ids[0]] = fmt.Errorf("connection reset: %w", ErrRetryable)

	m := newTestManager(store, fetcher, 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Requeued)

	v, err := store.Video(ids[0])
	require.NoError(t, err)
	assert.Equal(t, library.StatusWanted, v.Status)
	assert.Equal(t, 1, v.RetryCount)
	assert.Contains(t, v.LastError, "connection reset")
}

func TestManager_Sweep_TerminalFails(t *testing.T) {
	store := setupStore(t)
	_, ids := seedVideos(t, store, 1)

	fetcher := newStubFetcher()
	fetcher.errs[ids[0]] = fmt.Errorf("video unavailable: %w", ErrTerminal)

	m := newTestManager(store, fetcher, 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	v, err := store.Video(ids[0])
	require.NoError(t, err)
	assert.Equal(t, library.StatusFailed, v.Status)
	assert.Equal(t, 0, v.RetryCount, "terminal failures do not consume retries")
}

func TestManager_Sweep_RetriesExhaust(t *testing.T) {
	const maxRetries = 2
	store := setupStore(t)
	_, ids := seedVideos(t, store, 1)

	fetcher := newStubFetcher()
	fetcher.errs[ids[0]] = fmt.Errorf("flaky network: %w", ErrRetryable)

	m := newTestManager(store, fetcher, maxRetries)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	// Attempts 1 and 2 requeue, attempt 3 exhausts the budget.
	for i := 0; i < maxRetries; i++ {
		summary, err := m.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Requeued, "attempt %d", i+1)
	}
	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	v, err := store.Video(ids[0])
	require.NoError(t, err)
	assert.Equal(t, library.StatusFailed, v.Status)
	assert.Equal(t, maxRetries, v.RetryCount)
	assert.Equal(t, maxRetries+1, fetcher.callCount(ids[0]))

	// Exhausted videos stay failed across later sweeps.
	summary, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
}

func TestManager_Sweep_UnclassifiedErrorRetries(t *testing.T) {
	store := setupStore(t)
	_, ids := seedVideos(t, store, 1)

	fetcher := newStubFetcher()
	fetcher.errs[ids[0]] = fmt.Errorf("something odd happened")

	m := newTestManager(store, fetcher, 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Requeued)
}

func TestManager_Sweep_MixedOutcomes(t *testing.T) {
	store := setupStore(t)
	_, ids := seedVideos(t, store, 3)

	fetcher := newStubFetcher()
	fetcher.errs[ids[1]] = fmt.Errorf("timeout: %w", ErrRetryable)
	fetcher.errs[ids[2]] = fmt.Errorf("private video: %w", ErrTerminal)

	m := newTestManager(store, fetcher, 3)
	ctx := context.Background()
	m.Start(ctx)
	defer m.Stop()

	summary, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Claimed)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, summary.Failed)
}

func TestManager_QueueDepth(t *testing.T) {
	store := setupStore(t)
	seedVideos(t, store, 4)

	m := newTestManager(store, newStubFetcher(), 3)

	depth, err := m.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 4, depth)

	claimed, err := store.ClaimWanted(2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// Claimed videos still count until they resolve.
	depth, err = m.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 4, depth)

	require.NoError(t, store.MarkDownloaded(claimed[0], "/x.mp4"))
	depth, err = m.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrRetryable))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", ErrRetryable)))
	assert.True(t, Retryable(fmt.Errorf("unclassified")))
	assert.False(t, Retryable(ErrTerminal))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", ErrTerminal)))
}
