package library

import (
	"database/sql"
	"fmt"
	"time"
)

// Store persists artists and videos.
type Store struct {
	db       *sql.DB
	handlers []TransitionHandler
}

// NewStore creates a library store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// OnTransition registers a handler to be called on video status transitions.
func (s *Store) OnTransition(h TransitionHandler) {
	s.handlers = append(s.handlers, h)
}

// EligibleArtists returns monitored artists whose last discovery is either
// unset or older than their discovery interval, in ascending id order.
// Per-artist interval overrides fall back to defaultInterval.
func (s *Store) EligibleArtists(now time.Time, defaultInterval time.Duration) ([]*Artist, error) {
	rows, err := s.db.Query(`
		SELECT id, name, monitored, discovery_interval, last_discovery_at, created_at
		FROM artists WHERE monitored = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitored artists: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var eligible []*Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		interval := defaultInterval
		if a.DiscoveryInterval != nil {
			interval = *a.DiscoveryInterval
		}
		if a.LastDiscoveryAt == nil || now.Sub(*a.LastDiscoveryAt) >= interval {
			eligible = append(eligible, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artists: %w", err)
	}
	return eligible, nil
}

// Artist retrieves one artist by id.
// Returns ErrNotFound if the artist does not exist.
func (s *Store) Artist(id int64) (*Artist, error) {
	row := s.db.QueryRow(`
		SELECT id, name, monitored, discovery_interval, last_discovery_at, created_at
		FROM artists WHERE id = ?`, id)
	a, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get artist %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get artist %d: %w", id, err)
	}
	return a, nil
}

// AddArtist inserts an artist and returns its id.
func (s *Store) AddArtist(a *Artist) error {
	var intervalSecs *int64
	if a.DiscoveryInterval != nil {
		secs := int64(a.DiscoveryInterval.Seconds())
		intervalSecs = &secs
	}
	result, err := s.db.Exec(`
		INSERT INTO artists (name, monitored, discovery_interval, last_discovery_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.Monitored, intervalSecs, a.LastDiscoveryAt, time.Now())
	if err != nil {
		return fmt.Errorf("insert artist: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// TouchDiscovery stamps an artist's last_discovery_at.
func (s *Store) TouchDiscovery(artistID int64, now time.Time) error {
	result, err := s.db.Exec(
		`UPDATE artists SET last_discovery_at = ? WHERE id = ?`, now, artistID)
	if err != nil {
		return fmt.Errorf("touch artist %d: %w", artistID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("touch artist %d: %w", artistID, ErrNotFound)
	}
	return nil
}

// VideosByArtist returns all videos for an artist with external id sets loaded.
func (s *Store) VideosByArtist(artistID int64) ([]*Video, error) {
	rows, err := s.db.Query(`
		SELECT id, artist_id, title, duration, published_at, status, file_path,
		       retry_count, last_error, created_at, updated_at
		FROM videos WHERE artist_id = ? ORDER BY id`, artistID)
	if err != nil {
		return nil, fmt.Errorf("list videos for artist %d: %w", artistID, err)
	}
	defer func() { _ = rows.Close() }()

	var videos []*Video
	byID := make(map[int64]*Video)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
		byID[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	idRows, err := s.db.Query(`
		SELECT i.video_id, i.source, i.external_id
		FROM video_ids i JOIN videos v ON v.id = i.video_id
		WHERE v.artist_id = ?`, artistID)
	if err != nil {
		return nil, fmt.Errorf("list video ids for artist %d: %w", artistID, err)
	}
	defer func() { _ = idRows.Close() }()

	for idRows.Next() {
		var videoID int64
		var source, externalID string
		if err := idRows.Scan(&videoID, &source, &externalID); err != nil {
			return nil, fmt.Errorf("scan video id: %w", err)
		}
		if v, ok := byID[videoID]; ok {
			v.ExternalIDs[source] = externalID
		}
	}
	if err := idRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video ids: %w", err)
	}
	return videos, nil
}

// Video retrieves one video by id, including its external id set.
// Returns ErrNotFound if the video does not exist.
func (s *Store) Video(id int64) (*Video, error) {
	row := s.db.QueryRow(`
		SELECT id, artist_id, title, duration, published_at, status, file_path,
		       retry_count, last_error, created_at, updated_at
		FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get video %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %d: %w", id, err)
	}

	idRows, err := s.db.Query(`
		SELECT source, external_id FROM video_ids WHERE video_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get video %d ids: %w", id, err)
	}
	defer func() { _ = idRows.Close() }()

	for idRows.Next() {
		var source, externalID string
		if err := idRows.Scan(&source, &externalID); err != nil {
			return nil, fmt.Errorf("scan video id: %w", err)
		}
		v.ExternalIDs[source] = externalID
	}
	if err := idRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video ids: %w", err)
	}
	return v, nil
}

// AddVideos persists new videos for one artist in a single transaction and
// returns their ids in input order. Either all videos and their external ids
// land, or none do, so a failure affects at most one artist's discovery run.
func (s *Store) AddVideos(artistID int64, videos []*NewVideo) ([]int64, error) {
	if len(videos) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	ids := make([]int64, 0, len(videos))
	for _, nv := range videos {
		result, err := tx.Exec(`
			INSERT INTO videos (artist_id, title, duration, published_at, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			artistID, nv.Title, int64(nv.Duration.Seconds()), nv.PublishedAt, StatusWanted, now, now)
		if err != nil {
			return nil, fmt.Errorf("insert video %q: %w", nv.Title, err)
		}
		videoID, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get last insert id: %w", err)
		}
		for source, externalID := range nv.ExternalIDs {
			if _, err := tx.Exec(`
				INSERT INTO video_ids (video_id, source, external_id) VALUES (?, ?, ?)
				ON CONFLICT (source, external_id) DO NOTHING`,
				videoID, source, externalID); err != nil {
				return nil, fmt.Errorf("insert video id %s/%s: %w", source, externalID, err)
			}
		}
		ids = append(ids, videoID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit videos: %w", err)
	}
	return ids, nil
}

// MergeExternalID attaches a source's external id to an existing video.
// Idempotent: an id already known to any video is left where it is.
func (s *Store) MergeExternalID(videoID int64, source, externalID string) error {
	_, err := s.db.Exec(`
		INSERT INTO video_ids (video_id, source, external_id) VALUES (?, ?, ?)
		ON CONFLICT (source, external_id) DO NOTHING`,
		videoID, source, externalID)
	if err != nil {
		return fmt.Errorf("merge external id %s/%s: %w", source, externalID, err)
	}
	return nil
}

// ClaimWanted atomically claims up to limit wanted videos, oldest-created
// first, transitioning each to downloading. The claim is a conditional
// update, so two overlapping sweeps can never both claim the same video.
func (s *Store) ClaimWanted(limit int) ([]*Video, error) {
	rows, err := s.db.Query(`
		SELECT id FROM videos WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		StatusWanted, limit)
	if err != nil {
		return nil, fmt.Errorf("list wanted videos: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan video id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wanted videos: %w", err)
	}
	_ = rows.Close()

	var claimed []*Video
	for _, id := range ids {
		result, err := s.db.Exec(`
			UPDATE videos SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			StatusDownloading, time.Now(), id, StatusWanted)
		if err != nil {
			return claimed, fmt.Errorf("claim video %d: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return claimed, fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			// Another sweep claimed it between the select and the update.
			continue
		}
		v, err := s.Video(id)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, v)
		s.emit(v, StatusWanted, StatusDownloading)
	}
	return claimed, nil
}

// MarkDownloaded transitions a downloading video to downloaded, recording
// the final file path.
func (s *Store) MarkDownloaded(v *Video, filePath string) error {
	return s.transition(v, StatusDownloaded, `file_path = ?, last_error = ''`, filePath)
}

// ReleaseForRetry returns a downloading video to wanted after a retryable
// failure, incrementing its retry count. The video becomes eligible again at
// the next scheduled sweep; there is no in-process backoff.
func (s *Store) ReleaseForRetry(v *Video, cause string) error {
	if err := s.transition(v, StatusWanted, `retry_count = retry_count + 1, last_error = ?`, cause); err != nil {
		return err
	}
	v.RetryCount++
	return nil
}

// MarkFailed transitions a video to failed. Failed videos are excluded from
// claims until an external actor resets them to wanted.
func (s *Store) MarkFailed(v *Video, cause string) error {
	return s.transition(v, StatusFailed, `last_error = ?`, cause)
}

// CountByStatus returns the number of videos in the given status.
func (s *Store) CountByStatus(status Status) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM videos WHERE status = ?`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// transition performs a validated, conditional status update. The WHERE
// clause pins the current status so a concurrent transition loses cleanly
// with ErrClaimLost instead of overwriting it.
func (s *Store) transition(v *Video, to Status, extraSet string, extraArgs ...any) error {
	if !v.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, to)
	}

	from := v.Status
	now := time.Now()
	args := []any{to, now}
	query := `UPDATE videos SET status = ?, updated_at = ?`
	if extraSet != "" {
		query += ", " + extraSet
		args = append(args, extraArgs...)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, v.ID, from)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("transition video %d: %w", v.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transition video %d %s -> %s: %w", v.ID, from, to, ErrClaimLost)
	}

	v.Status = to
	v.UpdatedAt = now
	s.emit(v, from, to)
	return nil
}

func (s *Store) emit(v *Video, from, to Status) {
	event := TransitionEvent{
		VideoID:  v.ID,
		ArtistID: v.ArtistID,
		From:     from,
		To:       to,
		At:       v.UpdatedAt,
	}
	for _, h := range s.handlers {
		h(event)
	}
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanArtist(row scanner) (*Artist, error) {
	a := &Artist{}
	var intervalSecs *int64
	if err := row.Scan(&a.ID, &a.Name, &a.Monitored, &intervalSecs, &a.LastDiscoveryAt, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan artist: %w", err)
	}
	if intervalSecs != nil {
		d := time.Duration(*intervalSecs) * time.Second
		a.DiscoveryInterval = &d
	}
	return a, nil
}

func scanVideo(row scanner) (*Video, error) {
	v := &Video{ExternalIDs: make(map[string]string)}
	var durationSecs int64
	if err := row.Scan(&v.ID, &v.ArtistID, &v.Title, &durationSecs, &v.PublishedAt, &v.Status,
		&v.FilePath, &v.RetryCount, &v.LastError, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	v.Duration = time.Duration(durationSecs) * time.Second
	return v, nil
}
