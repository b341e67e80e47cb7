// internal/library/testutil_test.go
package library

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vmunix/mvarr/internal/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every connection to :memory: is a distinct database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// ptr is a helper to create pointer to value
func ptr[T any](v T) *T {
	return &v
}

func addTestArtist(t *testing.T, store *Store, name string) *Artist {
	t.Helper()
	a := &Artist{Name: name, Monitored: true}
	if err := store.AddArtist(a); err != nil {
		t.Fatalf("AddArtist: %v", err)
	}
	return a
}

func addTestVideo(t *testing.T, store *Store, artistID int64, title string, ids map[string]string) int64 {
	t.Helper()
	added, err := store.AddVideos(artistID, []*NewVideo{{
		Title:       title,
		Duration:    4 * time.Minute,
		ExternalIDs: ids,
	}})
	if err != nil {
		t.Fatalf("AddVideos: %v", err)
	}
	if len(added) != 1 {
		t.Fatalf("AddVideos returned %d ids, want 1", len(added))
	}
	return added[0]
}
