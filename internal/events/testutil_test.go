package events

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/vmunix/mvarr/internal/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// testEvent is a minimal event for bus and log tests.
type testEvent struct {
	BaseEvent
	Message string `json:"message"`
}
