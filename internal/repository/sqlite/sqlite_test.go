package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sakif/codebuddy/internal/model"
)

// newTestDB returns a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedProblem inserts a problem row and fails the test if it errors.
func seedProblem(t *testing.T, db *DB, id string, order int) *model.Problem {
	t.Helper()
	p := &model.Problem{ID: id, Title: id, Category: "Array", Difficulty: model.DifficultyEasy, Order: order}
	if err := db.UpsertProblem(context.Background(), p); err != nil {
		t.Fatalf("failed to seed problem: %v", err)
	}
	return p
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebuddy.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() first open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	// Reopening runs every migration step again against the existing schema.
	db, err = New(path)
	if err != nil {
		t.Fatalf("New() second open: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
