package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
)

func TestUpsertProblem_UpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProblem(t, db, "jump-game", 3)

	p.Title = "Jump Game"
	p.VideoID = "abc"
	if err := db.UpsertProblem(ctx, p); err != nil {
		t.Fatalf("UpsertProblem() error = %v", err)
	}

	found, err := db.GetProblem(ctx, "jump-game")
	if err != nil {
		t.Fatalf("GetProblem() error = %v", err)
	}
	if found.Title != "Jump Game" || found.VideoID != "abc" {
		t.Errorf("GetProblem() = %+v, want updated metadata", found)
	}
}

func TestListProblems_Ordered(t *testing.T) {
	db := newTestDB(t)
	seedProblem(t, db, "c", 3)
	seedProblem(t, db, "a", 1)
	seedProblem(t, db, "b", 2)

	problems, err := db.ListProblems(context.Background())
	if err != nil {
		t.Fatalf("ListProblems() error = %v", err)
	}
	if len(problems) != 3 {
		t.Fatalf("ListProblems() returned %d problems, want 3", len(problems))
	}
	for i, want := range []string{"a", "b", "c"} {
		if problems[i].ID != want {
			t.Errorf("problems[%d].ID = %q, want %q", i, problems[i].ID, want)
		}
	}
}

func TestListProblems_Empty(t *testing.T) {
	db := newTestDB(t)

	problems, err := db.ListProblems(context.Background())
	if err != nil {
		t.Fatalf("ListProblems() error = %v", err)
	}
	// An empty slice (not nil) encodes as [] in JSON.
	if problems == nil {
		t.Error("ListProblems() returned nil, want empty slice")
	}
}

func TestDeleteProblem(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProblem(t, db, "gone", 1)

	if err := db.DeleteProblem(ctx, "gone"); err != nil {
		t.Fatalf("DeleteProblem() error = %v", err)
	}
	if _, err := db.GetProblem(ctx, "gone"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetProblem() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteProblem(ctx, "gone"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteProblem() error = %v, want ErrNotFound", err)
	}
}

func TestGetProblem_Fields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	want := &model.Problem{
		ID: "merge-intervals", Title: "Merge Intervals", Category: "Intervals",
		Difficulty: model.DifficultyMedium, Order: 7, Link: "https://leetcode.com/problems/merge-intervals/",
	}
	if err := db.UpsertProblem(ctx, want); err != nil {
		t.Fatalf("UpsertProblem() error = %v", err)
	}

	got, err := db.GetProblem(ctx, want.ID)
	if err != nil {
		t.Fatalf("GetProblem() error = %v", err)
	}
	if *got != *want {
		t.Errorf("GetProblem() = %+v, want %+v", got, want)
	}
}
