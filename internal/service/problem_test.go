package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
)

func newTestProblemService(t *testing.T) (*ProblemService, *fakeProblemRepo, *fakeAttemptRepo) {
	t.Helper()
	problems, attempts := newFakeProblemRepo(), newFakeAttemptRepo()
	return NewProblemService(loadCatalog(t), problems, attempts, discardLogger()), problems, attempts
}

func TestSyncCatalog(t *testing.T) {
	svc, problems, _ := newTestProblemService(t)

	n, err := svc.SyncCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Len(t, problems.problems, 11)
	assert.Equal(t, "Two Sum", problems.problems["two-sum"].Title)

	// Idempotent.
	_, err = svc.SyncCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, problems.problems, 11)
}

func TestList_MergesDatabaseOnlyProblems(t *testing.T) {
	svc, problems, _ := newTestProblemService(t)
	ctx := context.Background()
	_, err := svc.SyncCatalog(ctx)
	require.NoError(t, err)
	problems.problems["word-ladder"] = model.Problem{
		ID: "word-ladder", Title: "Word Ladder", Difficulty: model.DifficultyHard, Order: 12,
		Link: "https://leetcode.com/problems/word-ladder/",
	}

	list, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 12)
	assert.Equal(t, "two-sum", list[0].ID)
	assert.True(t, list[0].Playable)
	assert.Equal(t, "word-ladder", list[11].ID)
	assert.False(t, list[11].Playable)

	for i := 1; i < len(list); i++ {
		assert.LessOrEqual(t, list[i-1].Order, list[i].Order)
	}
}

func TestList_WithProgress(t *testing.T) {
	svc, _, attempts := newTestProblemService(t)
	ctx := context.Background()

	attempts.attempts[attemptKey{"u1", "two-sum"}] = model.Attempt{UserID: "u1", ProblemID: "two-sum", Correct: true}
	attempts.attempts[attemptKey{"u1", "jump-game"}] = model.Attempt{UserID: "u1", ProblemID: "jump-game"}

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)

	byID := map[string]ProblemSummary{}
	for _, p := range list {
		byID[p.ID] = p
	}
	assert.True(t, byID["two-sum"].Attempted)
	assert.True(t, byID["two-sum"].Solved)
	assert.True(t, byID["jump-game"].Attempted)
	assert.False(t, byID["jump-game"].Solved)
	assert.False(t, byID["find-max"].Attempted)
}

func TestGet(t *testing.T) {
	svc, problems, attempts := newTestProblemService(t)
	ctx := context.Background()

	detail, err := svc.Get(ctx, "two-sum", "")
	require.NoError(t, err)
	assert.True(t, detail.Playable)
	assert.NotEmpty(t, detail.StarterCode)
	assert.Nil(t, detail.Attempt)

	attempts.attempts[attemptKey{"u1", "two-sum"}] = model.Attempt{UserID: "u1", ProblemID: "two-sum", Code: "saved"}
	detail, err = svc.Get(ctx, "two-sum", "u1")
	require.NoError(t, err)
	require.NotNil(t, detail.Attempt)
	assert.Equal(t, "saved", detail.Attempt.Code)

	problems.problems["word-ladder"] = model.Problem{ID: "word-ladder", Title: "Word Ladder", Order: 12}
	detail, err = svc.Get(ctx, "word-ladder", "")
	require.NoError(t, err)
	assert.False(t, detail.Playable)
	assert.Equal(t, "Word Ladder", detail.Title)

	_, err = svc.Get(ctx, "missing", "")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
