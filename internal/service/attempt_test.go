package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/problem"
	"github.com/sakif/codebuddy/internal/validator"
)

func loadCatalog(t *testing.T) *problem.Catalog {
	t.Helper()
	c, err := problem.Load()
	require.NoError(t, err)
	return c
}

func newTestAttemptService(t *testing.T, v Validator) (*AttemptService, *fakeAttemptRepo) {
	t.Helper()
	repo := newFakeAttemptRepo()
	return NewAttemptService(repo, loadCatalog(t), v, discardLogger()), repo
}

var passed = &validator.Outcome{Status: validator.StatusPassed}

var mismatch = &validator.Outcome{
	Status: validator.StatusFailed,
	Failure: &validator.Failure{
		Kind:     validator.FailureMismatch,
		TestCase: 2,
		Message:  "Test case 2 failed",
	},
}

// =========================================================================
// Submit
// =========================================================================

func TestSubmit_StripsLeadingCodeAndRecordsPass(t *testing.T) {
	v := &fakeValidator{outcome: passed}
	svc, repo := newTestAttemptService(t, v)

	code := "// my notes\nconst helper = 1;\nfunction findMax(nums) { return Math.max(...nums); }"
	res, err := svc.Submit(context.Background(), "u1", "find-max", code)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(v.got.CandidateSource, "function findMax("))
	assert.NotEmpty(t, v.got.CheckerSource)
	assert.Equal(t, 3*time.Second, v.got.Timeout)

	assert.True(t, res.Outcome.Passed())
	assert.True(t, res.Attempt.Correct)
	assert.Equal(t, code, res.Attempt.Code, "the code is stored as written")
	assert.True(t, repo.attempts[attemptKey{"u1", "find-max"}].Correct)
}

func TestSubmit_FailureClearsCorrect(t *testing.T) {
	v := &fakeValidator{outcome: passed}
	svc, repo := newTestAttemptService(t, v)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", "two-sum", "function twoSum(nums, target) { return [0, 1]; }")
	require.NoError(t, err)

	v.outcome = mismatch
	res, err := svc.Submit(ctx, "u1", "two-sum", "function twoSum(nums, target) { return []; }")
	require.NoError(t, err)
	assert.False(t, res.Attempt.Correct)
	assert.Equal(t, "Test case 2 failed", res.Outcome.Reason())
	assert.False(t, repo.attempts[attemptKey{"u1", "two-sum"}].Correct)
}

func TestSubmit_TimedOutIsNotCorrect(t *testing.T) {
	v := &fakeValidator{outcome: &validator.Outcome{Status: validator.StatusTimedOut, Timeout: 5 * time.Second}}
	svc, _ := newTestAttemptService(t, v)

	res, err := svc.Submit(context.Background(), "u1", "jump-game", "function canJump(nums) { while (true) {} }")
	require.NoError(t, err)
	assert.False(t, res.Attempt.Correct)
	assert.Contains(t, res.Outcome.Reason(), "Time limit exceeded")
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		problem string
		code    string
		target  error
		msg     string
	}{
		{"missing signature", "two-sum", "function add(a, b) { return a + b; }", apperror.ErrValidation, "function twoSum(... is missing"},
		{"empty code", "two-sum", "", apperror.ErrValidation, "code is required"},
		{"too long", "two-sum", strings.Repeat("x", MaxCodeLength+1), apperror.ErrValidation, "bytes or fewer"},
		{"unknown problem", "no-such", "function x() {}", apperror.ErrNotFound, ""},
		{"link-only problem", "subsets", "function subsets() {}", apperror.ErrValidation, "cannot be submitted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeValidator{outcome: passed}
			svc, repo := newTestAttemptService(t, v)

			_, err := svc.Submit(context.Background(), "u1", tt.problem, tt.code)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "err = %v", err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
			assert.Zero(t, v.calls)
			assert.Zero(t, repo.writes)
		})
	}
}

func TestSubmit_InfrastructureErrorIsNotStored(t *testing.T) {
	v := &fakeValidator{err: apperror.Unavailable("validator")}
	svc, repo := newTestAttemptService(t, v)

	_, err := svc.Submit(context.Background(), "u1", "two-sum", "function twoSum() {}")
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
	assert.Zero(t, repo.writes)
}

func TestSubmit_WithGojaValidator(t *testing.T) {
	catalog := loadCatalog(t)
	v := validator.New(validator.NewGojaIsolate(validator.DefaultGojaConfig()), validator.DefaultConfig(), discardLogger())
	svc := NewAttemptService(newFakeAttemptRepo(), catalog, v, discardLogger())

	def, err := catalog.Lookup("valid-parentheses")
	require.NoError(t, err)

	res, err := svc.Submit(context.Background(), "u1", def.ID, "/* reference */\n"+def.Solution)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Passed(), "reason: %s", res.Outcome.Reason())

	res, err = svc.Submit(context.Background(), "u1", def.ID, def.StarterCode)
	require.NoError(t, err)
	assert.False(t, res.Outcome.Passed())
	require.NotNil(t, res.Outcome.Failure)
	assert.Equal(t, validator.FailureMismatch, res.Outcome.Failure.Kind)
}

// =========================================================================
// Save / List / Get / Delete
// =========================================================================

func TestSave_KeepsCorrectFlag(t *testing.T) {
	v := &fakeValidator{outcome: passed}
	svc, _ := newTestAttemptService(t, v)
	ctx := context.Background()

	a, err := svc.Save(ctx, "u1", "two-sum", "function twoSum() { /* wip */ }")
	require.NoError(t, err)
	assert.False(t, a.Correct)

	_, err = svc.Submit(ctx, "u1", "two-sum", "function twoSum() { return [0, 1]; }")
	require.NoError(t, err)

	a, err = svc.Save(ctx, "u1", "two-sum", "function twoSum() { /* refactor */ }")
	require.NoError(t, err)
	assert.True(t, a.Correct)
	assert.Contains(t, a.Code, "refactor")
}

func TestSave_UnknownProblem(t *testing.T) {
	svc, _ := newTestAttemptService(t, &fakeValidator{})

	_, err := svc.Save(context.Background(), "u1", "nope", "x")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListGetDelete(t *testing.T) {
	svc, _ := newTestAttemptService(t, &fakeValidator{outcome: passed})
	ctx := context.Background()

	_, err := svc.Save(ctx, "u1", "two-sum", "a")
	require.NoError(t, err)
	_, err = svc.Save(ctx, "u1", "jump-game", "b")
	require.NoError(t, err)
	_, err = svc.Save(ctx, "u2", "two-sum", "c")
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := svc.Get(ctx, "u2", "two-sum")
	require.NoError(t, err)
	assert.Equal(t, "c", got.Code)

	require.NoError(t, svc.Delete(ctx, "u1", "two-sum"))
	_, err = svc.Get(ctx, "u1", "two-sum")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, "u1", "two-sum"), apperror.ErrNotFound))
}
