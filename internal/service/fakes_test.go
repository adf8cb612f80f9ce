package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/llm"
	"github.com/sakif/codebuddy/internal/mail"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/validator"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// In-memory implementations of the repository interfaces. Using fakes (not
// a mock framework) keeps the tests easy to read: you can see exactly what
// each fake does.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// set to a non-nil error to simulate a database failure
	upsertErr error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) insert(u *model.User) {
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.ID] = &cp
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, bool) {
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, true
		}
	}
	return nil, false
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.find(func(x *model.User) bool { return x.Email == u.Email }); ok {
		return apperror.Conflict("user", u.Email)
	}
	f.insert(u)
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.find(func(x *model.User) bool { return x.Email == email }); ok {
		return u, nil
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetUserByToken(_ context.Context, kind model.TokenKind, token string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.find(func(x *model.User) bool {
		if kind == model.TokenReset {
			return x.ResetToken == token
		}
		return x.VerifyToken == token
	})
	if !ok {
		return nil, apperror.NotFound("user", "token")
	}
	return u, nil
}

func (f *fakeUserRepo) GetUserByGitHubID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.find(func(x *model.User) bool { return x.GitHubID == id }); ok {
		return u, nil
	}
	return nil, apperror.NotFound("user", fmt.Sprint(id))
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	u.UpdatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserRepo) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) Upsert(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	existing, ok := f.find(func(x *model.User) bool { return x.GitHubID == u.GitHubID })
	if !ok && u.Email != "" {
		existing, ok = f.find(func(x *model.User) bool { return x.Email == u.Email })
	}
	if !ok {
		u.IsVerified = true
		if u.Name == "" {
			u.Name = u.Login
		}
		f.insert(u)
		return nil
	}
	existing.GitHubID = u.GitHubID
	existing.Login = u.Login
	existing.AvatarURL = u.AvatarURL
	existing.IsVerified = true
	if u.Email != "" {
		existing.Email = u.Email
	}
	f.users[existing.ID] = existing
	*u = *existing
	return nil
}

type fakeProblemRepo struct {
	problems map[string]model.Problem
}

func newFakeProblemRepo() *fakeProblemRepo {
	return &fakeProblemRepo{problems: make(map[string]model.Problem)}
}

func (f *fakeProblemRepo) UpsertProblem(_ context.Context, p *model.Problem) error {
	f.problems[p.ID] = *p
	return nil
}

func (f *fakeProblemRepo) GetProblem(_ context.Context, id string) (*model.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, apperror.NotFound("problem", id)
	}
	return &p, nil
}

func (f *fakeProblemRepo) ListProblems(context.Context) ([]model.Problem, error) {
	out := make([]model.Problem, 0, len(f.problems))
	for _, p := range f.problems {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeProblemRepo) DeleteProblem(_ context.Context, id string) error {
	delete(f.problems, id)
	return nil
}

type attemptKey struct{ user, problem string }

type fakeAttemptRepo struct {
	attempts map[attemptKey]model.Attempt
	writes   int
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[attemptKey]model.Attempt)}
}

func (f *fakeAttemptRepo) UpsertAttempt(_ context.Context, a *model.Attempt, setCorrect bool) error {
	f.writes++
	k := attemptKey{a.UserID, a.ProblemID}
	now := time.Now()
	if prev, ok := f.attempts[k]; ok {
		if !setCorrect {
			a.Correct = prev.Correct
		}
		a.CreatedAt = prev.CreatedAt
	} else {
		if !setCorrect {
			a.Correct = false
		}
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	f.attempts[k] = *a
	return nil
}

func (f *fakeAttemptRepo) GetAttempt(_ context.Context, userID, problemID string) (*model.Attempt, error) {
	a, ok := f.attempts[attemptKey{userID, problemID}]
	if !ok {
		return nil, apperror.NotFound("attempt", problemID)
	}
	return &a, nil
}

func (f *fakeAttemptRepo) ListAttempts(_ context.Context, userID string) ([]model.Attempt, error) {
	out := []model.Attempt{}
	for k, a := range f.attempts {
		if k.user == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProblemID < out[j].ProblemID })
	return out, nil
}

func (f *fakeAttemptRepo) DeleteAttempt(_ context.Context, userID, problemID string) error {
	k := attemptKey{userID, problemID}
	if _, ok := f.attempts[k]; !ok {
		return apperror.NotFound("attempt", problemID)
	}
	delete(f.attempts, k)
	return nil
}

// fakeMailer records every message.
type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// fakeValidator returns a canned outcome and records the request.
type fakeValidator struct {
	outcome *validator.Outcome
	err     error
	got     validator.Request
	calls   int
}

func (f *fakeValidator) Validate(_ context.Context, req validator.Request) (*validator.Outcome, error) {
	f.calls++
	f.got = req
	return f.outcome, f.err
}

// fakeLLM streams canned deltas and records the messages it was sent.
type fakeLLM struct {
	deltas []string
	err    error
	got    []llm.Message
}

func (f *fakeLLM) ChatCompletionStream(_ context.Context, msgs []llm.Message, h llm.StreamHandler) (*llm.Response, error) {
	f.got = msgs
	if f.err != nil {
		return nil, f.err
	}
	var full string
	for _, d := range f.deltas {
		full += d
		if err := h(d); err != nil {
			return nil, err
		}
	}
	return &llm.Response{Message: llm.AssistantMessage(full), FinishReason: "stop"}, nil
}

type recordingChatObserver struct{ results []string }

func (r *recordingChatObserver) ObserveChat(result string) { r.results = append(r.results, result) }
