// Package repository declares the storage interfaces the services depend on.
// The sqlite subpackage is the only implementation; tests use in-memory
// fakes.
package repository

import (
	"context"

	"github.com/sakif/codebuddy/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByToken(ctx context.Context, kind model.TokenKind, token string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
	// Upsert creates or refreshes the user linked to user.GitHubID.
	Upsert(ctx context.Context, user *model.User) error
}

type ProblemRepository interface {
	UpsertProblem(ctx context.Context, problem *model.Problem) error
	GetProblem(ctx context.Context, id string) (*model.Problem, error)
	ListProblems(ctx context.Context) ([]model.Problem, error)
	DeleteProblem(ctx context.Context, id string) error
}

type AttemptRepository interface {
	// UpsertAttempt stores code for (UserID, ProblemID). When setCorrect is
	// false an existing row keeps its correct flag.
	UpsertAttempt(ctx context.Context, attempt *model.Attempt, setCorrect bool) error
	GetAttempt(ctx context.Context, userID, problemID string) (*model.Attempt, error)
	ListAttempts(ctx context.Context, userID string) ([]model.Attempt, error)
	DeleteAttempt(ctx context.Context, userID, problemID string) error
}
