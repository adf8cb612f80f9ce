// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services depend on repository interfaces, never on the sqlite package, so
// tests pass in-memory fakes and the CLI can reuse the same logic as the
// HTTP server.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/problem"
	"github.com/sakif/codebuddy/internal/repository"
	"github.com/sakif/codebuddy/internal/validator"
)

// MaxCodeLength bounds a saved or submitted attempt (~100KB).
const MaxCodeLength = 100000

// Validator runs a checker against a candidate. *validator.Validator
// implements it.
type Validator interface {
	Validate(ctx context.Context, req validator.Request) (*validator.Outcome, error)
}

// SubmitResult is the verdict plus the attempt as stored after it.
type SubmitResult struct {
	Outcome *validator.Outcome `json:"outcome"`
	Attempt *model.Attempt     `json:"attempt"`
}

// AttemptService stores learners' code and grades submissions.
type AttemptService struct {
	attempts  repository.AttemptRepository
	catalog   *problem.Catalog
	validator Validator
	logger    *slog.Logger
}

func NewAttemptService(
	attempts repository.AttemptRepository,
	catalog *problem.Catalog,
	v Validator,
	logger *slog.Logger,
) *AttemptService {
	return &AttemptService{attempts: attempts, catalog: catalog, validator: v, logger: logger}
}

// Save stores code without grading it. An existing attempt keeps its
// correct flag; a new one starts unsolved.
func (s *AttemptService) Save(ctx context.Context, userID, problemID, code string) (*model.Attempt, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}
	if _, err := s.catalog.Lookup(problemID); err != nil {
		return nil, err
	}

	a := &model.Attempt{UserID: userID, ProblemID: problemID, Code: code}
	if err := s.attempts.UpsertAttempt(ctx, a, false); err != nil {
		return nil, fmt.Errorf("service/attempt: saving %s: %w", problemID, err)
	}
	return a, nil
}

// Submit grades code against the problem's checker and records whether it
// passed. Everything before the problem's function signature is dropped
// first. When validation itself fails (isolate unavailable, caller gone)
// the error is returned and nothing is stored.
func (s *AttemptService) Submit(ctx context.Context, userID, problemID, code string) (*SubmitResult, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}
	def, err := s.catalog.Lookup(problemID)
	if err != nil {
		return nil, err
	}
	fn, err := def.ExtractFunction(code)
	if err != nil {
		return nil, err
	}

	outcome, err := s.validator.Validate(ctx, validator.Request{
		CandidateSource: fn,
		CheckerSource:   def.Checker,
		Timeout:         def.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("service/attempt: validating %s: %w", problemID, err)
	}

	a := &model.Attempt{UserID: userID, ProblemID: problemID, Code: code, Correct: outcome.Passed()}
	if err := s.attempts.UpsertAttempt(ctx, a, true); err != nil {
		return nil, fmt.Errorf("service/attempt: recording %s: %w", problemID, err)
	}

	s.logger.Info("submission graded",
		slog.String("userID", userID),
		slog.String("problemID", problemID),
		slog.String("status", string(outcome.Status)),
	)
	return &SubmitResult{Outcome: outcome, Attempt: a}, nil
}

// List returns the user's attempts with problem metadata, ordered like the
// problem list.
func (s *AttemptService) List(ctx context.Context, userID string) ([]model.Attempt, error) {
	attempts, err := s.attempts.ListAttempts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/attempt: listing: %w", err)
	}
	return attempts, nil
}

func (s *AttemptService) Get(ctx context.Context, userID, problemID string) (*model.Attempt, error) {
	a, err := s.attempts.GetAttempt(ctx, userID, problemID)
	if err != nil {
		return nil, fmt.Errorf("service/attempt: %w", err)
	}
	return a, nil
}

func (s *AttemptService) Delete(ctx context.Context, userID, problemID string) error {
	if err := s.attempts.DeleteAttempt(ctx, userID, problemID); err != nil {
		return fmt.Errorf("service/attempt: deleting %s: %w", problemID, err)
	}
	return nil
}

func checkCode(code string) error {
	switch {
	case code == "":
		return apperror.ValidationFailed("code", "code is required")
	case len(code) > MaxCodeLength:
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or fewer", MaxCodeLength))
	}
	return nil
}
