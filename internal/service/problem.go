package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/problem"
	"github.com/sakif/codebuddy/internal/repository"
)

// ProblemSummary is one row of the problem list.
type ProblemSummary struct {
	model.Problem
	Playable bool `json:"playable"`
	// Attempted and Solved are only meaningful for a signed-in user.
	Attempted bool `json:"attempted"`
	Solved    bool `json:"solved"`
}

// ProblemDetail is the workspace view of a single problem.
type ProblemDetail struct {
	*problem.Definition
	Playable bool `json:"playable"`
	// Attempt holds the user's saved code, if any.
	Attempt *model.Attempt `json:"attempt,omitempty"`
}

// ProblemService merges the embedded catalog with problems stored in the
// database. Catalog entries win; database-only rows are link-only.
type ProblemService struct {
	catalog  *problem.Catalog
	problems repository.ProblemRepository
	attempts repository.AttemptRepository
	logger   *slog.Logger
}

func NewProblemService(
	catalog *problem.Catalog,
	problems repository.ProblemRepository,
	attempts repository.AttemptRepository,
	logger *slog.Logger,
) *ProblemService {
	return &ProblemService{catalog: catalog, problems: problems, attempts: attempts, logger: logger}
}

// SyncCatalog upserts the metadata of every catalog problem so attempts can
// reference them. Returns the number of problems written.
func (s *ProblemService) SyncCatalog(ctx context.Context) (int, error) {
	defs := s.catalog.All()
	for _, d := range defs {
		p := d.Metadata()
		if err := s.problems.UpsertProblem(ctx, &p); err != nil {
			return 0, fmt.Errorf("service/problem: syncing %s: %w", d.ID, err)
		}
	}
	s.logger.Info("problem catalog synced", slog.Int("count", len(defs)))
	return len(defs), nil
}

// List returns every problem ordered by Order. When userID is set each row
// carries the user's progress.
func (s *ProblemService) List(ctx context.Context, userID string) ([]ProblemSummary, error) {
	stored, err := s.problems.ListProblems(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/problem: listing problems: %w", err)
	}

	out := make([]ProblemSummary, 0, s.catalog.Len()+len(stored))
	seen := make(map[string]bool, s.catalog.Len())
	for _, d := range s.catalog.All() {
		out = append(out, ProblemSummary{Problem: d.Metadata(), Playable: d.Playable()})
		seen[d.ID] = true
	}
	for _, p := range stored {
		if !seen[p.ID] {
			out = append(out, ProblemSummary{Problem: p})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})

	if userID == "" {
		return out, nil
	}

	attempts, err := s.attempts.ListAttempts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/problem: listing attempts: %w", err)
	}
	solved := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		solved[a.ProblemID] = a.Correct
	}
	for i := range out {
		correct, ok := solved[out[i].ID]
		out[i].Attempted = ok
		out[i].Solved = correct
	}
	return out, nil
}

// Get returns one problem. With a userID, the user's saved attempt is
// attached when one exists.
func (s *ProblemService) Get(ctx context.Context, id, userID string) (*ProblemDetail, error) {
	def, err := s.catalog.Lookup(id)
	if errors.Is(err, apperror.ErrNotFound) {
		p, dbErr := s.problems.GetProblem(ctx, id)
		if dbErr != nil {
			return nil, fmt.Errorf("service/problem: %w", dbErr)
		}
		def = &problem.Definition{
			ID:         p.ID,
			Title:      p.Title,
			Category:   p.Category,
			Difficulty: p.Difficulty,
			Order:      p.Order,
			VideoID:    p.VideoID,
			Link:       p.Link,
		}
	} else if err != nil {
		return nil, err
	}

	detail := &ProblemDetail{Definition: def, Playable: def.Playable()}
	if userID == "" {
		return detail, nil
	}

	attempt, err := s.attempts.GetAttempt(ctx, userID, id)
	switch {
	case err == nil:
		detail.Attempt = attempt
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/problem: loading attempt: %w", err)
	}
	return detail, nil
}
