package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/repository"
)

var _ repository.ProblemRepository = (*DB)(nil)

// UpsertProblem inserts the problem or refreshes its metadata. Attempts that
// reference it are kept.
func (db *DB) UpsertProblem(ctx context.Context, p *model.Problem) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO problems (problem_id, title, category, difficulty, "order", video_id, link)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(problem_id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			difficulty = excluded.difficulty,
			"order" = excluded."order",
			video_id = excluded.video_id,
			link = excluded.link`,
		p.ID, p.Title, p.Category, p.Difficulty, p.Order, p.VideoID, p.Link,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting problem %s: %w", p.ID, err)
	}
	return nil
}

func (db *DB) GetProblem(ctx context.Context, id string) (*model.Problem, error) {
	var p model.Problem
	err := db.conn.QueryRowContext(ctx,
		`SELECT problem_id, title, category, difficulty, "order", video_id, link
		 FROM problems WHERE problem_id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Category, &p.Difficulty, &p.Order, &p.VideoID, &p.Link)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("problem", id)
		}
		return nil, fmt.Errorf("sqlite: getting problem %s: %w", id, err)
	}
	return &p, nil
}

// ListProblems returns every problem ordered for display.
func (db *DB) ListProblems(ctx context.Context) ([]model.Problem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT problem_id, title, category, difficulty, "order", video_id, link
		 FROM problems ORDER BY "order", problem_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing problems: %w", err)
	}
	defer rows.Close()

	problems := make([]model.Problem, 0)
	for rows.Next() {
		var p model.Problem
		if err := rows.Scan(&p.ID, &p.Title, &p.Category, &p.Difficulty, &p.Order, &p.VideoID, &p.Link); err != nil {
			return nil, fmt.Errorf("sqlite: scanning problem row: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating problems: %w", err)
	}
	return problems, nil
}

func (db *DB) DeleteProblem(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM problems WHERE problem_id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting problem %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("problem", id)
	}
	return nil
}
