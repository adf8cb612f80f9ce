package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/repository"
)

var _ repository.AttemptRepository = (*DB)(nil)

// UpsertAttempt stores the latest code for (user, problem).
//
// The correct flag of an existing row is only overwritten when setCorrect
// is true, so saving a draft never un-solves a problem. A new row takes
// attempt.Correct either way.
func (db *DB) UpsertAttempt(ctx context.Context, a *model.Attempt, setCorrect bool) error {
	now := time.Now()

	onConflictCorrect := "correct"
	if setCorrect {
		onConflictCorrect = "excluded.correct"
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO attempted_problems (user_id, problem_id, code, correct, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, problem_id) DO UPDATE SET
			code = excluded.code,
			correct = `+onConflictCorrect+`,
			updated_at = excluded.updated_at`,
		a.UserID, a.ProblemID, a.Code, a.Correct, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.ValidationFailed("problem", fmt.Sprintf("unknown user or problem %s", a.ProblemID))
		}
		return fmt.Errorf("sqlite: upserting attempt %s/%s: %w", a.UserID, a.ProblemID, err)
	}

	stored, err := db.GetAttempt(ctx, a.UserID, a.ProblemID)
	if err != nil {
		return err
	}
	*a = *stored
	return nil
}

func (db *DB) GetAttempt(ctx context.Context, userID, problemID string) (*model.Attempt, error) {
	var a model.Attempt
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, problem_id, code, correct, created_at, updated_at
		 FROM attempted_problems WHERE user_id = ? AND problem_id = ?`,
		userID, problemID,
	).Scan(&a.UserID, &a.ProblemID, &a.Code, &a.Correct, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("attempt", problemID)
		}
		return nil, fmt.Errorf("sqlite: getting attempt %s/%s: %w", userID, problemID, err)
	}
	return &a, nil
}

// ListAttempts returns the user's attempts joined with problem metadata,
// in problem order.
func (db *DB) ListAttempts(ctx context.Context, userID string) ([]model.Attempt, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.user_id, a.problem_id, a.code, a.correct, a.created_at, a.updated_at,
		        p.title, p.category, p.difficulty, p."order", p.video_id, p.link
		 FROM attempted_problems a
		 JOIN problems p ON p.problem_id = a.problem_id
		 WHERE a.user_id = ?
		 ORDER BY p."order", a.problem_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]model.Attempt, 0)
	for rows.Next() {
		var (
			a model.Attempt
			p model.Problem
		)
		if err := rows.Scan(
			&a.UserID, &a.ProblemID, &a.Code, &a.Correct, &a.CreatedAt, &a.UpdatedAt,
			&p.Title, &p.Category, &p.Difficulty, &p.Order, &p.VideoID, &p.Link,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning attempt row: %w", err)
		}
		p.ID = a.ProblemID
		a.Problem = &p
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating attempts: %w", err)
	}
	return attempts, nil
}

func (db *DB) DeleteAttempt(ctx context.Context, userID, problemID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM attempted_problems WHERE user_id = ? AND problem_id = ?`, userID, problemID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting attempt %s/%s: %w", userID, problemID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("attempt", problemID)
	}
	return nil
}
