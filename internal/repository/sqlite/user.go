package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, password_hash, github_id, login, avatar_url,
	is_verified, verify_token, verify_token_expiry, reset_token, reset_token_expiry,
	created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		githubID    sql.NullInt64
		verifyUntil sql.NullTime
		resetUntil  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &githubID, &u.Login, &u.AvatarURL,
		&u.IsVerified, &u.VerifyToken, &verifyUntil, &u.ResetToken, &resetUntil,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	u.VerifyTokenExpiry = verifyUntil.Time
	u.ResetTokenExpiry = resetUntil.Time
	return &u, nil
}

func nullableGitHubID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// CreateUser inserts a new user. The email is stored lower-cased; a second
// account with the same email is a conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash,
		nullableGitHubID(user.GitHubID), user.Login, user.AvatarURL,
		user.IsVerified, user.VerifyToken, nullableTime(user.VerifyTokenExpiry),
		user.ResetToken, nullableTime(user.ResetTokenExpiry),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail matches case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.NotFound("user", email)
	}
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetUserByToken finds the holder of a verification or reset token. Expiry
// is the caller's business; this only matches the token text.
func (db *DB) GetUserByToken(ctx context.Context, kind model.TokenKind, token string) (*model.User, error) {
	var column string
	switch kind {
	case model.TokenVerify:
		column = "verify_token"
	case model.TokenReset:
		column = "reset_token"
	default:
		return nil, fmt.Errorf("sqlite: unknown token kind %q", kind)
	}
	if token == "" {
		return nil, apperror.NotFound("token", "")
	}

	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, token))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(string(kind)+" token", "<redacted>")
		}
		return nil, fmt.Errorf("sqlite: getting user by %s token: %w", kind, err)
	}
	return u, nil
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return u, nil
}

// UpdateUser writes every mutable column. CreatedAt is never touched.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			email = ?, name = ?, password_hash = ?, github_id = ?, login = ?, avatar_url = ?,
			is_verified = ?, verify_token = ?, verify_token_expiry = ?,
			reset_token = ?, reset_token_expiry = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email, user.Name, user.PasswordHash,
		nullableGitHubID(user.GitHubID), user.Login, user.AvatarURL,
		user.IsVerified, user.VerifyToken, nullableTime(user.VerifyTokenExpiry),
		user.ResetToken, nullableTime(user.ResetTokenExpiry),
		user.UpdatedAt, user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// DeleteUser removes the account; attempts go with it (ON DELETE CASCADE).
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// Upsert inserts or updates a user based on their GitHub ID.
//
// A returning GitHub user keeps their internal ID; only the profile fields
// are refreshed. A first-time GitHub user whose email already belongs to an
// email-signup account is linked to that account instead of getting a new
// one. Either way the account ends up verified, since GitHub vouched for it.
//
// Linking an unverified account also drops its password and pending tokens:
// nobody proved they own that mailbox, so whoever registered it must not keep
// a way into the GitHub user's account. They can still claim it through the
// password reset flow, which goes to the verified address.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	existing, err := db.GetUserByGitHubID(ctx, user.GitHubID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	if existing == nil && user.Email != "" {
		existing, err = db.GetUserByEmail(ctx, user.Email)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
	}

	if existing == nil {
		user.IsVerified = true
		if user.Name == "" {
			user.Name = user.Login
		}
		return db.CreateUser(ctx, user)
	}

	if !existing.IsVerified {
		existing.PasswordHash = ""
		existing.VerifyToken = ""
		existing.VerifyTokenExpiry = time.Time{}
		existing.ResetToken = ""
		existing.ResetTokenExpiry = time.Time{}
	}
	existing.GitHubID = user.GitHubID
	existing.Login = user.Login
	existing.AvatarURL = user.AvatarURL
	existing.IsVerified = true
	if existing.Email == "" {
		existing.Email = user.Email
	}
	if existing.Name == "" {
		existing.Name = user.Login
	}
	if err := db.UpdateUser(ctx, existing); err != nil {
		return err
	}
	*user = *existing
	return nil
}
