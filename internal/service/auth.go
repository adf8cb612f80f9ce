package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/auth"
	"github.com/sakif/codebuddy/internal/mail"
	"github.com/sakif/codebuddy/internal/model"
	"github.com/sakif/codebuddy/internal/repository"
)

// MaxNameLength bounds the display name chosen at signup.
const MaxNameLength = 100

// AuthConfig holds the non-secret settings of the auth flows.
type AuthConfig struct {
	// Mail builds the verification and reset messages.
	Mail mail.Composer
	// OneTimeTokenTTL is how long emailed links stay valid.
	OneTimeTokenTTL time.Duration
}

// AuthService handles the authentication business logic.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt), Mailer
//
// Email accounts must be verified through the emailed link before Login
// succeeds. GitHub accounts are verified on creation.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    mail.Mailer
	config    AuthConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer mail.Mailer,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if cfg.OneTimeTokenTTL <= 0 {
		cfg.OneTimeTokenTTL = auth.DefaultOneTimeTokenTTL
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignupInput is the signup form.
type SignupInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ResetPasswordInput is the reset form submitted from the emailed link.
type ResetPasswordInput struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

var errBadCredentials = apperror.Unauthorized("invalid email or password")

// Signup creates an unverified account and mails the verification link.
// A mail failure is logged but does not undo the signup.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or fewer", MaxNameLength))
	}
	if err := auth.CheckPolicy(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}
	token, err := auth.NewOneTimeToken()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Email:             email,
		Name:              name,
		PasswordHash:      hash,
		VerifyToken:       token,
		VerifyTokenExpiry: s.now().Add(s.config.OneTimeTokenTTL),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	s.send(ctx, s.config.Mail.Verification(user.Email, user.DisplayName(), token))
	return user, nil
}

// Login checks email and password. Unknown emails and wrong passwords get
// the same Unauthorized error; a correct password on an unverified account
// gets Forbidden.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errBadCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	// GitHub-only accounts have no password to compare against.
	if user.PasswordHash == "" {
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !user.IsVerified {
		return nil, apperror.Forbidden("email address has not been verified")
	}

	return s.issue(user)
}

// Verify marks the owner of a verification token as verified.
func (s *AuthService) Verify(ctx context.Context, token string) (*model.User, error) {
	user, err := s.userForToken(ctx, model.TokenVerify, token)
	if err != nil {
		return nil, err
	}
	if s.now().After(user.VerifyTokenExpiry) {
		return nil, apperror.ValidationFailed("token", "token has expired")
	}

	user.IsVerified = true
	user.VerifyToken = ""
	user.VerifyTokenExpiry = time.Time{}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: verifying user %s: %w", user.ID, err)
	}
	s.logger.Info("user verified", slog.String("userID", user.ID))
	return user, nil
}

// ForgotPassword mails a reset link when the address belongs to an account.
// It succeeds either way so callers cannot probe for registered emails.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	token, err := auth.NewOneTimeToken()
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	user.ResetToken = token
	user.ResetTokenExpiry = s.now().Add(s.config.OneTimeTokenTTL)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: storing reset token for %s: %w", user.ID, err)
	}

	s.send(ctx, s.config.Mail.PasswordReset(user.Email, user.DisplayName(), token))
	return nil
}

// ResetPassword sets a new password for the owner of a reset token. Opening
// the emailed link proves the address, so the account is verified too.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	user, err := s.userForToken(ctx, model.TokenReset, in.Token)
	if err != nil {
		return err
	}
	if s.now().After(user.ResetTokenExpiry) {
		return apperror.ValidationFailed("token", "token has expired")
	}
	if in.Password != in.PasswordConfirm {
		return apperror.ValidationFailed("passwordConfirm", "passwords do not match")
	}
	if err := auth.CheckPolicy(in.Password); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	user.PasswordHash = hash
	user.IsVerified = true
	user.ResetToken = ""
	user.ResetTokenExpiry = time.Time{}
	user.VerifyToken = ""
	user.VerifyTokenExpiry = time.Time{}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: resetting password for %s: %w", user.ID, err)
	}

	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert the user
// (linking to an existing account with the same email) and issue a token.
// It does not touch cookies or requests; that is the handler's job.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Name:      ghUser.Name,
		Email:     strings.ToLower(ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return s.issue(user)
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// DeleteAccount removes the user and, through the foreign keys, their
// attempts.
func (s *AuthService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("service/auth: deleting user %s: %w", id, err)
	}
	s.logger.Info("account deleted", slog.String("userID", id))
	return nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// SessionTTL is the lifetime of tokens issued by Login.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) userForToken(ctx context.Context, kind model.TokenKind, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ValidationFailed("token", "token is required")
	}
	user, err := s.users.GetUserByToken(ctx, kind, token)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.ValidationFailed("token", "invalid token")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %s token: %w", kind, err)
	}
	return user, nil
}

func (s *AuthService) send(ctx context.Context, msg mail.Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "sending mail failed",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}
