// Package model defines the data structures used throughout the application.
package model

import "time"

// TokenKind selects which one-time token a lookup matches against.
type TokenKind string

const (
	TokenVerify TokenKind = "verify"
	TokenReset  TokenKind = "reset"
)

// User represents a registered account.
//
// Accounts are created either by email signup (PasswordHash set, IsVerified
// false until the emailed link is opened) or by GitHub login (GitHubID set,
// verified immediately). A user can have both once a GitHub login matches an
// existing email.
//
// The one-time tokens are never serialised: they only ever leave the server
// inside an email link.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`

	GitHubID  int64  `json:"githubId,omitempty"`
	Login     string `json:"login,omitempty"`     // GitHub username
	AvatarURL string `json:"avatarUrl,omitempty"` // Profile picture URL

	IsVerified        bool      `json:"isVerified"`
	VerifyToken       string    `json:"-"`
	VerifyTokenExpiry time.Time `json:"-"`
	ResetToken        string    `json:"-"`
	ResetTokenExpiry  time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName prefers the chosen name, then the GitHub login, then the email.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Login != "":
		return u.Login
	default:
		return u.Email
	}
}
