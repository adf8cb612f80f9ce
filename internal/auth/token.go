package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// OneTimeTokenLength is the length of email verification and password reset
// tokens.
const OneTimeTokenLength = 64

// DefaultOneTimeTokenTTL applies when no expiry is configured.
const DefaultOneTimeTokenTTL = 24 * time.Hour

// NewOneTimeToken returns a random URL-safe token of OneTimeTokenLength
// characters, suitable for embedding in an emailed link.
func NewOneTimeToken() (string, error) {
	// 48 random bytes encode to exactly 64 base64 characters, no padding.
	buf := make([]byte, OneTimeTokenLength*3/4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
