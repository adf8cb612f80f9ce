// Package mail composes and sends the account emails (verification and
// password reset).
//
// Only LogMailer ships: it writes each message to the structured log, which
// is enough for development and for operators who relay logs to a mail
// pipeline.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Composer builds account emails with links under BaseURL.
type Composer struct {
	BaseURL string
	From    string
}

// VerifyLink is the page that confirms an email address.
func (c Composer) VerifyLink(token string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/verify-user/" + token
}

// ResetLink is the page that sets a new password.
func (c Composer) ResetLink(token string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/reset-password/" + token
}

// Verification is sent after signup.
func (c Composer) Verification(to, name, token string) Message {
	return Message{
		To:      to,
		Subject: "Verify your email",
		Body: fmt.Sprintf("Hi %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\n"+
			"If you did not sign up, you can ignore this message.\n", greeting(name), c.VerifyLink(token)),
	}
}

// PasswordReset is sent by the forgot-password flow.
func (c Composer) PasswordReset(to, name, token string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hi %s,\n\nYou asked to reset your password. Choose a new one here:\n\n%s\n\n"+
			"If you did not ask for this, no action is needed.\n", greeting(name), c.ResetLink(token)),
	}
}

func greeting(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// LogMailer writes messages to a logger instead of sending them.
type LogMailer struct {
	logger *slog.Logger
	from   string
}

func NewLogMailer(logger *slog.Logger, from string) *LogMailer {
	return &LogMailer{logger: logger, from: from}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail: message has no recipient")
	}
	m.logger.InfoContext(ctx, "email",
		slog.String("from", m.from),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
