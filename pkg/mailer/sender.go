package mailer

import (
	"context"
	"log/slog"
)

// Sender defines the minimal interface that email providers must implement.
// It accepts a fully-prepared Email and handles the actual delivery.
type Sender interface {
	// Send delivers an email message and returns the provider-assigned
	// message id. The Email must have To, Subject, and HTML already set.
	Send(ctx context.Context, email *Email) (string, error)
}

// LogSender is a development stand-in for a real provider: it logs the
// message instead of transmitting it and reports a fixed message id.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a sender that writes messages to the given logger.
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, email *Email) (string, error) {
	if len(email.To) == 0 {
		return "", ErrNoRecipient
	}
	s.log.InfoContext(ctx, "email not transmitted (log sender)",
		slog.Any("to", email.To),
		slog.String("subject", email.Subject),
		slog.Int("html_bytes", len(email.HTML)),
	)
	return "log-sender", nil
}
