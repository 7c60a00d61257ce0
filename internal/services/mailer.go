package services

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Mailer delivers a message to a single address.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer records deliveries in the log without their body, so one-time
// codes never reach log storage.
type LogMailer struct {
	From string
	Log  *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Log.InfoContext(ctx, "mail dispatched",
		"from", m.From,
		"to", maskEmail(to),
		"subject", subject,
		"body_bytes", len(body),
	)
	return nil
}

// maskEmail keeps the first character of the local part: "j***@example.com".
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// sendAsync hands the message to the mailer without blocking the caller.
func sendAsync(log *slog.Logger, mailer Mailer, timeout time.Duration, to, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := mailer.Send(ctx, to, subject, body); err != nil {
			log.Warn("mail delivery failed", "to", maskEmail(to), "subject", subject, "error", err)
		}
	}()
}
