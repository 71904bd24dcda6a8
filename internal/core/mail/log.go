package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer writes mail to the log instead of delivering it. Local development only.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements domain.Mailer.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("Mail not delivered (log mailer)")
	return nil
}
