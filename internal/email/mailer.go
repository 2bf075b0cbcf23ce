// Package email delivers the auth engine's outbound notifications through
// Mailgun, with a log-only fallback for development.
package email

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v5"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/auth"
	"github.com/gatekeep-io/gatekeep/internal/config"
	"github.com/gatekeep-io/gatekeep/internal/logutil"
)

// NewMailer builds the notifier selected by cfg.Provider.
func NewMailer(cfg *config.EmailConfig) (auth.Notifier, error) {
	switch cfg.Provider {
	case "mailgun":
		return NewMailgunMailer(cfg)
	case "log", "":
		return NewLogMailer(), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// MailgunMailer sends notifications through the Mailgun API.
type MailgunMailer struct {
	client *mailgun.Client
	domain string
	sender string
}

// NewMailgunMailer creates a Mailgun-backed notifier.
func NewMailgunMailer(cfg *config.EmailConfig) (*MailgunMailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mailgun API key is required")
	}
	if cfg.Domain == "" {
		return nil, fmt.Errorf("mailgun domain is required")
	}
	return &MailgunMailer{
		client: mailgun.NewMailgun(cfg.APIKey),
		domain: cfg.Domain,
		sender: cfg.Sender,
	}, nil
}

// Send renders the named template and delivers it to the recipient.
func (m *MailgunMailer) Send(ctx context.Context, template, to string, vars map[string]string) error {
	msg, err := render(template, vars)
	if err != nil {
		return err
	}

	mail := mailgun.NewMessage(m.domain, m.sender, msg.Subject, msg.Body, to)
	resp, err := m.client.Send(ctx, mail)
	if err != nil {
		return fmt.Errorf("send %s email: %w", template, err)
	}

	log.Debug().
		Str("template", template).
		Str("to", logutil.MaskEmail(to)).
		Str("message_id", resp.ID).
		Msg("Email sent")
	return nil
}

// LogMailer writes notifications to the log instead of sending them. Used
// in development and when no provider is configured.
type LogMailer struct{}

// NewLogMailer creates a log-only notifier.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// Send renders the named template and logs it.
func (m *LogMailer) Send(ctx context.Context, template, to string, vars map[string]string) error {
	msg, err := render(template, vars)
	if err != nil {
		return err
	}

	log.Info().
		Str("template", template).
		Str("to", logutil.MaskEmail(to)).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("Email delivery skipped (log provider)")
	return nil
}

var (
	_ auth.Notifier = (*MailgunMailer)(nil)
	_ auth.Notifier = (*LogMailer)(nil)
)
