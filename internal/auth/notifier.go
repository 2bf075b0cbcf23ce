package auth

import "context"

// Notification template names used by the engine.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplatePasswordReset = "password_reset"
)

// Notifier dispatches outbound notifications. Sends are fire-and-forget
// from the engine's perspective: failures are logged by the caller and
// never retried here.
type Notifier interface {
	Send(ctx context.Context, template, to string, vars map[string]string) error
}
