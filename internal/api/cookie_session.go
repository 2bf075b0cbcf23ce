package api

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/gatekeep-io/gatekeep/internal/auth"
)

// SessionCookieName carries the session token on browser clients. API
// clients may use the Authorization header instead.
const SessionCookieName = "gatekeep_session"

// cookieSession binds the auth engine's transport session to a fiber
// request's cookie jar.
type cookieSession struct {
	c      fiber.Ctx
	secure bool
}

func newCookieSession(c fiber.Ctx, secure bool) *cookieSession {
	return &cookieSession{c: c, secure: secure}
}

func (s *cookieSession) Set(token string, expiry time.Duration) error {
	s.c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(expiry.Seconds()),
		Secure:   s.secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return nil
}

func (s *cookieSession) Invalidate() error {
	s.c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return nil
}

var _ auth.TransportSession = (*cookieSession)(nil)
