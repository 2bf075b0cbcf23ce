// Package middleware contains the fiber middleware shared by the HTTP
// surface: session authentication and request logging.
package middleware

import (
	"github.com/gofiber/fiber/v3"

	"github.com/gatekeep-io/gatekeep/internal/auth"
)

// Locals keys for the authenticated request state.
const (
	localsClaimsKey = "gatekeep_claims"
	localsUserKey   = "gatekeep_user"
	localsTokenKey  = "gatekeep_token"
)

// RequireAuth validates the request's session token and stores the claims
// and user in locals. The token comes from the session cookie or, for API
// clients, a bearer Authorization header.
func RequireAuth(svc *auth.Service, cookieName string) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := c.Cookies(cookieName)
		if token == "" {
			header := c.Get("Authorization")
			if len(header) > 7 && header[:7] == "Bearer " {
				token = header[7:]
			}
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
		}

		claims, user, err := svc.Authenticate(c.RequestCtx(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired session",
				"code":  "UNAUTHORIZED",
			})
		}

		c.Locals(localsClaimsKey, claims)
		c.Locals(localsUserKey, user)
		c.Locals(localsTokenKey, token)
		return c.Next()
	}
}

// ClaimsFromContext returns the session claims set by RequireAuth, or nil.
func ClaimsFromContext(c fiber.Ctx) *auth.SessionClaims {
	claims, _ := c.Locals(localsClaimsKey).(*auth.SessionClaims)
	return claims
}

// UserFromContext returns the authenticated user set by RequireAuth, or nil.
func UserFromContext(c fiber.Ctx) *auth.User {
	user, _ := c.Locals(localsUserKey).(*auth.User)
	return user
}

// TokenFromContext returns the raw session token set by RequireAuth.
func TokenFromContext(c fiber.Ctx) string {
	token, _ := c.Locals(localsTokenKey).(string)
	return token
}
