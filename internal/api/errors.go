package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/auth"
	"github.com/gatekeep-io/gatekeep/internal/ratelimit"
)

// respondError translates an auth engine error into the uniform JSON error
// shape. Password expiry is deliberately a 200: the credentials were valid
// and the client is redirected into the reset flow rather than shown a
// login failure.
func (h *AuthHandler) respondError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrPasswordExpired):
		return c.JSON(fiber.Map{
			"status":   false,
			"code":     "PASSWORD_EXPIRED",
			"error":    "Password has expired and must be reset",
			"redirect": "/password-reset",
		})

	case errors.Is(err, auth.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "VALIDATION_FAILED",
		})

	case errors.Is(err, ratelimit.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many attempts, please try again later",
			"code":  "RATE_LIMITED",
		})

	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid username or password",
			"code":  "INVALID_CREDENTIALS",
		})

	case errors.Is(err, auth.ErrAccountLocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Account locked due to too many failed login attempts",
			"code":  "ACCOUNT_LOCKED",
		})

	case errors.Is(err, auth.ErrOTPInvalidOrExpired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Verification code is invalid or has expired",
			"code":  "OTP_INVALID",
		})

	case errors.Is(err, auth.ErrTwoFactorInvalid):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Two-factor code is invalid",
			"code":  "TWO_FACTOR_INVALID",
		})

	case errors.Is(err, auth.ErrInvalidProvider):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported identity provider",
			"code":  "INVALID_PROVIDER",
		})

	case errors.Is(err, auth.ErrSocialRegistrationDisabled):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Registration via this provider is disabled",
			"code":  "SOCIAL_REGISTRATION_DISABLED",
		})

	case errors.Is(err, auth.ErrSessionLimitExceeded):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Maximum number of concurrent sessions reached",
			"code":  "SESSION_LIMIT_EXCEEDED",
		})

	case errors.Is(err, auth.ErrInvalidToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired session",
			"code":  "UNAUTHORIZED",
		})
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")

	// Storage detail leaks schema and infrastructure names; only echo it
	// when diagnostics mode is explicitly on.
	message := "Internal server error"
	if h.diagnostics {
		message = err.Error()
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
		"code":  "INTERNAL_ERROR",
	})
}
