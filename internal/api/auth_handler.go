// Package api exposes the authentication engine over HTTP.
package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/auth"
	"github.com/gatekeep-io/gatekeep/internal/config"
	"github.com/gatekeep-io/gatekeep/internal/middleware"
)

// BusinessIDHeader selects the tenant a request operates in.
const BusinessIDHeader = "X-Business-ID"

// DefaultBusinessID is used when a request carries no tenant header.
const DefaultBusinessID = "default"

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	svc          *auth.Service
	secureCookie bool
	diagnostics  bool
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *auth.Service, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		svc:          svc,
		secureCookie: cfg.Server.SecureCookie,
		diagnostics:  cfg.Auth.Diagnostics,
	}
}

// requestContext captures the transport-level context of one request.
func (h *AuthHandler) requestContext(c fiber.Ctx) auth.RequestContext {
	businessID := c.Get(BusinessIDHeader)
	if businessID == "" {
		businessID = DefaultBusinessID
	}
	return auth.RequestContext{
		BusinessID: businessID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
		Transport:  newCookieSession(c, h.secureCookie),
	}
}

// getSessionToken reads the session token from the cookie or, for API
// clients, the Authorization header.
func getSessionToken(c fiber.Ctx) string {
	if token := c.Cookies(SessionCookieName); token != "" {
		return token
	}
	token := c.Get("Authorization")
	if len(token) > 7 && token[:7] == "Bearer " {
		return token[7:]
	}
	return ""
}

// loginResponse shapes the three possible login outcomes uniformly.
func (h *AuthHandler) loginResponse(c fiber.Ctx, resp *auth.LoginResponse) error {
	switch {
	case resp.RequiresEmailVerification:
		return c.JSON(fiber.Map{
			"status":                      true,
			"requires_email_verification": true,
			"message":                     "A verification code has been sent to your email address",
		})
	case resp.RequiresTwoFactor:
		return c.JSON(fiber.Map{
			"status":              true,
			"requires_two_factor": true,
			"two_factor_token":    resp.TwoFactorToken,
		})
	default:
		return c.JSON(fiber.Map{
			"status":        true,
			"user":          resp.User,
			"session_token": resp.SessionToken,
		})
	}
}

// Login handles credential logins.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req auth.LoginRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	resp, err := h.svc.Login(c.RequestCtx(), req, h.requestContext(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return h.loginResponse(c, resp)
}

// VerifyTwoFactor completes a login parked behind a two-factor challenge.
// POST /api/v1/auth/login/2fa
func (h *AuthHandler) VerifyTwoFactor(c fiber.Ctx) error {
	var req struct {
		TwoFactorToken string `json:"two_factor_token"`
		Code           string `json:"code"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	resp, err := h.svc.VerifyTwoFactor(c.RequestCtx(), req.TwoFactorToken, req.Code, h.requestContext(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return h.loginResponse(c, resp)
}

// Register handles self-registration.
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var req auth.RegisterRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	resp, err := h.svc.Register(c.RequestCtx(), req, h.requestContext(c))
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":                      true,
		"user":                        resp.User,
		"requires_email_verification": true,
		"message":                     "A verification code has been sent to your email address",
	})
}

// VerifyEmail confirms an emailed verification code.
// POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	resp, err := h.svc.VerifyEmail(c.RequestCtx(), req.Email, req.Code, h.requestContext(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return h.loginResponse(c, resp)
}

// ResendVerification re-issues the email verification code.
// POST /api/v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(c fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	if err := h.svc.ResendVerificationCode(c.RequestCtx(), req.Email, h.requestContext(c)); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  true,
		"message": "If the address exists, a verification code has been sent",
	})
}

// RequestPasswordReset starts the password reset flow.
// POST /api/v1/auth/password-reset/request
func (h *AuthHandler) RequestPasswordReset(c fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	if err := h.svc.RequestPasswordReset(c.RequestCtx(), req.Email, h.requestContext(c)); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  true,
		"message": "If the address exists, a reset code has been sent",
	})
}

// ConfirmPasswordReset completes the password reset flow.
// POST /api/v1/auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(c fiber.Ctx) error {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	if err := h.svc.ConfirmPasswordReset(c.RequestCtx(), req.Email, req.Code, req.NewPassword, h.requestContext(c)); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  true,
		"message": "Password has been reset",
	})
}

// SocialSignIn signs in with a verified provider assertion.
// POST /api/v1/auth/social/:provider
func (h *AuthHandler) SocialSignIn(c fiber.Ctx) error {
	provider := c.Params("provider")

	var assertion auth.ProviderAssertion
	if err := c.Bind().Body(&assertion); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	resp, err := h.svc.SocialSignIn(c.RequestCtx(), provider, assertion, h.requestContext(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return h.loginResponse(c, resp)
}

// Logout signs out the current device.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	claims := middleware.ClaimsFromContext(c)
	if err := h.svc.Logout(c.RequestCtx(), claims, getSessionToken(c), h.requestContext(c)); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  true,
		"message": "Signed out",
	})
}

// LogoutAll signs out every device for the account.
// POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(c fiber.Ctx) error {
	claims := middleware.ClaimsFromContext(c)
	if err := h.svc.LogoutAll(c.RequestCtx(), claims, h.requestContext(c)); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  true,
		"message": "Signed out on all devices",
	})
}

// Sessions lists the account's online sessions.
// GET /api/v1/auth/sessions
func (h *AuthHandler) Sessions(c fiber.Ctx) error {
	claims := middleware.ClaimsFromContext(c)
	sessions, err := h.svc.Sessions(c.RequestCtx(), claims)
	if err != nil {
		return h.respondError(c, err)
	}
	if sessions == nil {
		sessions = []*auth.AuthLog{}
	}
	return c.JSON(fiber.Map{
		"status":   true,
		"sessions": sessions,
	})
}

// Me returns the authenticated user.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	return c.JSON(fiber.Map{
		"status": true,
		"user":   user,
	})
}

// EnableTwoFactor begins TOTP enrollment.
// POST /api/v1/auth/2fa/enable
func (h *AuthHandler) EnableTwoFactor(c fiber.Ctx) error {
	claims := middleware.ClaimsFromContext(c)
	setup, err := h.svc.EnableTwoFactor(c.RequestCtx(), claims.BusinessID, claims.UserID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":      true,
		"secret":      setup.Secret,
		"qr_code":     setup.QRCodeDataURI,
		"otpauth_uri": setup.OTPAuthURI,
	})
}

// ConfirmTwoFactor finishes TOTP enrollment. The recovery codes in the
// response are shown exactly once.
// POST /api/v1/auth/2fa/confirm
func (h *AuthHandler) ConfirmTwoFactor(c fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	claims := middleware.ClaimsFromContext(c)
	setup, err := h.svc.ConfirmTwoFactor(c.RequestCtx(), claims.BusinessID, claims.UserID, req.Code)
	if err != nil {
		return h.respondError(c, err)
	}

	log.Info().Str("user_id", claims.UserID).Msg("Two-factor authentication enabled")
	return c.JSON(fiber.Map{
		"status":         true,
		"recovery_codes": setup.RecoveryCodes,
		"message":        "Store these recovery codes somewhere safe; they will not be shown again",
	})
}

// DisableTwoFactor turns TOTP off after one final code check.
// POST /api/v1/auth/2fa/disable
func (h *AuthHandler) DisableTwoFactor(c fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "VALIDATION_FAILED",
		})
	}

	claims := middleware.ClaimsFromContext(c)
	if err := h.svc.DisableTwoFactor(c.RequestCtx(), claims.BusinessID, claims.UserID, req.Code); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  true,
		"message": "Two-factor authentication disabled",
	})
}
