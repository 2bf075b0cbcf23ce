package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/auth"
	"github.com/gatekeep-io/gatekeep/internal/config"
	"github.com/gatekeep-io/gatekeep/internal/middleware"
)

// Server is the HTTP surface of the authentication engine.
type Server struct {
	app *fiber.App
	cfg *config.Config
}

// NewServer builds the fiber application with its middleware and routes.
func NewServer(cfg *config.Config, svc *auth.Service) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "gatekeep",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.RequestLogger())

	handler := NewAuthHandler(svc, cfg)
	registerRoutes(app, handler, svc)

	return &Server{app: app, cfg: cfg}
}

func registerRoutes(app *fiber.App, h *AuthHandler, svc *auth.Service) {
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	group := app.Group("/api/v1/auth")
	group.Post("/login", h.Login)
	group.Post("/login/2fa", h.VerifyTwoFactor)
	group.Post("/register", h.Register)
	group.Post("/verify-email", h.VerifyEmail)
	group.Post("/resend-verification", h.ResendVerification)
	group.Post("/password-reset/request", h.RequestPasswordReset)
	group.Post("/password-reset/confirm", h.ConfirmPasswordReset)
	group.Post("/social/:provider", h.SocialSignIn)

	authed := group.Group("", middleware.RequireAuth(svc, SessionCookieName))
	authed.Get("/me", h.Me)
	authed.Get("/sessions", h.Sessions)
	authed.Post("/logout", h.Logout)
	authed.Post("/logout-all", h.LogoutAll)
	authed.Post("/2fa/enable", h.EnableTwoFactor)
	authed.Post("/2fa/confirm", h.ConfirmTwoFactor)
	authed.Post("/2fa/disable", h.DisableTwoFactor)
}

// App exposes the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until the listener fails or Shutdown is called.
func (s *Server) Listen() error {
	log.Info().Str("address", s.cfg.Server.Address).Msg("HTTP server listening")
	return s.app.Listen(s.cfg.Server.Address)
}

// Shutdown gracefully drains and stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
