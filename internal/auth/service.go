// Package auth implements the authentication and session-lifecycle engine:
// credential verification with brute-force lockout, OTP email verification,
// TOTP two-factor authentication with single-use recovery codes, third-party
// identity linking, and multi-device session concurrency control.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/cache"
	"github.com/gatekeep-io/gatekeep/internal/config"
	"github.com/gatekeep-io/gatekeep/internal/logutil"
	"github.com/gatekeep-io/gatekeep/internal/ratelimit"
)

// Cache key prefixes.
const (
	twoFactorPendingPrefix = "2fa:pending:"
	twoFactorSetupPrefix   = "2fa:setup:"
	otpThrottlePrefix      = "otp:throttle:"
)

// twoFactorPendingTTL bounds how long a passed credential check may wait
// for its second factor.
const twoFactorPendingTTL = 5 * time.Minute

// Service is the authentication engine facade. It owns the login pipeline
// (rate limiter -> credential gate -> OTP / two-factor branch -> session
// manager) plus registration, email verification, password reset and social
// sign-in.
type Service struct {
	users     UserRepositoryInterface
	authLog   AuthLogRepositoryInterface
	links     ProviderLinkRepositoryInterface
	store     cache.Store
	limiter   *ratelimit.Limiter
	hasher    *PasswordHasher
	resolver  *SettingsResolver
	gate      *CredentialGate
	otp       *OtpService
	twoFactor *TwoFactorService
	social    *SocialIdentityLinker
	sessions  *SessionManager
	tokens    *JWTManager
	notifier  Notifier
	cfg       *config.AuthConfig
	now       func() time.Time
}

// NewService wires the engine from its injected collaborators.
func NewService(
	users UserRepositoryInterface,
	authLog AuthLogRepositoryInterface,
	links ProviderLinkRepositoryInterface,
	store cache.Store,
	notifier Notifier,
	cfg *config.AuthConfig,
) *Service {
	defaults := DefaultSettings()
	for _, provider := range cfg.SocialLogins {
		defaults.SocialLogins.Enable(provider)
	}
	resolver := NewSettingsResolver(defaults)
	hasher := NewPasswordHasherWithConfig(PasswordHasherConfig{MinLength: cfg.PasswordMinLen, Cost: cfg.BcryptCost})
	tokens := NewJWTManager(cfg.JWTSecret, cfg.TokenIssuer)

	return &Service{
		users:     users,
		authLog:   authLog,
		links:     links,
		store:     store,
		limiter:   ratelimit.New(store, "login", defaults.RateLimitAttempts, defaults.RateLimitWindow()),
		hasher:    hasher,
		resolver:  resolver,
		gate:      NewCredentialGate(users, hasher, resolver),
		otp:       NewOtpService(users, cfg.OTPExpiry),
		twoFactor: NewTwoFactorService(users),
		social:    NewSocialIdentityLinker(users, links, hasher, resolver),
		sessions:  NewSessionManager(users, authLog, tokens),
		tokens:    tokens,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Login runs the credential login pipeline.
func (s *Service) Login(ctx context.Context, req LoginRequest, rc RequestContext) (*LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	if err := s.limiter.Attempt(ctx, rc.IPAddress); err != nil {
		return nil, err
	}

	user, settings, err := s.gate.Authenticate(ctx, rc.BusinessID, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	// Credentials are good: the origin is no longer suspect
	if err := s.limiter.Reset(ctx, rc.IPAddress); err != nil {
		log.Warn().Err(err).Str("origin", rc.IPAddress).Msg("Failed to clear rate limit counter")
	}

	return s.finishLogin(ctx, user, settings, LoginMethodPassword, rc)
}

// finishLogin is the branch point shared by credential and social logins:
// unverified email detours through OTP, an enabled second factor parks the
// login behind a pending challenge, otherwise the session is established.
func (s *Service) finishLogin(ctx context.Context, user *User, settings Settings, method string, rc RequestContext) (*LoginResponse, error) {
	if !user.EmailVerified() {
		if err := s.sendVerificationCode(ctx, user); err != nil {
			return nil, err
		}
		return &LoginResponse{User: user, RequiresEmailVerification: true}, nil
	}

	if user.TwoFactorEnabled {
		challenge, err := s.createTwoFactorChallenge(ctx, user, method, rc)
		if err != nil {
			return nil, err
		}
		return &LoginResponse{RequiresTwoFactor: true, TwoFactorToken: challenge}, nil
	}

	token, err := s.sessions.CompleteLogin(ctx, user, settings, method, rc)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{User: user, SessionToken: token}, nil
}

// twoFactorChallenge is the cached state between a passed credential check
// and its second factor.
type twoFactorChallenge struct {
	BusinessID string `json:"business_id"`
	UserID     string `json:"user_id"`
	Method     string `json:"method"`
}

func (s *Service) createTwoFactorChallenge(ctx context.Context, user *User, method string, rc RequestContext) (string, error) {
	challenge := uuid.New().String()
	payload, _ := json.Marshal(twoFactorChallenge{
		BusinessID: user.BusinessID,
		UserID:     user.ID,
		Method:     method,
	})
	if err := s.store.Put(ctx, twoFactorPendingPrefix+challenge, string(payload), twoFactorPendingTTL); err != nil {
		return "", storageErr("two-factor challenge store", err)
	}
	return challenge, nil
}

// VerifyTwoFactor completes a login parked behind a two-factor challenge.
// The code may be a TOTP code or an unused recovery code. Attempts count
// against the origin's rate-limit window like any other login-class request.
func (s *Service) VerifyTwoFactor(ctx context.Context, challengeToken, code string, rc RequestContext) (*LoginResponse, error) {
	if challengeToken == "" || code == "" {
		return nil, fmt.Errorf("%w: challenge token and code are required", ErrValidation)
	}
	if err := s.limiter.Attempt(ctx, rc.IPAddress); err != nil {
		return nil, err
	}

	payload, err := s.store.Get(ctx, twoFactorPendingPrefix+challengeToken)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrTwoFactorInvalid
		}
		return nil, storageErr("two-factor challenge lookup", err)
	}

	var challenge twoFactorChallenge
	if err := json.Unmarshal([]byte(payload), &challenge); err != nil {
		return nil, ErrTwoFactorInvalid
	}

	user, err := s.users.GetByID(ctx, challenge.BusinessID, challenge.UserID)
	if err != nil {
		return nil, ErrTwoFactorInvalid
	}

	ok, err := s.twoFactor.Verify(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Challenge stays live until its TTL so the user may retry
		return nil, ErrTwoFactorInvalid
	}

	if err := s.store.Forget(ctx, twoFactorPendingPrefix+challengeToken); err != nil {
		log.Warn().Err(err).Msg("Failed to discard consumed two-factor challenge")
	}
	if err := s.limiter.Reset(ctx, rc.IPAddress); err != nil {
		log.Warn().Err(err).Str("origin", rc.IPAddress).Msg("Failed to clear rate limit counter")
	}

	settings := s.resolver.Resolve(user)
	token, err := s.sessions.CompleteLogin(ctx, user, settings, challenge.Method, rc)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{User: user, SessionToken: token}, nil
}

// Register creates a new account and starts email verification. The created
// user row is rolled back if OTP issuance fails, so no unverifiable account
// is left behind.
func (s *Service) Register(ctx context.Context, req RegisterRequest, rc RequestContext) (*LoginResponse, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := s.hasher.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, rc.BusinessID, CreateUserRequest{
		Username: req.Username,
		Email:    req.Email,
		Status:   UserStatusActive,
	}, passwordHash)
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, fmt.Errorf("%w: username or email already in use", ErrValidation)
		}
		return nil, storageErr("user create", err)
	}

	if err := s.sendVerificationCode(ctx, user); err != nil {
		if delErr := s.users.Delete(ctx, rc.BusinessID, user.ID); delErr != nil {
			log.Error().Err(delErr).Str("user", logutil.MaskEmail(user.Email)).Msg("Rollback of unverifiable registration failed")
		}
		return nil, err
	}

	log.Info().Str("user", logutil.MaskEmail(user.Email)).Msg("Account registered, verification code sent")
	return &LoginResponse{User: user, RequiresEmailVerification: true}, nil
}

// sendVerificationCode issues an OTP and emails it. Notification delivery
// is fire-and-forget; only OTP persistence can fail the operation.
func (s *Service) sendVerificationCode(ctx context.Context, user *User) error {
	code, err := s.otp.Issue(ctx, user)
	if err != nil {
		return err
	}

	if err := s.notifier.Send(ctx, TemplateVerifyEmail, user.Email, map[string]string{
		"username": user.Username,
		"code":     code,
		"minutes":  fmt.Sprintf("%d", int(s.cfg.OTPExpiry.Minutes())),
	}); err != nil {
		log.Error().Err(err).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to send verification email")
	}
	return nil
}

// VerifyEmail confirms an emailed OTP code and, on success, marks the email
// verified, clears the code and establishes a session. Attempts count
// against the origin's rate-limit window so the 6-digit space cannot be
// swept inside the code's lifetime.
func (s *Service) VerifyEmail(ctx context.Context, email, code string, rc RequestContext) (*LoginResponse, error) {
	if email == "" || code == "" {
		return nil, fmt.Errorf("%w: email and code are required", ErrValidation)
	}
	if err := s.limiter.Attempt(ctx, rc.IPAddress); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, rc.BusinessID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrOTPInvalidOrExpired
		}
		return nil, storageErr("user lookup", err)
	}

	if !s.otp.Verify(user, code) {
		return nil, ErrOTPInvalidOrExpired
	}
	if err := s.limiter.Reset(ctx, rc.IPAddress); err != nil {
		log.Warn().Err(err).Str("origin", rc.IPAddress).Msg("Failed to clear rate limit counter")
	}
	if err := s.otp.Clear(ctx, user); err != nil {
		return nil, err
	}
	if err := s.users.VerifyEmail(ctx, rc.BusinessID, user.ID); err != nil {
		return nil, storageErr("email verify", err)
	}
	now := s.now()
	user.EmailVerifiedAt = &now

	settings := s.resolver.Resolve(user)
	if user.TwoFactorEnabled {
		challenge, err := s.createTwoFactorChallenge(ctx, user, LoginMethodPassword, rc)
		if err != nil {
			return nil, err
		}
		return &LoginResponse{RequiresTwoFactor: true, TwoFactorToken: challenge}, nil
	}

	token, err := s.sessions.CompleteLogin(ctx, user, settings, LoginMethodPassword, rc)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{User: user, SessionToken: token}, nil
}

// ResendVerificationCode re-issues the email OTP, throttled per address so
// issuance cannot be spammed. Unknown addresses are not revealed.
func (s *Service) ResendVerificationCode(ctx context.Context, email string, rc RequestContext) error {
	if err := ValidateEmail(email); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := s.throttleOTP(ctx, email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, rc.BusinessID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return storageErr("user lookup", err)
	}
	if user.EmailVerified() {
		return nil
	}
	return s.sendVerificationCode(ctx, user)
}

// RequestPasswordReset issues a reset OTP and emails it. The response never
// reveals whether the address exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, rc RequestContext) error {
	if err := ValidateEmail(email); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := s.throttleOTP(ctx, email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, rc.BusinessID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return storageErr("user lookup", err)
	}

	code, err := s.otp.Issue(ctx, user)
	if err != nil {
		return err
	}
	if err := s.notifier.Send(ctx, TemplatePasswordReset, user.Email, map[string]string{
		"username": user.Username,
		"code":     code,
		"minutes":  fmt.Sprintf("%d", int(s.cfg.OTPExpiry.Minutes())),
	}); err != nil {
		log.Error().Err(err).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to send password reset email")
	}
	return nil
}

// ConfirmPasswordReset verifies the reset OTP and replaces the password.
// When the auto-logout setting is on, every device is signed out. Attempts
// count against the origin's rate-limit window.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string, rc RequestContext) error {
	if err := s.hasher.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := s.limiter.Attempt(ctx, rc.IPAddress); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, rc.BusinessID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrOTPInvalidOrExpired
		}
		return storageErr("user lookup", err)
	}

	if !s.otp.Verify(user, code) {
		return ErrOTPInvalidOrExpired
	}
	if err := s.limiter.Reset(ctx, rc.IPAddress); err != nil {
		log.Warn().Err(err).Str("origin", rc.IPAddress).Msg("Failed to clear rate limit counter")
	}
	if err := s.otp.Clear(ctx, user); err != nil {
		return err
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, rc.BusinessID, user.ID, passwordHash); err != nil {
		return storageErr("password update", err)
	}

	settings := s.resolver.Resolve(user)
	if settings.AutoLogoutOnPasswordChange {
		if err := s.sessions.LogoutAllDevices(ctx, rc.BusinessID, user.ID, rc); err != nil {
			return err
		}
	}

	log.Info().Str("user", logutil.MaskEmail(user.Email)).Msg("Password reset completed")
	return nil
}

// throttleOTP enforces the per-address resend delay.
func (s *Service) throttleOTP(ctx context.Context, email string) error {
	key := otpThrottlePrefix + email
	if _, err := s.store.Get(ctx, key); err == nil {
		return ratelimit.ErrRateLimited
	}
	if err := s.store.Put(ctx, key, "1", s.cfg.OTPResendDelay); err != nil {
		log.Warn().Err(err).Msg("Failed to record OTP throttle")
	}
	return nil
}

// SocialSignIn resolves a provider assertion to a local account and rejoins
// the login branch point.
func (s *Service) SocialSignIn(ctx context.Context, provider string, assertion ProviderAssertion, rc RequestContext) (*LoginResponse, error) {
	user, err := s.social.Resolve(ctx, rc.BusinessID, provider, assertion)
	if err != nil {
		return nil, err
	}

	settings := s.resolver.Resolve(user)
	return s.finishLogin(ctx, user, settings, provider, rc)
}

// EnableTwoFactor begins TOTP enrollment: a fresh secret and QR code are
// returned and parked until ConfirmTwoFactor proves the authenticator works.
func (s *Service) EnableTwoFactor(ctx context.Context, businessID, userID string) (*TwoFactorSetup, error) {
	user, err := s.users.GetByID(ctx, businessID, userID)
	if err != nil {
		return nil, storageErr("user lookup", err)
	}
	if user.TwoFactorEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled", ErrValidation)
	}

	secret, qr, uri, err := GenerateTOTPSecret(s.cfg.TOTPIssuer, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, twoFactorSetupPrefix+userID, secret, s.cfg.OTPExpiry); err != nil {
		return nil, storageErr("two-factor setup store", err)
	}

	return &TwoFactorSetup{Secret: secret, QRCodeDataURI: qr, OTPAuthURI: uri}, nil
}

// ConfirmTwoFactor finishes enrollment: the submitted code must match the
// parked secret, then the secret and fresh recovery codes are persisted.
// The recovery codes are returned exactly once.
func (s *Service) ConfirmTwoFactor(ctx context.Context, businessID, userID, code string) (*TwoFactorSetup, error) {
	secret, err := s.store.Get(ctx, twoFactorSetupPrefix+userID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrOTPInvalidOrExpired
		}
		return nil, storageErr("two-factor setup lookup", err)
	}

	valid, err := VerifyTOTPCode(code, secret)
	if err != nil || !valid {
		return nil, ErrTwoFactorInvalid
	}

	codes, state, err := GenerateRecoveryCodes(10)
	if err != nil {
		return nil, fmt.Errorf("generate recovery codes: %w", err)
	}
	if err := s.users.SetTwoFactor(ctx, businessID, userID, true, secret, state); err != nil {
		return nil, storageErr("two-factor enable", err)
	}
	if err := s.store.Forget(ctx, twoFactorSetupPrefix+userID); err != nil {
		log.Warn().Err(err).Msg("Failed to discard two-factor setup secret")
	}

	return &TwoFactorSetup{Secret: secret, RecoveryCodes: codes}, nil
}

// DisableTwoFactor turns TOTP off after one final code check.
func (s *Service) DisableTwoFactor(ctx context.Context, businessID, userID, code string) error {
	user, err := s.users.GetByID(ctx, businessID, userID)
	if err != nil {
		return storageErr("user lookup", err)
	}
	if !user.TwoFactorEnabled {
		return nil
	}

	ok, err := s.twoFactor.Verify(ctx, user, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTwoFactorInvalid
	}

	if err := s.users.SetTwoFactor(ctx, businessID, userID, false, "", nil); err != nil {
		return storageErr("two-factor disable", err)
	}
	return nil
}

// Authenticate validates a session token for an authenticated request. The
// token must parse, the user must exist and the session's audit row must
// still be online; last activity is stamped as a side effect.
func (s *Service) Authenticate(ctx context.Context, token string) (*SessionClaims, *User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.BusinessID, claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	if err := s.authLog.TouchActivity(ctx, claims.BusinessID, token, s.now()); err != nil {
		if errors.Is(err, ErrSessionRevoked) {
			return nil, nil, ErrInvalidToken
		}
		log.Debug().Err(err).Str("token", logutil.MaskToken(token)).Msg("Failed to touch session activity")
	}

	return claims, user, nil
}

// Logout signs out the current device.
func (s *Service) Logout(ctx context.Context, claims *SessionClaims, token string, rc RequestContext) error {
	return s.sessions.LogoutCurrentDevice(ctx, claims.BusinessID, claims.UserID, token, rc)
}

// LogoutAll signs out every device for the account.
func (s *Service) LogoutAll(ctx context.Context, claims *SessionClaims, rc RequestContext) error {
	return s.sessions.LogoutAllDevices(ctx, claims.BusinessID, claims.UserID, rc)
}

// Sessions lists the account's online sessions.
func (s *Service) Sessions(ctx context.Context, claims *SessionClaims) ([]*AuthLog, error) {
	return s.sessions.ActiveSessions(ctx, claims.BusinessID, claims.UserID)
}

// Diagnostics reports whether developer diagnostics mode is active.
func (s *Service) Diagnostics() bool {
	return s.cfg.Diagnostics
}
