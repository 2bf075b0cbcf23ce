package auth

import (
	"encoding/json"
	"time"
)

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// Login methods recorded on AuthLog rows.
const (
	LoginMethodPassword = "normal"
)

// Providers is the closed set of supported third-party identity providers.
var Providers = []string{"google", "facebook", "github", "linkedin"}

// User is the identity record. All storage access is scoped by BusinessID.
type User struct {
	ID                  string          `json:"id"`
	BusinessID          string          `json:"business_id"`
	Username            string          `json:"username"`
	Email               string          `json:"email"`
	PasswordHash        string          `json:"-"`
	Status              string          `json:"status"`
	FailedLoginAttempts int             `json:"-"`
	LockedAt            *time.Time      `json:"-"`
	PasswordChangedAt   time.Time       `json:"-"`
	EmailVerifiedAt     *time.Time      `json:"email_verified_at,omitempty"`
	OTPHash             string          `json:"-"`
	OTPExpiresAt        *time.Time      `json:"-"`
	TwoFactorEnabled    bool            `json:"two_factor_enabled"`
	TwoFactorSecret     string          `json:"-"`
	RecoveryCodes       map[string]bool `json:"-"` // code -> used
	SettingsOverride    json.RawMessage `json:"-"`
	SessionToken        string          `json:"-"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// EmailVerified reports whether the user's email address has been confirmed.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// AuthLog is one row per login event / session. Created at successful
// authentication; closed (Online=false, LogoutAt set) on explicit logout or
// forced termination. Never hard-deleted except via bulk account removal.
type AuthLog struct {
	ID             string     `json:"id"`
	BusinessID     string     `json:"business_id"`
	UserID         string     `json:"user_id"`
	UserAgent      string     `json:"user_agent"`
	IPAddress      string     `json:"ip_address"`
	SessionToken   string     `json:"-"`
	LoginAt        time.Time  `json:"login_at"`
	LogoutAt       *time.Time `json:"logout_at,omitempty"`
	LoginMethod    string     `json:"login_method"`
	Online         bool       `json:"online"`
	LastActivityAt time.Time  `json:"last_activity_at"`
}

// UserProviderLink links a User to a third-party identity.
// (Provider, ProviderUserID) is unique; at most one link exists per
// (user, provider) pair and updates overwrite rather than duplicate.
type UserProviderLink struct {
	ID             string     `json:"id"`
	BusinessID     string     `json:"business_id"`
	UserID         string     `json:"user_id"`
	Provider       string     `json:"provider"`
	ProviderUserID string     `json:"provider_user_id"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ProviderAssertion is a verified identity assertion obtained from a
// third-party provider. Performing the upstream OAuth exchange is the
// caller's responsibility; this core only consumes its result.
type ProviderAssertion struct {
	SubjectID      string     `json:"subject_id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`
}

// CreateUserRequest carries the fields needed to create a user row.
type CreateUserRequest struct {
	Username         string          `json:"username"`
	Email            string          `json:"email"`
	Status           string          `json:"status"`
	EmailVerifiedAt  *time.Time      `json:"-"`
	SettingsOverride json.RawMessage `json:"-"`
}

// RequestContext describes the transport-level context of one inbound
// request: who it came from and the session attached to it.
type RequestContext struct {
	BusinessID string
	IPAddress  string
	UserAgent  string
	Transport  TransportSession
}

// TransportSession abstracts the request-scoped transport session (cookie,
// header, ...) that carries the session token.
type TransportSession interface {
	// Set attaches the session token to the transport with the given expiry.
	Set(token string, expiry time.Duration) error
	// Invalidate detaches any session token from the transport.
	Invalidate() error
}

// LoginRequest is the credential login input.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by the login pipeline. Exactly one of
// SessionToken, RequiresEmailVerification or TwoFactorToken is meaningful.
type LoginResponse struct {
	User                      *User  `json:"user,omitempty"`
	SessionToken              string `json:"session_token,omitempty"`
	RequiresEmailVerification bool   `json:"requires_email_verification,omitempty"`
	RequiresTwoFactor         bool   `json:"requires_two_factor,omitempty"`
	TwoFactorToken            string `json:"two_factor_token,omitempty"`
}

// RegisterRequest is the self-registration input.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TwoFactorSetup is returned when enabling TOTP: the shared secret, a QR
// provisioning image and the single-use recovery codes, shown exactly once.
type TwoFactorSetup struct {
	Secret        string   `json:"secret"`
	QRCodeDataURI string   `json:"qr_code"`
	OTPAuthURI    string   `json:"otpauth_uri"`
	RecoveryCodes []string `json:"recovery_codes,omitempty"`
}
