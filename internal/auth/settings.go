package auth

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// SocialLogins holds the per-provider self-registration/sign-in toggles.
type SocialLogins struct {
	Google   bool `json:"google"`
	Facebook bool `json:"facebook"`
	GitHub   bool `json:"github"`
	LinkedIn bool `json:"linkedin"`
}

// Enabled reports the toggle for a provider name from the closed set.
func (s SocialLogins) Enabled(provider string) bool {
	switch provider {
	case "google":
		return s.Google
	case "facebook":
		return s.Facebook
	case "github":
		return s.GitHub
	case "linkedin":
		return s.LinkedIn
	default:
		return false
	}
}

// Enable switches the toggle for a provider name on. Names outside the
// closed set are ignored.
func (s *SocialLogins) Enable(provider string) {
	switch provider {
	case "google":
		s.Google = true
	case "facebook":
		s.Facebook = true
	case "github":
		s.GitHub = true
	case "linkedin":
		s.LinkedIn = true
	}
}

// Settings is the fully resolved, typed configuration view a consumer
// observes: the fixed defaults with the user's stored override applied.
// Consumers must never read the raw override alone.
type Settings struct {
	SocialLogins               SocialLogins `json:"social_logins"`
	MaxLoginLimit              int          `json:"max_login_limit"`
	AutoLogoutOnPasswordChange bool         `json:"auto_logout_on_password_change"`
	FailedLoginAttemptsLimit   int          `json:"failed_login_attempts_limit"`
	LockoutMinutes             int          `json:"lockout_minutes"`
	PasswordRotationDays       int          `json:"password_rotation_days"`
	SessionTimeoutMinutes      int          `json:"session_timeout_minutes"`
	RateLimitAttempts          int          `json:"rate_limit_attempts"`
	RateLimitWindowSeconds     int          `json:"rate_limit_window_seconds"`
}

// LockoutDuration returns the lockout window as a duration.
func (s Settings) LockoutDuration() time.Duration {
	return time.Duration(s.LockoutMinutes) * time.Minute
}

// PasswordMaxAge returns the password rotation policy as a duration.
func (s Settings) PasswordMaxAge() time.Duration {
	return time.Duration(s.PasswordRotationDays) * 24 * time.Hour
}

// SessionTimeout returns the transport session expiry as a duration.
func (s Settings) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutMinutes) * time.Minute
}

// RateLimitWindow returns the rate-limit window as a duration.
func (s Settings) RateLimitWindow() time.Duration {
	return time.Duration(s.RateLimitWindowSeconds) * time.Second
}

// DefaultSettings returns the fixed default configuration. Overrides are
// merged into a fresh copy at resolution time; the defaults themselves are
// never mutated.
func DefaultSettings() Settings {
	return Settings{
		SocialLogins:               SocialLogins{},
		MaxLoginLimit:              3,
		AutoLogoutOnPasswordChange: true,
		FailedLoginAttemptsLimit:   3,
		LockoutMinutes:             5,
		PasswordRotationDays:       90,
		SessionTimeoutMinutes:      120,
		RateLimitAttempts:          5,
		RateLimitWindowSeconds:     60,
	}
}

// settingsOverride is the sparse shape parsed from a user's stored settings
// blob. Unknown keys are ignored; only the explicit fields below can
// reshape behavior.
type settingsOverride struct {
	SocialLogins *struct {
		Google   *bool `json:"google"`
		Facebook *bool `json:"facebook"`
		GitHub   *bool `json:"github"`
		LinkedIn *bool `json:"linkedin"`
	} `json:"social_logins"`
	MaxLoginLimit              *int  `json:"max_login_limit"`
	AutoLogoutOnPasswordChange *bool `json:"auto_logout_on_password_change"`
	FailedLoginAttemptsLimit   *int  `json:"failed_login_attempts_limit"`
	LockoutMinutes             *int  `json:"lockout_minutes"`
	PasswordRotationDays       *int  `json:"password_rotation_days"`
	SessionTimeoutMinutes      *int  `json:"session_timeout_minutes"`
	RateLimitAttempts          *int  `json:"rate_limit_attempts"`
	RateLimitWindowSeconds     *int  `json:"rate_limit_window_seconds"`
}

// SettingsResolver merges a user's stored settings override onto the fixed
// defaults.
type SettingsResolver struct {
	defaults Settings
}

// NewSettingsResolver creates a resolver over the given defaults.
func NewSettingsResolver(defaults Settings) *SettingsResolver {
	return &SettingsResolver{defaults: defaults}
}

// Defaults returns a copy of the fixed default configuration.
func (r *SettingsResolver) Defaults() Settings {
	return r.defaults
}

// Resolve returns the complete configuration for user. An absent or
// malformed override yields the defaults; resolution never fails.
func (r *SettingsResolver) Resolve(user *User) Settings {
	resolved := r.defaults
	if user == nil || len(user.SettingsOverride) == 0 {
		return resolved
	}

	var ov settingsOverride
	if err := json.Unmarshal(user.SettingsOverride, &ov); err != nil {
		log.Warn().Str("user_id", user.ID).Err(err).Msg("Malformed settings override, using defaults")
		return resolved
	}

	if ov.SocialLogins != nil {
		if ov.SocialLogins.Google != nil {
			resolved.SocialLogins.Google = *ov.SocialLogins.Google
		}
		if ov.SocialLogins.Facebook != nil {
			resolved.SocialLogins.Facebook = *ov.SocialLogins.Facebook
		}
		if ov.SocialLogins.GitHub != nil {
			resolved.SocialLogins.GitHub = *ov.SocialLogins.GitHub
		}
		if ov.SocialLogins.LinkedIn != nil {
			resolved.SocialLogins.LinkedIn = *ov.SocialLogins.LinkedIn
		}
	}
	if ov.MaxLoginLimit != nil {
		resolved.MaxLoginLimit = *ov.MaxLoginLimit
	}
	if ov.AutoLogoutOnPasswordChange != nil {
		resolved.AutoLogoutOnPasswordChange = *ov.AutoLogoutOnPasswordChange
	}
	if ov.FailedLoginAttemptsLimit != nil {
		resolved.FailedLoginAttemptsLimit = *ov.FailedLoginAttemptsLimit
	}
	if ov.LockoutMinutes != nil {
		resolved.LockoutMinutes = *ov.LockoutMinutes
	}
	if ov.PasswordRotationDays != nil {
		resolved.PasswordRotationDays = *ov.PasswordRotationDays
	}
	if ov.SessionTimeoutMinutes != nil {
		resolved.SessionTimeoutMinutes = *ov.SessionTimeoutMinutes
	}
	if ov.RateLimitAttempts != nil {
		resolved.RateLimitAttempts = *ov.RateLimitAttempts
	}
	if ov.RateLimitWindowSeconds != nil {
		resolved.RateLimitWindowSeconds = *ov.RateLimitWindowSeconds
	}

	return resolved
}

// ProviderOverride returns a settings override blob enabling exactly one
// social provider, used when provisioning accounts from a social assertion.
func ProviderOverride(provider string) json.RawMessage {
	blob, _ := json.Marshal(map[string]map[string]bool{
		"social_logins": {provider: true},
	})
	return blob
}

// MergeProviderOverride enables a social provider in an existing settings
// override blob, preserving every other key. A missing or malformed blob is
// replaced by a fresh single-provider override.
func MergeProviderOverride(existing json.RawMessage, provider string) json.RawMessage {
	if len(existing) == 0 {
		return ProviderOverride(provider)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(existing, &root); err != nil {
		return ProviderOverride(provider)
	}

	social := map[string]json.RawMessage{}
	if raw, ok := root["social_logins"]; ok {
		if err := json.Unmarshal(raw, &social); err != nil {
			social = map[string]json.RawMessage{}
		}
	}
	social[provider] = json.RawMessage("true")

	socialBlob, _ := json.Marshal(social)
	root["social_logins"] = socialBlob
	blob, _ := json.Marshal(root)
	return blob
}
