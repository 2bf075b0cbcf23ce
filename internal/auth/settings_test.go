package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsResolver_NoOverride(t *testing.T) {
	resolver := NewSettingsResolver(DefaultSettings())

	tests := []struct {
		name string
		user *User
	}{
		{name: "nil user", user: nil},
		{name: "empty override", user: &User{ID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Resolve(tt.user)
			assert.Equal(t, DefaultSettings(), got)
		})
	}
}

func TestSettingsResolver_PartialOverride(t *testing.T) {
	resolver := NewSettingsResolver(DefaultSettings())

	user := &User{
		ID:               "u1",
		SettingsOverride: json.RawMessage(`{"max_login_limit": 5, "social_logins": {"google": true}}`),
	}

	got := resolver.Resolve(user)

	assert.Equal(t, 5, got.MaxLoginLimit)
	assert.True(t, got.SocialLogins.Google)
	// Untouched fields keep their defaults
	assert.False(t, got.SocialLogins.Facebook)
	assert.Equal(t, 3, got.FailedLoginAttemptsLimit)
	assert.Equal(t, 90, got.PasswordRotationDays)
	assert.True(t, got.AutoLogoutOnPasswordChange)
}

func TestSettingsResolver_UnknownKeysIgnored(t *testing.T) {
	resolver := NewSettingsResolver(DefaultSettings())

	user := &User{
		ID:               "u1",
		SettingsOverride: json.RawMessage(`{"mystery_flag": true, "lockout_minutes": 10}`),
	}

	got := resolver.Resolve(user)

	assert.Equal(t, 10, got.LockoutMinutes)
	assert.Equal(t, DefaultSettings().MaxLoginLimit, got.MaxLoginLimit)
}

func TestSettingsResolver_MalformedOverride(t *testing.T) {
	resolver := NewSettingsResolver(DefaultSettings())

	user := &User{
		ID:               "u1",
		SettingsOverride: json.RawMessage(`{not json`),
	}

	// Resolution never fails; malformed data yields the defaults.
	got := resolver.Resolve(user)
	assert.Equal(t, DefaultSettings(), got)
}

func TestSettingsResolver_DefaultsNotMutated(t *testing.T) {
	resolver := NewSettingsResolver(DefaultSettings())

	user := &User{
		ID:               "u1",
		SettingsOverride: json.RawMessage(`{"social_logins": {"github": true}}`),
	}

	first := resolver.Resolve(user)
	assert.True(t, first.SocialLogins.GitHub)

	// A later resolution without the override must not see the earlier one.
	second := resolver.Resolve(&User{ID: "u2"})
	assert.False(t, second.SocialLogins.GitHub)
	assert.Equal(t, DefaultSettings(), resolver.Defaults())
}

func TestSocialLogins_Enabled(t *testing.T) {
	logins := SocialLogins{Google: true, LinkedIn: true}

	assert.True(t, logins.Enabled("google"))
	assert.True(t, logins.Enabled("linkedin"))
	assert.False(t, logins.Enabled("facebook"))
	assert.False(t, logins.Enabled("github"))
	assert.False(t, logins.Enabled("twitter"))
	assert.False(t, logins.Enabled(""))
}

func TestProviderOverride(t *testing.T) {
	resolver := NewSettingsResolver(DefaultSettings())

	user := &User{ID: "u1", SettingsOverride: ProviderOverride("facebook")}
	got := resolver.Resolve(user)

	assert.True(t, got.SocialLogins.Facebook)
	assert.False(t, got.SocialLogins.Google)
}

func TestSettings_DurationHelpers(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, "5m0s", s.LockoutDuration().String())
	assert.Equal(t, "2160h0m0s", s.PasswordMaxAge().String())
	assert.Equal(t, "2h0m0s", s.SessionTimeout().String())
	assert.Equal(t, "1m0s", s.RateLimitWindow().String())
}
