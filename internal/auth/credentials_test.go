package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentialGateFixture(t *testing.T) (*CredentialGate, *MockUserRepository, *PasswordHasher) {
	t.Helper()

	users := NewMockUserRepository()
	hasher := NewPasswordHasherWithConfig(PasswordHasherConfig{Cost: 4, MinLength: 8})
	gate := NewCredentialGate(users, hasher, NewSettingsResolver(DefaultSettings()))
	return gate, users, hasher
}

func seedUser(t *testing.T, users *MockUserRepository, hasher *PasswordHasher, password string) *User {
	t.Helper()

	hash, err := hasher.HashPassword(password)
	require.NoError(t, err)
	user, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "alice",
		Email:    "alice@example.com",
	}, hash)
	require.NoError(t, err)
	return user
}

func TestCredentialGate_Success(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	seedUser(t, users, hasher, "correct-horse")

	user, settings, err := gate.Authenticate(context.Background(), "biz-1", "alice", "correct-horse")

	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, DefaultSettings().MaxLoginLimit, settings.MaxLoginLimit)
}

func TestCredentialGate_UnknownUsername(t *testing.T) {
	gate, _, _ := newCredentialGateFixture(t)

	_, _, err := gate.Authenticate(context.Background(), "biz-1", "nobody", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCredentialGate_WrongPassword(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginAttempts)
}

func TestCredentialGate_TenantIsolation(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	seedUser(t, users, hasher, "correct-horse")

	// Same username under a different business must not resolve.
	_, _, err := gate.Authenticate(context.Background(), "biz-2", "alice", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCredentialGate_InactiveUser(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)

	hash, err := hasher.HashPassword("correct-horse")
	require.NoError(t, err)
	_, err = users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Status:   UserStatusInactive,
	}, hash)
	require.NoError(t, err)

	// Inactive accounts fail identically to a wrong password.
	_, _, err = gate.Authenticate(context.Background(), "biz-1", "bob", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCredentialGate_LockoutAfterRepeatedFailures(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	for i := 0; i < DefaultSettings().FailedLoginAttemptsLimit; i++ {
		_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockedAt)

	// Even the correct password is rejected while locked.
	_, _, err = gate.Authenticate(context.Background(), "biz-1", "alice", "correct-horse")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestCredentialGate_LockoutExpiresLazily(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	lockedAt := time.Now().Add(-6 * time.Minute)
	require.NoError(t, users.LockUser(context.Background(), "biz-1", user.ID, lockedAt))
	_, err := users.IncrementFailedLoginAttempts(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)

	// Lockout window has elapsed; the next valid login clears it in place.
	got, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "correct-horse")
	require.NoError(t, err)
	assert.Nil(t, got.LockedAt)
	assert.Equal(t, 0, got.FailedLoginAttempts)

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LockedAt)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
}

func TestCredentialGate_RelocksAfterStaleLockout(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	lockedAt := time.Now().Add(-6 * time.Minute)
	require.NoError(t, users.LockUser(context.Background(), "biz-1", user.ID, lockedAt))
	for i := 0; i < DefaultSettings().FailedLoginAttemptsLimit; i++ {
		_, err := users.IncrementFailedLoginAttempts(context.Background(), "biz-1", user.ID)
		require.NoError(t, err)
	}

	// The old window has elapsed, so another failure starts a new one.
	_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockedAt)
	assert.True(t, stored.LockedAt.After(lockedAt), "a fresh lockout replaces the expired one")

	_, _, err = gate.Authenticate(context.Background(), "biz-1", "alice", "correct-horse")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestCredentialGate_ActiveLockoutNotExtended(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	lockedAt := time.Now().Add(-1 * time.Minute)
	require.NoError(t, users.LockUser(context.Background(), "biz-1", user.ID, lockedAt))
	for i := 0; i < DefaultSettings().FailedLoginAttemptsLimit; i++ {
		_, err := users.IncrementFailedLoginAttempts(context.Background(), "biz-1", user.ID)
		require.NoError(t, err)
	}

	_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockedAt)
	assert.True(t, stored.LockedAt.Equal(lockedAt), "failures inside the window leave its start alone")
}

func TestCredentialGate_PasswordExpired(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	// Age the password past the rotation policy.
	gate.now = func() time.Time { return user.PasswordChangedAt.Add(91 * 24 * time.Hour) }

	_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "correct-horse")
	assert.ErrorIs(t, err, ErrPasswordExpired)

	// The failed-attempt counter is untouched: the credentials were valid.
	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
}

func TestCredentialGate_SuccessResetsFailureCounter(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = gate.Authenticate(context.Background(), "biz-1", "alice", "correct-horse")
	require.NoError(t, err)

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
}

func TestCredentialGate_OverrideRaisesFailureLimit(t *testing.T) {
	gate, users, hasher := newCredentialGateFixture(t)
	user := seedUser(t, users, hasher, "correct-horse")

	err := users.UpdateSettingsOverride(context.Background(), "biz-1", user.ID, []byte(`{"failed_login_attempts_limit": 5}`))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, _, err := gate.Authenticate(context.Background(), "biz-1", "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LockedAt, "lockout should respect the per-user override")
}
