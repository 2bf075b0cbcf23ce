package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/logutil"
)

// CredentialGate verifies username/password, account status, lockout state
// and password age. It is the single decision point for credential logins;
// every check short-circuits on failure.
type CredentialGate struct {
	users    UserRepositoryInterface
	hasher   *PasswordHasher
	resolver *SettingsResolver
	now      func() time.Time
}

// NewCredentialGate creates a CredentialGate.
func NewCredentialGate(users UserRepositoryInterface, hasher *PasswordHasher, resolver *SettingsResolver) *CredentialGate {
	return &CredentialGate{users: users, hasher: hasher, resolver: resolver, now: time.Now}
}

// Authenticate runs the credential checks in order and returns the user
// together with their resolved settings.
//
// An unknown username and a wrong password produce the same error so the
// response cannot be used to enumerate accounts; only an existing account
// has its failed-attempt counter incremented.
func (g *CredentialGate) Authenticate(ctx context.Context, businessID, username, password string) (*User, Settings, error) {
	user, err := g.users.GetByUsername(ctx, businessID, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, Settings{}, ErrInvalidCredentials
		}
		return nil, Settings{}, storageErr("user lookup", err)
	}

	settings := g.resolver.Resolve(user)

	if g.hasher.ComparePassword(user.PasswordHash, password) != nil || user.Status != UserStatusActive {
		g.recordFailure(ctx, user, settings)
		return nil, Settings{}, ErrInvalidCredentials
	}

	if user.LockedAt != nil {
		if g.now().Before(user.LockedAt.Add(settings.LockoutDuration())) {
			return nil, Settings{}, ErrAccountLocked
		}
		// Lockout elapsed: cleared lazily here, not by a background sweep
		if err := g.users.UnlockUser(ctx, businessID, user.ID); err != nil {
			return nil, Settings{}, storageErr("lockout clear", err)
		}
		user.LockedAt = nil
		user.FailedLoginAttempts = 0
	}

	if settings.PasswordRotationDays > 0 && g.now().Sub(user.PasswordChangedAt) > settings.PasswordMaxAge() {
		return nil, Settings{}, ErrPasswordExpired
	}

	if user.FailedLoginAttempts > 0 {
		if err := g.users.ResetFailedLoginAttempts(ctx, businessID, user.ID); err != nil {
			return nil, Settings{}, storageErr("failed attempts reset", err)
		}
		user.FailedLoginAttempts = 0
	}

	return user, settings, nil
}

// recordFailure bumps the failed-attempt counter and sets the lockout
// timestamp once the configured limit is reached. Failures here are logged
// but do not change the caller-visible outcome: the attempt is already
// rejected.
func (g *CredentialGate) recordFailure(ctx context.Context, user *User, settings Settings) {
	count, err := g.users.IncrementFailedLoginAttempts(ctx, user.BusinessID, user.ID)
	if err != nil {
		log.Error().Err(err).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to record login failure")
		return
	}

	if count < settings.FailedLoginAttemptsLimit {
		return
	}

	// An active lockout is left untouched so failures during the window do
	// not extend it; a stale one is replaced, re-locking the account.
	if user.LockedAt != nil && g.now().Before(user.LockedAt.Add(settings.LockoutDuration())) {
		return
	}
	if err := g.users.LockUser(ctx, user.BusinessID, user.ID, g.now()); err != nil {
		log.Error().Err(err).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to lock account")
		return
	}
	log.Warn().Str("user", logutil.MaskEmail(user.Email)).Int("attempts", count).Msg("Account locked after repeated login failures")
}
