package auth

import (
	"context"
	"encoding/json"
	"time"
)

// UserRepositoryInterface is the keyed-storage contract for User rows.
// Every call is scoped by the tenant businessID; implementations must never
// return rows belonging to another tenant.
type UserRepositoryInterface interface {
	Create(ctx context.Context, businessID string, req CreateUserRequest, passwordHash string) (*User, error)
	GetByID(ctx context.Context, businessID, id string) (*User, error)
	GetByUsername(ctx context.Context, businessID, username string) (*User, error)
	GetByEmail(ctx context.Context, businessID, email string) (*User, error)
	Delete(ctx context.Context, businessID, id string) error

	// UpdateEmail changes the address and resets email verification.
	UpdateEmail(ctx context.Context, businessID, id, email string) error
	// UpdatePassword replaces the hash and stamps password_changed_at.
	UpdatePassword(ctx context.Context, businessID, id, passwordHash string) error
	VerifyEmail(ctx context.Context, businessID, id string) error

	// IncrementFailedLoginAttempts bumps the counter and returns the new value.
	IncrementFailedLoginAttempts(ctx context.Context, businessID, id string) (int, error)
	ResetFailedLoginAttempts(ctx context.Context, businessID, id string) error
	// LockUser records the lockout timestamp.
	LockUser(ctx context.Context, businessID, id string, at time.Time) error
	// UnlockUser clears the lockout timestamp and the failed-attempt counter.
	UnlockUser(ctx context.Context, businessID, id string) error

	SetOTP(ctx context.Context, businessID, id, otpHash string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, businessID, id string) error

	SetTwoFactor(ctx context.Context, businessID, id string, enabled bool, secret string, recoveryCodes map[string]bool) error
	// MarkRecoveryCodeUsed flips one recovery code to used. It must be
	// conditional: ErrRecoveryCodeUsed when the code was already consumed,
	// ErrTwoFactorInvalid when it does not exist.
	MarkRecoveryCodeUsed(ctx context.Context, businessID, id, code string) error

	SetSessionToken(ctx context.Context, businessID, id, token string, lastLoginAt time.Time) error
	ClearSessionToken(ctx context.Context, businessID, id string) error

	UpdateSettingsOverride(ctx context.Context, businessID, id string, override json.RawMessage) error
}

// AuthLogRepositoryInterface is the keyed-storage contract for AuthLog rows.
type AuthLogRepositoryInterface interface {
	Create(ctx context.Context, businessID string, entry *AuthLog) (*AuthLog, error)
	// CountOnline returns the number of rows with Online=true for the user.
	CountOnline(ctx context.Context, businessID, userID string) (int, error)
	ListOnline(ctx context.Context, businessID, userID string) ([]*AuthLog, error)
	// CloseBySessionToken flips one session's row offline and stamps LogoutAt.
	CloseBySessionToken(ctx context.Context, businessID, userID, sessionToken string, at time.Time) error
	// CloseAllForUser flips every row for the user offline.
	CloseAllForUser(ctx context.Context, businessID, userID string, at time.Time) error
	// TouchActivity updates LastActivityAt for the row holding sessionToken.
	TouchActivity(ctx context.Context, businessID, sessionToken string, at time.Time) error
	DeleteByUserID(ctx context.Context, businessID, userID string) error
}

// ProviderLinkRepositoryInterface is the keyed-storage contract for
// UserProviderLink rows.
type ProviderLinkRepositoryInterface interface {
	GetByProviderUserID(ctx context.Context, businessID, provider, providerUserID string) (*UserProviderLink, error)
	// Upsert creates the (user, provider) link or overwrites its tokens.
	Upsert(ctx context.Context, businessID string, link *UserProviderLink) (*UserProviderLink, error)
	DeleteByUserID(ctx context.Context, businessID, userID string) error
}
