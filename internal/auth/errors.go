package auth

import "errors"

// Sentinel errors for the authentication engine. Handlers match these with
// errors.Is and translate them to the uniform transport response shape.
var (
	// ErrValidation marks malformed input; the caller should correct and retry.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCredentials covers bad username/password and inactive
	// accounts with one generic message to avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account locked due to too many failed login attempts")

	// ErrPasswordExpired is a soft outcome: login is blocked until the
	// password is reset, but the attempt itself was valid.
	ErrPasswordExpired = errors.New("password has expired and must be reset")

	// ErrOTPInvalidOrExpired is returned for any one-time-code failure
	// without revealing whether the code was wrong, missing or stale.
	ErrOTPInvalidOrExpired = errors.New("verification code is invalid or has expired")

	// ErrTwoFactorInvalid is returned when neither the TOTP code nor an
	// unused recovery code matches.
	ErrTwoFactorInvalid = errors.New("two-factor code is invalid")

	// ErrTwoFactorRequired signals that a login needs a second factor
	// before a session can be established.
	ErrTwoFactorRequired = errors.New("two-factor verification required")

	// ErrSocialRegistrationDisabled is returned when a social assertion
	// matches no account and self-registration is off for that provider.
	ErrSocialRegistrationDisabled = errors.New("registration via this provider is disabled")

	// ErrSessionLimitExceeded is returned when a login would push the
	// account past its concurrent-session limit; the new session has
	// already been terminated when this is returned.
	ErrSessionLimitExceeded = errors.New("maximum number of concurrent sessions reached")

	// ErrUserNotFound is an internal repository sentinel, never surfaced
	// directly to callers of the login pipeline.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned on username/email collisions.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrLinkNotFound is returned when no provider link matches.
	ErrLinkNotFound = errors.New("provider link not found")

	// ErrRecoveryCodeUsed is returned by the conditional mark-used write
	// when the code was already consumed.
	ErrRecoveryCodeUsed = errors.New("recovery code already used")

	// ErrInvalidProvider is returned for providers outside the closed set.
	ErrInvalidProvider = errors.New("unsupported identity provider")

	// ErrSessionRevoked is returned by AuthLog implementations when an
	// activity touch finds no online row for the session token.
	ErrSessionRevoked = errors.New("session has been revoked")
)

// StorageError wraps an underlying storage failure. The operation it
// occurred in is fatal; compensating cleanup has already run by the time it
// propagates. The wrapped detail is logged and only echoed to callers when
// diagnostics mode is on.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure during " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err as a StorageError, or passes nil through.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
