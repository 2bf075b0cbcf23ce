package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// OTPLength is the number of digits in a one-time passcode.
const OTPLength = 6

// OtpService issues, verifies and clears short-lived one-time passcodes.
// Only the SHA-256 hash and expiry are persisted; the plaintext code exists
// only in the issue response (it is emailed out-of-band by the caller).
type OtpService struct {
	users  UserRepositoryInterface
	expiry time.Duration
	now    func() time.Time
}

// NewOtpService creates an OtpService with the given code lifetime.
func NewOtpService(users UserRepositoryInterface, expiry time.Duration) *OtpService {
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &OtpService{users: users, expiry: expiry, now: time.Now}
}

// Issue generates a fresh 6-digit code for user, persists its hash and
// expiry, and returns the plaintext. A previously issued code is replaced.
func (s *OtpService) Issue(ctx context.Context, user *User) (string, error) {
	code, err := generateOTPCode()
	if err != nil {
		return "", err
	}

	expiresAt := s.now().Add(s.expiry)
	if err := s.users.SetOTP(ctx, user.BusinessID, user.ID, hashOTPCode(code), expiresAt); err != nil {
		return "", storageErr("otp issue", err)
	}

	user.OTPHash = hashOTPCode(code)
	user.OTPExpiresAt = &expiresAt
	return code, nil
}

// Verify reports whether code matches the user's stored passcode and the
// passcode has not expired. It fails closed: a missing token, missing
// expiry or stale expiry all return false without revealing which.
// Verification has no side effects; callers clear the code explicitly
// after consuming the result.
func (s *OtpService) Verify(user *User, code string) bool {
	if user.OTPHash == "" || user.OTPExpiresAt == nil {
		return false
	}
	if s.now().After(*user.OTPExpiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashOTPCode(code)), []byte(user.OTPHash)) == 1
}

// Clear removes the user's stored passcode and expiry.
func (s *OtpService) Clear(ctx context.Context, user *User) error {
	if err := s.users.ClearOTP(ctx, user.BusinessID, user.ID); err != nil {
		return storageErr("otp clear", err)
	}
	user.OTPHash = ""
	user.OTPExpiresAt = nil
	return nil
}

// generateOTPCode returns a uniformly random 6-digit ASCII code.
func generateOTPCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// hashOTPCode returns the base64 SHA-256 digest of a passcode.
func hashOTPCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return base64.URLEncoding.EncodeToString(sum[:])
}
