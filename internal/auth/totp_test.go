package auth

import (
	"context"
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTOTPSecret_Success(t *testing.T) {
	issuer := "Gatekeep"
	accountName := "user@example.com"

	secret, qrCodeDataURI, otpauthURI, err := GenerateTOTPSecret(issuer, accountName)

	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NotEmpty(t, qrCodeDataURI)
	assert.NotEmpty(t, otpauthURI)

	// Verify secret is valid base32
	_, err = base32.StdEncoding.DecodeString(secret)
	assert.NoError(t, err, "secret should be valid base32")

	// Verify QR code data URI format
	assert.True(t, strings.HasPrefix(qrCodeDataURI, "data:image/png;base64,"))

	// Verify otpauth URI contains issuer and account name
	assert.Contains(t, otpauthURI, issuer)
	assert.Contains(t, otpauthURI, accountName)
	assert.True(t, strings.HasPrefix(otpauthURI, "otpauth://totp/"))
}

func TestGenerateTOTPSecret_UniquenessPerCall(t *testing.T) {
	secret1, _, _, err1 := GenerateTOTPSecret("Gatekeep", "user@example.com")
	secret2, _, _, err2 := GenerateTOTPSecret("Gatekeep", "user@example.com")

	require.NoError(t, err1)
	require.NoError(t, err2)

	// Each call should generate a unique secret
	assert.NotEqual(t, secret1, secret2)
}

func TestVerifyTOTPCode_ValidCode(t *testing.T) {
	secret, _, _, err := GenerateTOTPSecret("Gatekeep", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	valid, err := VerifyTOTPCode(code, secret)

	require.NoError(t, err)
	assert.True(t, valid, "valid TOTP code should be verified successfully")
}

func TestVerifyTOTPCode_InvalidCode(t *testing.T) {
	secret, _, _, err := GenerateTOTPSecret("Gatekeep", "user@example.com")
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
	}{
		{
			name: "wrong code",
			code: "000000",
		},
		{
			name: "invalid format",
			code: "abcdef",
		},
		{
			name: "too short",
			code: "123",
		},
		{
			name: "too long",
			code: "12345678",
		},
		{
			name: "empty code",
			code: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := VerifyTOTPCode(tt.code, secret)

			require.NoError(t, err)
			assert.False(t, valid, "invalid TOTP code should not be verified")
		})
	}
}

func TestVerifyTOTPCode_ExpiredCode(t *testing.T) {
	secret, _, _, err := GenerateTOTPSecret("Gatekeep", "user@example.com")
	require.NoError(t, err)

	// Code from outside the time-step window must not verify
	pastTime := time.Now().Add(-2 * time.Minute)
	oldCode, err := totp.GenerateCode(secret, pastTime)
	require.NoError(t, err)

	valid, err := VerifyTOTPCode(oldCode, secret)
	require.NoError(t, err)
	assert.False(t, valid, "old TOTP code from outside the time window should not verify")
}

func TestGenerateRecoveryCodes(t *testing.T) {
	plain, stored, err := GenerateRecoveryCodes(10)

	require.NoError(t, err)
	assert.Len(t, plain, 10)
	assert.Len(t, stored, 10)

	seen := make(map[string]bool)
	for _, code := range plain {
		assert.Len(t, code, 8)
		assert.False(t, seen[code], "recovery codes should be unique")
		seen[code] = true

		used, exists := stored[code]
		assert.True(t, exists, "every plaintext code should be in the stored map")
		assert.False(t, used, "new recovery codes should start unused")
	}
}

func twoFactorUser(t *testing.T, users *MockUserRepository, secret string, codes map[string]bool) *User {
	t.Helper()

	user, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "mfa.user",
		Email:    "mfa@example.com",
	}, "hash")
	require.NoError(t, err)

	err = users.SetTwoFactor(context.Background(), "biz-1", user.ID, true, secret, codes)
	require.NoError(t, err)
	return user
}

func TestTwoFactorService_Verify_TOTPCode(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewTwoFactorService(users)

	secret, _, _, err := GenerateTOTPSecret("Gatekeep", "mfa@example.com")
	require.NoError(t, err)
	user := twoFactorUser(t, users, secret, map[string]bool{"AAAA2222": false})

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	ok, err := svc.Verify(context.Background(), user, code)
	require.NoError(t, err)
	assert.True(t, ok)

	// TOTP success must not consume any recovery code
	got, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.False(t, got.RecoveryCodes["AAAA2222"])
}

func TestTwoFactorService_Verify_RecoveryCodeSingleUse(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewTwoFactorService(users)

	secret, _, _, err := GenerateTOTPSecret("Gatekeep", "mfa@example.com")
	require.NoError(t, err)
	user := twoFactorUser(t, users, secret, map[string]bool{"AAAA2222": false})

	ok, err := svc.Verify(context.Background(), user, "AAAA2222")
	require.NoError(t, err)
	assert.True(t, ok, "unused recovery code should verify")

	// The same code again must be rejected
	refetched, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)

	ok, err = svc.Verify(context.Background(), refetched, "AAAA2222")
	require.NoError(t, err)
	assert.False(t, ok, "a recovery code is single use")
}

func TestTwoFactorService_Verify_UnknownCode(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewTwoFactorService(users)

	secret, _, _, err := GenerateTOTPSecret("Gatekeep", "mfa@example.com")
	require.NoError(t, err)
	user := twoFactorUser(t, users, secret, map[string]bool{"AAAA2222": false})

	ok, err := svc.Verify(context.Background(), user, "ZZZZ9999")
	require.NoError(t, err)
	assert.False(t, ok)
}
