package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otpTestUser(t *testing.T, users *MockUserRepository) *User {
	t.Helper()

	user, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "otp.user",
		Email:    "otp@example.com",
	}, "hash")
	require.NoError(t, err)
	return user
}

func TestOtpService_IssueAndVerify(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	code, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)
	assert.Len(t, code, OTPLength)

	// Only the hash is persisted
	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.OTPHash)
	assert.NotEqual(t, code, stored.OTPHash)
	require.NotNil(t, stored.OTPExpiresAt)

	assert.True(t, svc.Verify(user, code))
}

func TestOtpService_VerifyWrongCode(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	code, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	assert.False(t, svc.Verify(user, wrong))
}

func TestOtpService_VerifyNoCodeIssued(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	assert.False(t, svc.Verify(user, "123456"))
}

func TestOtpService_VerifyExpiredCode(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	code, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	// Move the clock past the expiry
	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	assert.False(t, svc.Verify(user, code))
}

func TestOtpService_VerifyHasNoSideEffects(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	code, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	// Verification does not consume the code; the caller clears it.
	assert.True(t, svc.Verify(user, code))
	assert.True(t, svc.Verify(user, code))
}

func TestOtpService_Clear(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	code, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(context.Background(), user))
	assert.False(t, svc.Verify(user, code))

	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OTPHash)
	assert.Nil(t, stored.OTPExpiresAt)
}

func TestOtpService_ReissueReplacesCode(t *testing.T) {
	users := NewMockUserRepository()
	svc := NewOtpService(users, 10*time.Minute)
	user := otpTestUser(t, users)

	first, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	assert.True(t, svc.Verify(user, second))
	if first != second {
		assert.False(t, svc.Verify(user, first))
	}
}
