package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSocialFixture(t *testing.T, defaults Settings) (*SocialIdentityLinker, *MockUserRepository, *MockProviderLinkRepository) {
	t.Helper()

	users := NewMockUserRepository()
	links := NewMockProviderLinkRepository()
	hasher := NewPasswordHasherWithConfig(PasswordHasherConfig{Cost: 4, MinLength: 8})
	linker := NewSocialIdentityLinker(users, links, hasher, NewSettingsResolver(defaults))
	return linker, users, links
}

func socialDefaults() Settings {
	s := DefaultSettings()
	s.SocialLogins.Google = true
	return s
}

func googleAssertion() ProviderAssertion {
	return ProviderAssertion{
		SubjectID:   "google-sub-123",
		Email:       "carol@example.com",
		Name:        "Carol",
		AccessToken: "at-1",
	}
}

func TestSocialLinker_InvalidProvider(t *testing.T) {
	linker, _, _ := newSocialFixture(t, socialDefaults())

	_, err := linker.Resolve(context.Background(), "biz-1", "myspace", googleAssertion())
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestSocialLinker_MissingSubject(t *testing.T) {
	linker, _, _ := newSocialFixture(t, socialDefaults())

	assertion := googleAssertion()
	assertion.SubjectID = ""
	_, err := linker.Resolve(context.Background(), "biz-1", "google", assertion)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSocialLinker_ProvisionsNewUser(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	user, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.NoError(t, err)

	assert.Equal(t, "carol@example.com", user.Email)
	assert.Equal(t, "carol.google", user.Username)
	assert.NotNil(t, user.EmailVerifiedAt, "provider-attested email starts verified")
	assert.NotEmpty(t, user.PasswordHash)

	link, err := links.GetByProviderUserID(context.Background(), "biz-1", "google", "google-sub-123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, link.UserID)

	// The provisioned user's override enables the provider it came from.
	stored, err := users.GetByID(context.Background(), "biz-1", user.ID)
	require.NoError(t, err)
	resolved := NewSettingsResolver(DefaultSettings()).Resolve(stored)
	assert.True(t, resolved.SocialLogins.Google)
}

func TestSocialLinker_RegistrationDisabled(t *testing.T) {
	linker, _, _ := newSocialFixture(t, DefaultSettings())

	_, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	assert.ErrorIs(t, err, ErrSocialRegistrationDisabled)
}

func TestSocialLinker_ExistingLinkWins(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	existing, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "carol",
		Email:    "carol@example.com",
	}, "hash")
	require.NoError(t, err)
	_, err = links.Upsert(context.Background(), "biz-1", &UserProviderLink{
		BusinessID:     "biz-1",
		UserID:         existing.ID,
		Provider:       "google",
		ProviderUserID: "google-sub-123",
		AccessToken:    "stale",
	})
	require.NoError(t, err)

	assertion := googleAssertion()
	assertion.AccessToken = "fresh"
	user, err := linker.Resolve(context.Background(), "biz-1", "google", assertion)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)

	link, err := links.GetByProviderUserID(context.Background(), "biz-1", "google", "google-sub-123")
	require.NoError(t, err)
	assert.Equal(t, "fresh", link.AccessToken, "provider tokens refresh on every sign-in")
}

func TestSocialLinker_LinkAdoptsChangedEmail(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	existing, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "carol",
		Email:    "old@example.com",
	}, "hash")
	require.NoError(t, err)
	require.NoError(t, users.VerifyEmail(context.Background(), "biz-1", existing.ID))
	_, err = links.Upsert(context.Background(), "biz-1", &UserProviderLink{
		BusinessID:     "biz-1",
		UserID:         existing.ID,
		Provider:       "google",
		ProviderUserID: "google-sub-123",
	})
	require.NoError(t, err)

	user, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.NoError(t, err)

	assert.Equal(t, "carol@example.com", user.Email)
	assert.Nil(t, user.EmailVerifiedAt, "adopted address must be re-verified")
}

func TestSocialLinker_LinkKeepsEmailWhenTaken(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	existing, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "carol",
		Email:    "old@example.com",
	}, "hash")
	require.NoError(t, err)
	_, err = users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "other",
		Email:    "carol@example.com",
	}, "hash")
	require.NoError(t, err)
	_, err = links.Upsert(context.Background(), "biz-1", &UserProviderLink{
		BusinessID:     "biz-1",
		UserID:         existing.ID,
		Provider:       "google",
		ProviderUserID: "google-sub-123",
	})
	require.NoError(t, err)

	user, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", user.Email, "a taken address is never adopted")
}

func TestSocialLinker_EmailMatchLinksExistingUser(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	existing, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "carol",
		Email:    "carol@example.com",
	}, "hash")
	require.NoError(t, err)

	user, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID, "no duplicate account per email")

	link, err := links.GetByProviderUserID(context.Background(), "biz-1", "google", "google-sub-123")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, link.UserID)
}

func TestSocialLinker_LinkEnablesProviderOverride(t *testing.T) {
	linker, users, _ := newSocialFixture(t, DefaultSettings())

	existing, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username:         "carol",
		Email:            "carol@example.com",
		SettingsOverride: []byte(`{"max_login_limit": 5}`),
	}, "hash")
	require.NoError(t, err)

	_, err = linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.NoError(t, err)

	stored, err := users.GetByID(context.Background(), "biz-1", existing.ID)
	require.NoError(t, err)
	resolved := NewSettingsResolver(DefaultSettings()).Resolve(stored)
	assert.True(t, resolved.SocialLogins.Google, "linking enables the provider for this user")
	assert.Equal(t, 5, resolved.MaxLoginLimit, "unrelated override keys survive the merge")
}

func TestSocialLinker_LinkEmailCheckStorageError(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	existing, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "carol",
		Email:    "old@example.com",
	}, "hash")
	require.NoError(t, err)
	_, err = links.Upsert(context.Background(), "biz-1", &UserProviderLink{
		BusinessID:     "biz-1",
		UserID:         existing.ID,
		Provider:       "google",
		ProviderUserID: "google-sub-123",
	})
	require.NoError(t, err)

	users.GetByEmailFn = func(ctx context.Context, businessID, email string) (*User, error) {
		return nil, errors.New("connection reset")
	}

	_, err = linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.Error(t, err)
	assert.True(t, IsStorageError(err), "a failed uniqueness check must surface, not adopt or drop the address")
}

func TestSocialLinker_UsernameCollisionSuffix(t *testing.T) {
	linker, users, _ := newSocialFixture(t, socialDefaults())

	_, err := users.Create(context.Background(), "biz-1", CreateUserRequest{
		Username: "carol.google",
		Email:    "unrelated@example.com",
	}, "hash")
	require.NoError(t, err)

	user, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.NoError(t, err)
	assert.Equal(t, "carol.google1", user.Username)
}

func TestSocialLinker_ProvisionRollbackOnLinkFailure(t *testing.T) {
	linker, users, links := newSocialFixture(t, socialDefaults())

	boom := errors.New("link insert failed")
	links.UpsertFn = func(ctx context.Context, businessID string, link *UserProviderLink) (*UserProviderLink, error) {
		return nil, boom
	}

	_, err := linker.Resolve(context.Background(), "biz-1", "google", googleAssertion())
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	// The half-created account must not survive.
	_, err = users.GetByEmail(context.Background(), "biz-1", "carol@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
