package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/logutil"
)

// SocialIdentityLinker resolves or provisions a local account from a
// third-party identity assertion.
type SocialIdentityLinker struct {
	users    UserRepositoryInterface
	links    ProviderLinkRepositoryInterface
	hasher   *PasswordHasher
	resolver *SettingsResolver
	now      func() time.Time
}

// NewSocialIdentityLinker creates a SocialIdentityLinker.
func NewSocialIdentityLinker(users UserRepositoryInterface, links ProviderLinkRepositoryInterface, hasher *PasswordHasher, resolver *SettingsResolver) *SocialIdentityLinker {
	return &SocialIdentityLinker{users: users, links: links, hasher: hasher, resolver: resolver, now: time.Now}
}

// Resolve maps a provider assertion to a local user. Precedence, first
// match wins:
//
//  1. an existing link for (provider, subject id),
//  2. an existing user with the assertion's email,
//  3. a freshly provisioned account, if self-registration is enabled for
//     the provider.
//
// Steps 1 and 2 refresh the link's provider tokens; step 1 additionally
// adopts a changed assertion email when no other account holds it, clearing
// email verification. Step 3 rolls the created user back if any later write
// fails, so no orphan identity is left behind.
func (l *SocialIdentityLinker) Resolve(ctx context.Context, businessID, provider string, assertion ProviderAssertion) (*User, error) {
	if !validProvider(provider) {
		return nil, ErrInvalidProvider
	}
	if assertion.SubjectID == "" {
		return nil, fmt.Errorf("%w: provider assertion has no subject id", ErrValidation)
	}

	link, err := l.links.GetByProviderUserID(ctx, businessID, provider, assertion.SubjectID)
	switch {
	case err == nil:
		return l.resolveExistingLink(ctx, businessID, provider, link, assertion)
	case !errors.Is(err, ErrLinkNotFound):
		return nil, storageErr("provider link lookup", err)
	}

	user, err := l.users.GetByEmail(ctx, businessID, assertion.Email)
	switch {
	case err == nil:
		return l.linkExistingUser(ctx, businessID, provider, user, assertion)
	case !errors.Is(err, ErrUserNotFound):
		return nil, storageErr("user lookup by email", err)
	}

	if !l.resolver.Defaults().SocialLogins.Enabled(provider) {
		return nil, ErrSocialRegistrationDisabled
	}
	return l.provisionUser(ctx, businessID, provider, assertion)
}

func (l *SocialIdentityLinker) resolveExistingLink(ctx context.Context, businessID, provider string, link *UserProviderLink, assertion ProviderAssertion) (*User, error) {
	user, err := l.users.GetByID(ctx, businessID, link.UserID)
	if err != nil {
		return nil, storageErr("linked user lookup", err)
	}

	link.AccessToken = assertion.AccessToken
	link.RefreshToken = assertion.RefreshToken
	link.TokenExpiresAt = assertion.TokenExpiresAt
	if _, err := l.links.Upsert(ctx, businessID, link); err != nil {
		return nil, storageErr("provider token refresh", err)
	}

	if assertion.Email != "" && assertion.Email != user.Email {
		_, err := l.users.GetByEmail(ctx, businessID, assertion.Email)
		switch {
		case errors.Is(err, ErrUserNotFound):
			// Adopt the provider's new address; verification starts over
			if err := l.users.UpdateEmail(ctx, businessID, user.ID, assertion.Email); err != nil {
				return nil, storageErr("email update", err)
			}
			user.Email = assertion.Email
			user.EmailVerifiedAt = nil
		case err != nil:
			return nil, storageErr("email uniqueness check", err)
		}
	}

	return user, nil
}

func (l *SocialIdentityLinker) linkExistingUser(ctx context.Context, businessID, provider string, user *User, assertion ProviderAssertion) (*User, error) {
	_, err := l.links.Upsert(ctx, businessID, &UserProviderLink{
		BusinessID:     businessID,
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: assertion.SubjectID,
		AccessToken:    assertion.AccessToken,
		RefreshToken:   assertion.RefreshToken,
		TokenExpiresAt: assertion.TokenExpiresAt,
	})
	if err != nil {
		return nil, storageErr("provider link create", err)
	}

	// Linking implies consent; enable the provider in the user's override so
	// later assertions resolve even when the tenant default is off.
	override := MergeProviderOverride(user.SettingsOverride, provider)
	if err := l.users.UpdateSettingsOverride(ctx, businessID, user.ID, override); err != nil {
		return nil, storageErr("settings override update", err)
	}
	user.SettingsOverride = override

	return user, nil
}

func (l *SocialIdentityLinker) provisionUser(ctx context.Context, businessID, provider string, assertion ProviderAssertion) (*User, error) {
	if err := ValidateEmail(assertion.Email); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	username, err := l.uniqueUsername(ctx, businessID, assertion.Email, provider)
	if err != nil {
		return nil, err
	}

	passwordHash, err := l.hasher.RandomUnusablePassword()
	if err != nil {
		return nil, fmt.Errorf("generate placeholder password: %w", err)
	}

	verifiedAt := l.now()
	user, err := l.users.Create(ctx, businessID, CreateUserRequest{
		Username:         username,
		Email:            assertion.Email,
		Status:           UserStatusActive,
		EmailVerifiedAt:  &verifiedAt,
		SettingsOverride: ProviderOverride(provider),
	}, passwordHash)
	if err != nil {
		return nil, storageErr("social user create", err)
	}

	if _, err := l.links.Upsert(ctx, businessID, &UserProviderLink{
		BusinessID:     businessID,
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: assertion.SubjectID,
		AccessToken:    assertion.AccessToken,
		RefreshToken:   assertion.RefreshToken,
		TokenExpiresAt: assertion.TokenExpiresAt,
	}); err != nil {
		// Roll the half-created identity back; an account without its link
		// would shadow the provider identity forever.
		if delErr := l.users.Delete(ctx, businessID, user.ID); delErr != nil {
			log.Error().Err(delErr).Str("user", logutil.MaskEmail(user.Email)).Msg("Rollback of partially provisioned user failed")
		}
		return nil, storageErr("provider link create", err)
	}

	log.Info().Str("provider", provider).Str("user", logutil.MaskEmail(user.Email)).Msg("Provisioned account from provider assertion")
	return user, nil
}

// uniqueUsername derives a username from the email local part and provider
// name, appending numeric suffixes until it is free.
func (l *SocialIdentityLinker) uniqueUsername(ctx context.Context, businessID, email, provider string) (string, error) {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	base := sanitizeUsername(local) + "." + provider

	candidate := base
	for suffix := 1; ; suffix++ {
		_, err := l.users.GetByUsername(ctx, businessID, candidate)
		if errors.Is(err, ErrUserNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", storageErr("username lookup", err)
		}
		candidate = fmt.Sprintf("%s%d", base, suffix)
	}
}

// sanitizeUsername strips characters outside the allowed username shape.
func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	trimmed := strings.Trim(b.String(), ".")
	if trimmed == "" {
		return "user"
	}
	return trimmed
}

func validProvider(provider string) bool {
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}
