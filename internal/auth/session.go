package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/logutil"
)

// SessionManager issues session tokens, records AuthLog entries, enforces
// the per-account concurrent-session limit and terminates sessions.
type SessionManager struct {
	users   UserRepositoryInterface
	authLog AuthLogRepositoryInterface
	tokens  *JWTManager
	now     func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(users UserRepositoryInterface, authLog AuthLogRepositoryInterface, tokens *JWTManager) *SessionManager {
	return &SessionManager{users: users, authLog: authLog, tokens: tokens, now: time.Now}
}

// CompleteLogin establishes an authenticated session for user. Every step
// that fails triggers compensating cleanup so the transport session, the
// user row and the audit log never disagree:
//
//   - the session token is persisted on the user row before anything else;
//   - an AuthLog row is inserted; a session without an audit record is not
//     allowed to exist, so insertion failure tears the session down;
//   - the online-session count is checked after insertion; if it exceeds
//     the limit the just-created session is terminated and
//     ErrSessionLimitExceeded returned. Two concurrent logins may both pass
//     this check — the limit is a soft bound, not a security boundary.
func (m *SessionManager) CompleteLogin(ctx context.Context, user *User, settings Settings, method string, rc RequestContext) (string, error) {
	token, err := m.tokens.Generate(user, settings.SessionTimeout())
	if err != nil {
		return "", storageErr("session token generation", err)
	}

	now := m.now()
	if err := m.users.SetSessionToken(ctx, user.BusinessID, user.ID, token, now); err != nil {
		m.invalidateTransport(rc)
		return "", storageErr("session token persist", err)
	}

	entry := &AuthLog{
		BusinessID:     user.BusinessID,
		UserID:         user.ID,
		UserAgent:      rc.UserAgent,
		IPAddress:      rc.IPAddress,
		SessionToken:   token,
		LoginAt:        now,
		LoginMethod:    method,
		Online:         true,
		LastActivityAt: now,
	}
	if _, err := m.authLog.Create(ctx, user.BusinessID, entry); err != nil {
		if clearErr := m.users.ClearSessionToken(ctx, user.BusinessID, user.ID); clearErr != nil {
			log.Error().Err(clearErr).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to clear session token during login rollback")
		}
		m.invalidateTransport(rc)
		return "", storageErr("auth log insert", err)
	}

	count, err := m.authLog.CountOnline(ctx, user.BusinessID, user.ID)
	if err != nil {
		m.terminate(ctx, user, token, rc)
		return "", storageErr("online session count", err)
	}
	if count > settings.MaxLoginLimit {
		m.terminate(ctx, user, token, rc)
		log.Warn().Str("user", logutil.MaskEmail(user.Email)).Int("online", count).Int("limit", settings.MaxLoginLimit).Msg("Concurrent session limit exceeded, terminating new session")
		return "", ErrSessionLimitExceeded
	}

	if rc.Transport != nil {
		if err := rc.Transport.Set(token, settings.SessionTimeout()); err != nil {
			m.terminate(ctx, user, token, rc)
			return "", storageErr("transport session set", err)
		}
	}

	user.SessionToken = token
	user.LastLoginAt = &now
	return token, nil
}

// LogoutCurrentDevice closes the AuthLog row for one session token, clears
// the user's session token if it is the current one, and invalidates the
// transport session.
func (m *SessionManager) LogoutCurrentDevice(ctx context.Context, businessID, userID, sessionToken string, rc RequestContext) error {
	now := m.now()
	if err := m.authLog.CloseBySessionToken(ctx, businessID, userID, sessionToken, now); err != nil {
		return storageErr("auth log close", err)
	}

	user, err := m.users.GetByID(ctx, businessID, userID)
	if err == nil && user.SessionToken == sessionToken {
		if err := m.users.ClearSessionToken(ctx, businessID, userID); err != nil {
			return storageErr("session token clear", err)
		}
	}

	m.invalidateTransport(rc)
	return nil
}

// LogoutAllDevices flips every AuthLog row for the user offline and clears
// the stored session token.
func (m *SessionManager) LogoutAllDevices(ctx context.Context, businessID, userID string, rc RequestContext) error {
	if err := m.authLog.CloseAllForUser(ctx, businessID, userID, m.now()); err != nil {
		return storageErr("auth log close all", err)
	}
	if err := m.users.ClearSessionToken(ctx, businessID, userID); err != nil {
		return storageErr("session token clear", err)
	}
	m.invalidateTransport(rc)
	return nil
}

// ActiveSessions lists the online AuthLog rows for the user.
func (m *SessionManager) ActiveSessions(ctx context.Context, businessID, userID string) ([]*AuthLog, error) {
	sessions, err := m.authLog.ListOnline(ctx, businessID, userID)
	if err != nil {
		return nil, storageErr("session list", err)
	}
	return sessions, nil
}

// TouchActivity stamps last-activity on the AuthLog row for sessionToken.
// Best-effort: failures are logged, not propagated.
func (m *SessionManager) TouchActivity(ctx context.Context, businessID, sessionToken string) {
	if err := m.authLog.TouchActivity(ctx, businessID, sessionToken, m.now()); err != nil {
		log.Debug().Err(err).Str("token", logutil.MaskToken(sessionToken)).Msg("Failed to touch session activity")
	}
}

// terminate tears down a just-created session: audit row closed, user row
// cleared, transport invalidated. Used for both the concurrency-limit
// eviction and mid-login storage failures.
func (m *SessionManager) terminate(ctx context.Context, user *User, token string, rc RequestContext) {
	if err := m.authLog.CloseBySessionToken(ctx, user.BusinessID, user.ID, token, m.now()); err != nil {
		log.Error().Err(err).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to close auth log during session termination")
	}
	if err := m.users.ClearSessionToken(ctx, user.BusinessID, user.ID); err != nil {
		log.Error().Err(err).Str("user", logutil.MaskEmail(user.Email)).Msg("Failed to clear session token during session termination")
	}
	m.invalidateTransport(rc)
}

func (m *SessionManager) invalidateTransport(rc RequestContext) {
	if rc.Transport == nil {
		return
	}
	if err := rc.Transport.Invalidate(); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate transport session")
	}
}
