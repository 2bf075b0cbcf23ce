package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockUserRepository is an in-memory implementation of
// UserRepositoryInterface for testing.
type MockUserRepository struct {
	mu         sync.RWMutex
	users      map[string]*User // key: businessID + "/" + id
	byUsername map[string]*User
	byEmail    map[string]*User

	CreateFn          func(ctx context.Context, businessID string, req CreateUserRequest, passwordHash string) (*User, error)
	GetByEmailFn      func(ctx context.Context, businessID, email string) (*User, error)
	SetSessionTokenFn func(ctx context.Context, businessID, id, token string, lastLoginAt time.Time) error
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:      make(map[string]*User),
		byUsername: make(map[string]*User),
		byEmail:    make(map[string]*User),
	}
}

func scopedKey(businessID, key string) string {
	return businessID + "/" + key
}

func (m *MockUserRepository) Create(ctx context.Context, businessID string, req CreateUserRequest, passwordHash string) (*User, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, businessID, req, passwordHash)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUsername[scopedKey(businessID, req.Username)]; exists {
		return nil, ErrUserAlreadyExists
	}
	if _, exists := m.byEmail[scopedKey(businessID, req.Email)]; exists {
		return nil, ErrUserAlreadyExists
	}

	now := time.Now()
	status := req.Status
	if status == "" {
		status = UserStatusActive
	}
	user := &User{
		ID:                uuid.New().String(),
		BusinessID:        businessID,
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      passwordHash,
		Status:            status,
		PasswordChangedAt: now,
		EmailVerifiedAt:   req.EmailVerifiedAt,
		SettingsOverride:  req.SettingsOverride,
		RecoveryCodes:     make(map[string]bool),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	m.users[scopedKey(businessID, user.ID)] = user
	m.byUsername[scopedKey(businessID, user.Username)] = user
	m.byEmail[scopedKey(businessID, user.Email)] = user
	return user, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, businessID, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, businessID, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.byUsername[scopedKey(businessID, username)]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, businessID, email string) (*User, error) {
	if m.GetByEmailFn != nil {
		return m.GetByEmailFn(ctx, businessID, email)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.byEmail[scopedKey(businessID, email)]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	delete(m.byUsername, scopedKey(businessID, user.Username))
	delete(m.byEmail, scopedKey(businessID, user.Email))
	delete(m.users, scopedKey(businessID, id))
	return nil
}

func (m *MockUserRepository) UpdateEmail(ctx context.Context, businessID, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}

	delete(m.byEmail, scopedKey(businessID, user.Email))
	user.Email = email
	user.EmailVerifiedAt = nil
	user.UpdatedAt = time.Now()
	m.byEmail[scopedKey(businessID, email)] = user
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, businessID, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = time.Now()
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) VerifyEmail(ctx context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	now := time.Now()
	user.EmailVerifiedAt = &now
	user.UpdatedAt = now
	return nil
}

func (m *MockUserRepository) IncrementFailedLoginAttempts(ctx context.Context, businessID, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return 0, ErrUserNotFound
	}
	user.FailedLoginAttempts++
	user.UpdatedAt = time.Now()
	return user.FailedLoginAttempts, nil
}

func (m *MockUserRepository) ResetFailedLoginAttempts(ctx context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.FailedLoginAttempts = 0
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) LockUser(ctx context.Context, businessID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.LockedAt = &at
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) UnlockUser(ctx context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.LockedAt = nil
	user.FailedLoginAttempts = 0
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) SetOTP(ctx context.Context, businessID, id, otpHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.OTPHash = otpHash
	user.OTPExpiresAt = &expiresAt
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) ClearOTP(ctx context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.OTPHash = ""
	user.OTPExpiresAt = nil
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) SetTwoFactor(ctx context.Context, businessID, id string, enabled bool, secret string, recoveryCodes map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.TwoFactorEnabled = enabled
	user.TwoFactorSecret = secret
	if recoveryCodes == nil {
		recoveryCodes = make(map[string]bool)
	}
	user.RecoveryCodes = recoveryCodes
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) MarkRecoveryCodeUsed(ctx context.Context, businessID, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	used, exists := user.RecoveryCodes[code]
	if !exists {
		return ErrTwoFactorInvalid
	}
	if used {
		return ErrRecoveryCodeUsed
	}
	user.RecoveryCodes[code] = true
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) SetSessionToken(ctx context.Context, businessID, id, token string, lastLoginAt time.Time) error {
	if m.SetSessionTokenFn != nil {
		return m.SetSessionTokenFn(ctx, businessID, id, token, lastLoginAt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.SessionToken = token
	user.LastLoginAt = &lastLoginAt
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) ClearSessionToken(ctx context.Context, businessID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.SessionToken = ""
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MockUserRepository) UpdateSettingsOverride(ctx context.Context, businessID, id string, override json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[scopedKey(businessID, id)]
	if !exists {
		return ErrUserNotFound
	}
	user.SettingsOverride = override
	user.UpdatedAt = time.Now()
	return nil
}

// MockAuthLogRepository is an in-memory implementation of
// AuthLogRepositoryInterface for testing.
type MockAuthLogRepository struct {
	mu      sync.RWMutex
	entries []*AuthLog

	CreateFn func(ctx context.Context, businessID string, entry *AuthLog) (*AuthLog, error)
}

// NewMockAuthLogRepository creates a new mock auth log repository.
func NewMockAuthLogRepository() *MockAuthLogRepository {
	return &MockAuthLogRepository{}
}

func (m *MockAuthLogRepository) Create(ctx context.Context, businessID string, entry *AuthLog) (*AuthLog, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, businessID, entry)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *entry
	stored.ID = uuid.New().String()
	stored.BusinessID = businessID
	m.entries = append(m.entries, &stored)
	return &stored, nil
}

func (m *MockAuthLogRepository) CountOnline(ctx context.Context, businessID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if e.BusinessID == businessID && e.UserID == userID && e.Online {
			count++
		}
	}
	return count, nil
}

func (m *MockAuthLogRepository) ListOnline(ctx context.Context, businessID, userID string) ([]*AuthLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var online []*AuthLog
	for _, e := range m.entries {
		if e.BusinessID == businessID && e.UserID == userID && e.Online {
			online = append(online, e)
		}
	}
	return online, nil
}

func (m *MockAuthLogRepository) CloseBySessionToken(ctx context.Context, businessID, userID, sessionToken string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.BusinessID == businessID && e.UserID == userID && e.SessionToken == sessionToken && e.Online {
			e.Online = false
			logoutAt := at
			e.LogoutAt = &logoutAt
		}
	}
	return nil
}

func (m *MockAuthLogRepository) CloseAllForUser(ctx context.Context, businessID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.BusinessID == businessID && e.UserID == userID && e.Online {
			e.Online = false
			logoutAt := at
			e.LogoutAt = &logoutAt
		}
	}
	return nil
}

func (m *MockAuthLogRepository) TouchActivity(ctx context.Context, businessID, sessionToken string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.BusinessID == businessID && e.SessionToken == sessionToken && e.Online {
			e.LastActivityAt = at
			return nil
		}
	}
	return ErrSessionRevoked
}

func (m *MockAuthLogRepository) DeleteByUserID(ctx context.Context, businessID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if !(e.BusinessID == businessID && e.UserID == userID) {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

// Entries returns a snapshot of all rows, for assertions.
func (m *MockAuthLogRepository) Entries() []*AuthLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]*AuthLog, len(m.entries))
	copy(snapshot, m.entries)
	return snapshot
}

// MockProviderLinkRepository is an in-memory implementation of
// ProviderLinkRepositoryInterface for testing.
type MockProviderLinkRepository struct {
	mu    sync.RWMutex
	links map[string]*UserProviderLink // key: businessID/provider/providerUserID

	UpsertFn func(ctx context.Context, businessID string, link *UserProviderLink) (*UserProviderLink, error)
}

// NewMockProviderLinkRepository creates a new mock provider link repository.
func NewMockProviderLinkRepository() *MockProviderLinkRepository {
	return &MockProviderLinkRepository{
		links: make(map[string]*UserProviderLink),
	}
}

func linkKey(businessID, provider, providerUserID string) string {
	return businessID + "/" + provider + "/" + providerUserID
}

func (m *MockProviderLinkRepository) GetByProviderUserID(ctx context.Context, businessID, provider, providerUserID string) (*UserProviderLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[linkKey(businessID, provider, providerUserID)]
	if !exists {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

func (m *MockProviderLinkRepository) Upsert(ctx context.Context, businessID string, link *UserProviderLink) (*UserProviderLink, error) {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, businessID, link)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := linkKey(businessID, link.Provider, link.ProviderUserID)
	now := time.Now()
	if existing, exists := m.links[key]; exists {
		existing.AccessToken = link.AccessToken
		existing.RefreshToken = link.RefreshToken
		existing.TokenExpiresAt = link.TokenExpiresAt
		existing.UpdatedAt = now
		return existing, nil
	}

	stored := *link
	stored.ID = uuid.New().String()
	stored.BusinessID = businessID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.links[key] = &stored
	return &stored, nil
}

func (m *MockProviderLinkRepository) DeleteByUserID(ctx context.Context, businessID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, link := range m.links {
		if link.BusinessID == businessID && link.UserID == userID {
			delete(m.links, key)
		}
	}
	return nil
}

// MockTransportSession is an in-memory TransportSession for testing.
type MockTransportSession struct {
	mu          sync.Mutex
	Token       string
	Expiry      time.Duration
	Invalidated bool

	SetFn func(token string, expiry time.Duration) error
}

func (m *MockTransportSession) Set(token string, expiry time.Duration) error {
	if m.SetFn != nil {
		return m.SetFn(token, expiry)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Token = token
	m.Expiry = expiry
	m.Invalidated = false
	return nil
}

func (m *MockTransportSession) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Token = ""
	m.Invalidated = true
	return nil
}

// MockNotifier records outbound notifications for assertions.
type MockNotifier struct {
	mu    sync.Mutex
	Sent  []MockNotification
	Error error
}

// MockNotification is one recorded send.
type MockNotification struct {
	Template string
	To       string
	Vars     map[string]string
}

func (m *MockNotifier) Send(ctx context.Context, template, to string, vars map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	m.Sent = append(m.Sent, MockNotification{Template: template, To: to, Vars: vars})
	return nil
}

// Last returns the most recent notification, or nil.
func (m *MockNotifier) Last() *MockNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// Ensure mocks implement interfaces.
var (
	_ UserRepositoryInterface         = (*MockUserRepository)(nil)
	_ AuthLogRepositoryInterface      = (*MockAuthLogRepository)(nil)
	_ ProviderLinkRepositoryInterface = (*MockProviderLinkRepository)(nil)
	_ TransportSession                = (*MockTransportSession)(nil)
	_ Notifier                        = (*MockNotifier)(nil)
)
