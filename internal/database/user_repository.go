package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeep-io/gatekeep/internal/auth"
)

const uniqueViolation = "23505"

// userColumns is the select list shared by the user lookup queries.
const userColumns = `id, business_id, username, email, password_hash, status,
	failed_login_attempts, locked_at, password_changed_at, email_verified_at,
	otp_hash, otp_expires_at, two_factor_enabled, two_factor_secret,
	recovery_codes, settings_override, session_token, last_login_at,
	created_at, updated_at`

// UserRepository is the PostgreSQL implementation of
// auth.UserRepositoryInterface. Every statement is scoped by business_id.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a UserRepository over the given pool.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user          auth.User
		recoveryCodes []byte
		override      []byte
	)
	err := row.Scan(
		&user.ID, &user.BusinessID, &user.Username, &user.Email,
		&user.PasswordHash, &user.Status, &user.FailedLoginAttempts,
		&user.LockedAt, &user.PasswordChangedAt, &user.EmailVerifiedAt,
		&user.OTPHash, &user.OTPExpiresAt, &user.TwoFactorEnabled,
		&user.TwoFactorSecret, &recoveryCodes, &override,
		&user.SessionToken, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}

	user.RecoveryCodes = make(map[string]bool)
	if len(recoveryCodes) > 0 {
		if err := json.Unmarshal(recoveryCodes, &user.RecoveryCodes); err != nil {
			return nil, fmt.Errorf("decode recovery codes: %w", err)
		}
	}
	user.SettingsOverride = override
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, businessID string, req auth.CreateUserRequest, passwordHash string) (*auth.User, error) {
	status := req.Status
	if status == "" {
		status = auth.UserStatusActive
	}

	var override any
	if len(req.SettingsOverride) > 0 {
		override = []byte(req.SettingsOverride)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO users (business_id, username, email, password_hash, status, email_verified_at, settings_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		businessID, req.Username, req.Email, passwordHash, status, req.EmailVerifiedAt, override)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, auth.ErrUserAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, businessID, id string) (*auth.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return scanUser(row)
}

func (r *UserRepository) GetByUsername(ctx context.Context, businessID, username string) (*auth.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE business_id = $1 AND username = $2`,
		businessID, username)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, businessID, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE business_id = $1 AND email = $2`,
		businessID, email)
	return scanUser(row)
}

func (r *UserRepository) Delete(ctx context.Context, businessID, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE business_id = $1 AND id = $2`, businessID, id)
}

func (r *UserRepository) UpdateEmail(ctx context.Context, businessID, id, email string) error {
	return r.exec(ctx, `
		UPDATE users SET email = $3, email_verified_at = NULL, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, email)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, businessID, id, passwordHash string) error {
	return r.exec(ctx, `
		UPDATE users SET password_hash = $3, password_changed_at = now(), updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, passwordHash)
}

func (r *UserRepository) VerifyEmail(ctx context.Context, businessID, id string) error {
	return r.exec(ctx, `
		UPDATE users SET email_verified_at = now(), updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id)
}

func (r *UserRepository) IncrementFailedLoginAttempts(ctx context.Context, businessID, id string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		WHERE business_id = $1 AND id = $2
		RETURNING failed_login_attempts`,
		businessID, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, auth.ErrUserNotFound
		}
		return 0, err
	}
	return count, nil
}

func (r *UserRepository) ResetFailedLoginAttempts(ctx context.Context, businessID, id string) error {
	return r.exec(ctx, `
		UPDATE users SET failed_login_attempts = 0, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id)
}

func (r *UserRepository) LockUser(ctx context.Context, businessID, id string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET locked_at = $3, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, at)
}

func (r *UserRepository) UnlockUser(ctx context.Context, businessID, id string) error {
	return r.exec(ctx, `
		UPDATE users SET locked_at = NULL, failed_login_attempts = 0, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id)
}

func (r *UserRepository) SetOTP(ctx context.Context, businessID, id, otpHash string, expiresAt time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET otp_hash = $3, otp_expires_at = $4, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, otpHash, expiresAt)
}

func (r *UserRepository) ClearOTP(ctx context.Context, businessID, id string) error {
	return r.exec(ctx, `
		UPDATE users SET otp_hash = '', otp_expires_at = NULL, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id)
}

func (r *UserRepository) SetTwoFactor(ctx context.Context, businessID, id string, enabled bool, secret string, recoveryCodes map[string]bool) error {
	if recoveryCodes == nil {
		recoveryCodes = make(map[string]bool)
	}
	blob, err := json.Marshal(recoveryCodes)
	if err != nil {
		return fmt.Errorf("encode recovery codes: %w", err)
	}
	return r.exec(ctx, `
		UPDATE users SET two_factor_enabled = $3, two_factor_secret = $4, recovery_codes = $5, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, enabled, secret, blob)
}

// MarkRecoveryCodeUsed flips one recovery code to used. The WHERE clause
// makes the write conditional so two concurrent redemptions of the same
// code cannot both succeed.
func (r *UserRepository) MarkRecoveryCodeUsed(ctx context.Context, businessID, id, code string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET recovery_codes = jsonb_set(recovery_codes, ARRAY[$3], 'true'::jsonb), updated_at = now()
		WHERE business_id = $1 AND id = $2
		  AND recovery_codes ? $3
		  AND recovery_codes ->> $3 = 'false'`,
		businessID, id, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish an unknown code from one already consumed.
	var used *bool
	err = r.db.QueryRow(ctx, `
		SELECT (recovery_codes ->> $3)::boolean FROM users
		WHERE business_id = $1 AND id = $2`,
		businessID, id, code).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ErrUserNotFound
		}
		return err
	}
	if used != nil && *used {
		return auth.ErrRecoveryCodeUsed
	}
	return auth.ErrTwoFactorInvalid
}

func (r *UserRepository) SetSessionToken(ctx context.Context, businessID, id, token string, lastLoginAt time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET session_token = $3, last_login_at = $4, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, token, lastLoginAt)
}

func (r *UserRepository) ClearSessionToken(ctx context.Context, businessID, id string) error {
	return r.exec(ctx, `
		UPDATE users SET session_token = '', updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id)
}

func (r *UserRepository) UpdateSettingsOverride(ctx context.Context, businessID, id string, override json.RawMessage) error {
	var blob any
	if len(override) > 0 {
		blob = []byte(override)
	}
	return r.exec(ctx, `
		UPDATE users SET settings_override = $3, updated_at = now()
		WHERE business_id = $1 AND id = $2`,
		businessID, id, blob)
}

// exec runs a statement that must match exactly one user row.
func (r *UserRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

var _ auth.UserRepositoryInterface = (*UserRepository)(nil)
