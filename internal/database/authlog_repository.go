package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeep-io/gatekeep/internal/auth"
)

// AuthLogRepository is the PostgreSQL implementation of
// auth.AuthLogRepositoryInterface. Rows are closed, never deleted, except
// through bulk account removal.
type AuthLogRepository struct {
	db *pgxpool.Pool
}

// NewAuthLogRepository creates an AuthLogRepository over the given pool.
func NewAuthLogRepository(db *pgxpool.Pool) *AuthLogRepository {
	return &AuthLogRepository{db: db}
}

func (r *AuthLogRepository) Create(ctx context.Context, businessID string, entry *auth.AuthLog) (*auth.AuthLog, error) {
	stored := *entry
	stored.BusinessID = businessID
	err := r.db.QueryRow(ctx, `
		INSERT INTO auth_log (business_id, user_id, user_agent, ip_address, session_token, login_at, login_method, online, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		businessID, entry.UserID, entry.UserAgent, entry.IPAddress,
		entry.SessionToken, entry.LoginAt, entry.LoginMethod, entry.Online,
		entry.LastActivityAt).Scan(&stored.ID)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *AuthLogRepository) CountOnline(ctx context.Context, businessID, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM auth_log
		WHERE business_id = $1 AND user_id = $2 AND online`,
		businessID, userID).Scan(&count)
	return count, err
}

func (r *AuthLogRepository) ListOnline(ctx context.Context, businessID, userID string) ([]*auth.AuthLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, business_id, user_id, user_agent, ip_address, session_token,
		       login_at, logout_at, login_method, online, last_activity_at
		FROM auth_log
		WHERE business_id = $1 AND user_id = $2 AND online
		ORDER BY login_at DESC`,
		businessID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*auth.AuthLog
	for rows.Next() {
		var entry auth.AuthLog
		if err := rows.Scan(
			&entry.ID, &entry.BusinessID, &entry.UserID, &entry.UserAgent,
			&entry.IPAddress, &entry.SessionToken, &entry.LoginAt,
			&entry.LogoutAt, &entry.LoginMethod, &entry.Online,
			&entry.LastActivityAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, &entry)
	}
	return sessions, rows.Err()
}

func (r *AuthLogRepository) CloseBySessionToken(ctx context.Context, businessID, userID, sessionToken string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE auth_log SET online = false, logout_at = $4
		WHERE business_id = $1 AND user_id = $2 AND session_token = $3 AND online`,
		businessID, userID, sessionToken, at)
	return err
}

func (r *AuthLogRepository) CloseAllForUser(ctx context.Context, businessID, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE auth_log SET online = false, logout_at = $3
		WHERE business_id = $1 AND user_id = $2 AND online`,
		businessID, userID, at)
	return err
}

func (r *AuthLogRepository) TouchActivity(ctx context.Context, businessID, sessionToken string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth_log SET last_activity_at = $3
		WHERE business_id = $1 AND session_token = $2 AND online`,
		businessID, sessionToken, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSessionRevoked
	}
	return nil
}

func (r *AuthLogRepository) DeleteByUserID(ctx context.Context, businessID, userID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM auth_log WHERE business_id = $1 AND user_id = $2`,
		businessID, userID)
	return err
}

var _ auth.AuthLogRepositoryInterface = (*AuthLogRepository)(nil)
