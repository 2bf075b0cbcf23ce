package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeep-io/gatekeep/internal/auth"
)

const linkColumns = `id, business_id, user_id, provider, provider_user_id,
	access_token, refresh_token, token_expires_at, created_at, updated_at`

// ProviderLinkRepository is the PostgreSQL implementation of
// auth.ProviderLinkRepositoryInterface.
type ProviderLinkRepository struct {
	db *pgxpool.Pool
}

// NewProviderLinkRepository creates a ProviderLinkRepository over the given
// pool.
func NewProviderLinkRepository(db *pgxpool.Pool) *ProviderLinkRepository {
	return &ProviderLinkRepository{db: db}
}

func scanLink(row pgx.Row) (*auth.UserProviderLink, error) {
	var link auth.UserProviderLink
	err := row.Scan(
		&link.ID, &link.BusinessID, &link.UserID, &link.Provider,
		&link.ProviderUserID, &link.AccessToken, &link.RefreshToken,
		&link.TokenExpiresAt, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *ProviderLinkRepository) GetByProviderUserID(ctx context.Context, businessID, provider, providerUserID string) (*auth.UserProviderLink, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+linkColumns+` FROM user_provider_links
		WHERE business_id = $1 AND provider = $2 AND provider_user_id = $3`,
		businessID, provider, providerUserID)
	return scanLink(row)
}

// Upsert inserts a link or, when (provider, provider_user_id) already
// exists, refreshes its provider tokens in place.
func (r *ProviderLinkRepository) Upsert(ctx context.Context, businessID string, link *auth.UserProviderLink) (*auth.UserProviderLink, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO user_provider_links (business_id, user_id, provider, provider_user_id, access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, provider, provider_user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = now()
		RETURNING `+linkColumns,
		businessID, link.UserID, link.Provider, link.ProviderUserID,
		link.AccessToken, link.RefreshToken, link.TokenExpiresAt)
	return scanLink(row)
}

func (r *ProviderLinkRepository) DeleteByUserID(ctx context.Context, businessID, userID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM user_provider_links WHERE business_id = $1 AND user_id = $2`,
		businessID, userID)
	return err
}

var _ auth.ProviderLinkRepositoryInterface = (*ProviderLinkRepository)(nil)
