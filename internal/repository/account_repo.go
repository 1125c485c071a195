package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
	"inboxwhats/pkg/util"
)

// AccountRepository stores linked mail accounts. Tokens are sealed before
// they reach the table and opened on the way out.
type AccountRepository struct {
	db     *pgxpool.Pool
	sealer *util.Sealer
}

func NewAccountRepository(db *pgxpool.Pool, sealer *util.Sealer) *AccountRepository {
	return &AccountRepository{db: db, sealer: sealer}
}

func (r *AccountRepository) Get(ctx context.Context, userID int64, provider string) (*model.EmailAccount, error) {
	query := `
        SELECT id, user_id, provider, email_address, access_token_sealed, refresh_token_sealed, token_expiry
        FROM email_accounts
        WHERE user_id = $1 AND provider = $2
    `
	var a model.EmailAccount
	var access, refresh string
	err := r.db.QueryRow(ctx, query, userID, provider).Scan(
		&a.ID, &a.UserID, &a.Provider, &a.EmailAddress, &access, &refresh, &a.TokenExpiry,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if a.AccessToken, err = r.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("open access token for user %d: %w", userID, err)
	}
	if a.RefreshToken, err = r.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token for user %d: %w", userID, err)
	}
	return &a, nil
}

// Upsert links (or relinks) an account for the user.
func (r *AccountRepository) Upsert(ctx context.Context, a *model.EmailAccount) error {
	access, err := r.sealer.Seal(a.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.sealer.Seal(a.RefreshToken)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO email_accounts (user_id, provider, email_address, access_token_sealed, refresh_token_sealed, token_expiry)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, provider) DO UPDATE SET
            email_address = EXCLUDED.email_address,
            access_token_sealed = EXCLUDED.access_token_sealed,
            refresh_token_sealed = EXCLUDED.refresh_token_sealed,
            token_expiry = EXCLUDED.token_expiry,
            updated_at = NOW()
        RETURNING id
    `
	return r.db.QueryRow(ctx, query, a.UserID, a.Provider, a.EmailAddress, access, refresh, a.TokenExpiry).Scan(&a.ID)
}

// UpdateAccessToken persists a refreshed access token.
func (r *AccountRepository) UpdateAccessToken(ctx context.Context, userID int64, provider, token string, expiry time.Time) error {
	sealed, err := r.sealer.Seal(token)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
        UPDATE email_accounts
        SET access_token_sealed = $3, token_expiry = $4, updated_at = NOW()
        WHERE user_id = $1 AND provider = $2
    `, userID, provider, sealed, expiry)
	return err
}

// HasLinked reports whether the user holds at least one account with a refresh token.
func (r *AccountRepository) HasLinked(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM email_accounts WHERE user_id = $1 AND refresh_token_sealed <> '')
    `, userID).Scan(&ok)
	return ok, err
}

// ListLinkedUserIDs returns every user holding at least one linked account.
func (r *AccountRepository) ListLinkedUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
        SELECT DISTINCT user_id FROM email_accounts WHERE refresh_token_sealed <> '' ORDER BY user_id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
