package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
)

type PreferenceRepository struct {
	db *pgxpool.Pool
}

func NewPreferenceRepository(db *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID int64) (*model.Preference, error) {
	var p model.Preference
	err := r.db.QueryRow(ctx, `
        SELECT user_id, promo_handling, onboarding_completed, inbox_scanned
        FROM preferences WHERE user_id = $1
    `, userID).Scan(&p.UserID, &p.PromoHandling, &p.OnboardingCompleted, &p.InboxScanned)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PreferenceRepository) Upsert(ctx context.Context, p *model.Preference) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO preferences (user_id, promo_handling, onboarding_completed, inbox_scanned)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE SET
            promo_handling = EXCLUDED.promo_handling,
            onboarding_completed = EXCLUDED.onboarding_completed,
            inbox_scanned = preferences.inbox_scanned OR EXCLUDED.inbox_scanned,
            updated_at = NOW()
    `, p.UserID, p.PromoHandling, p.OnboardingCompleted, p.InboxScanned)
	return err
}

func (r *PreferenceRepository) MarkInboxScanned(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO preferences (user_id, inbox_scanned)
        VALUES ($1, TRUE)
        ON CONFLICT (user_id) DO UPDATE SET inbox_scanned = TRUE, updated_at = NOW()
    `, userID)
	return err
}
