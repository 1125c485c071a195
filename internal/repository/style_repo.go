package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
)

type StyleRepository struct {
	db *pgxpool.Pool
}

func NewStyleRepository(db *pgxpool.Pool) *StyleRepository {
	return &StyleRepository{db: db}
}

func (r *StyleRepository) Get(ctx context.Context, userID int64) (*model.StyleProfile, error) {
	query := `
        SELECT user_id, sample_texts, inferred_tone, avg_paragraph_length, uses_greeting, greeting_style,
               uses_signature, signature_style, formality_score, last_updated
        FROM style_profiles
        WHERE user_id = $1
    `
	var p model.StyleProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.SampleTexts, &p.Tone, &p.AvgParagraphLength,
		&p.UsesGreeting, &p.GreetingStyle, &p.UsesSignature, &p.SignatureStyle, &p.FormalityScore, &p.LastUpdated)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Upsert replaces the profile wholesale; profiles are regenerated, never patched.
func (r *StyleRepository) Upsert(ctx context.Context, p *model.StyleProfile) error {
	samples := p.SampleTexts
	if samples == nil {
		samples = []string{}
	}
	query := `
        INSERT INTO style_profiles (user_id, sample_texts, inferred_tone, avg_paragraph_length, uses_greeting,
                                    greeting_style, uses_signature, signature_style, formality_score, last_updated)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            sample_texts = EXCLUDED.sample_texts,
            inferred_tone = EXCLUDED.inferred_tone,
            avg_paragraph_length = EXCLUDED.avg_paragraph_length,
            uses_greeting = EXCLUDED.uses_greeting,
            greeting_style = EXCLUDED.greeting_style,
            uses_signature = EXCLUDED.uses_signature,
            signature_style = EXCLUDED.signature_style,
            formality_score = EXCLUDED.formality_score,
            last_updated = NOW()
        RETURNING last_updated
    `
	return r.db.QueryRow(ctx, query, p.UserID, samples, p.Tone, p.AvgParagraphLength, p.UsesGreeting,
		p.GreetingStyle, p.UsesSignature, p.SignatureStyle, p.FormalityScore).Scan(&p.LastUpdated)
}
