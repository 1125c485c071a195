package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
)

type RuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListByUser returns the user's rules, highest confidence first, with the category name resolved.
func (r *RuleRepository) ListByUser(ctx context.Context, userID int64) ([]model.CategoryRule, error) {
	query := `
        SELECT r.id, r.user_id, r.category_id, c.name, r.rule_type, r.pattern, r.confidence
        FROM category_rules r
        JOIN email_categories c ON c.id = r.category_id
        WHERE r.user_id = $1
        ORDER BY r.confidence DESC, r.id ASC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.CategoryRule
	for rows.Next() {
		var rule model.CategoryRule
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.CategoryID, &rule.CategoryName,
			&rule.RuleType, &rule.Pattern, &rule.Confidence); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.CategoryRule) error {
	query := `
        INSERT INTO category_rules (user_id, category_id, rule_type, pattern, confidence)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.db.QueryRow(ctx, query, rule.UserID, rule.CategoryID, rule.RuleType, rule.Pattern, rule.Confidence).Scan(&rule.ID)
}
