package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
)

type CategoryRepository struct {
	db *pgxpool.Pool
}

func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Seed upserts the catalog; display metadata is refreshed, ids stay stable.
func (r *CategoryRepository) Seed(ctx context.Context, catalog []model.Category) error {
	query := `
        INSERT INTO email_categories (name, display_name, description, icon)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (name) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            description = EXCLUDED.description,
            icon = EXCLUDED.icon
    `
	for _, c := range catalog {
		if _, err := r.db.Exec(ctx, query, c.Name, c.DisplayName, c.Description, c.Icon); err != nil {
			return err
		}
	}
	return nil
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*model.Category, error) {
	return r.getOne(ctx, `SELECT id, name, display_name, description, icon FROM email_categories WHERE name = $1`, name)
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	return r.getOne(ctx, `SELECT id, name, display_name, description, icon FROM email_categories WHERE id = $1`, id)
}

func (r *CategoryRepository) getOne(ctx context.Context, query string, arg any) (*model.Category, error) {
	var c model.Category
	if err := r.db.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Name, &c.DisplayName, &c.Description, &c.Icon); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, display_name, description, icon FROM email_categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.Description, &c.Icon); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
