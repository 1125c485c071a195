package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx,
		`SELECT id, chat_address, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.ChatAddress, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) GetByChatAddress(ctx context.Context, addr string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx,
		`SELECT id, chat_address, created_at FROM users WHERE chat_address = $1`, addr,
	).Scan(&u.ID, &u.ChatAddress, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// EnsureByChatAddress returns the user for addr, creating it on first contact.
func (r *UserRepository) EnsureByChatAddress(ctx context.Context, addr string) (*model.User, error) {
	query := `
        INSERT INTO users (chat_address)
        VALUES ($1)
        ON CONFLICT (chat_address) DO UPDATE SET chat_address = EXCLUDED.chat_address
        RETURNING id, chat_address, created_at
    `
	var u model.User
	if err := r.db.QueryRow(ctx, query, addr).Scan(&u.ID, &u.ChatAddress, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
