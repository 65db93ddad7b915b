package postgres

import (
	"context"

	"github.com/and161185/offer-chat/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Upsert inserts the user or refreshes non-empty profile fields.
func (r *UserRepo) Upsert(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, first_name, last_name, profile_image)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  first_name    = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
  last_name     = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
  profile_image = COALESCE(NULLIF(EXCLUDED.profile_image, ''), users.profile_image)
RETURNING first_name, last_name, profile_image, created_at`
	row := r.db.conn(ctx).QueryRow(ctx, q, u.ID, u.FirstName, u.LastName, u.ProfileImage)
	if err := row.Scan(&u.FirstName, &u.LastName, &u.ProfileImage, &u.CreatedAt); err != nil {
		return translate(err, "upsert user")
	}
	return nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	const q = `
SELECT id, first_name, last_name, profile_image, created_at
FROM users WHERE id=$1`
	var u model.User
	err := r.db.conn(ctx).QueryRow(ctx, q, id).Scan(&u.ID, &u.FirstName, &u.LastName, &u.ProfileImage, &u.CreatedAt)
	if err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}
