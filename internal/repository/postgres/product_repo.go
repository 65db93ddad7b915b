package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/offer-chat/internal/model"
)

// ProductRepo implements ProductRepository using PostgreSQL.
type ProductRepo struct{ db *DB }

// NewProductRepo constructs a product repository.
func NewProductRepo(db *DB) *ProductRepo { return &ProductRepo{db: db} }

// Create inserts a product row and fills CreatedAt.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	const q = `
INSERT INTO products (id, owner_id, name, description, price)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.conn(ctx).QueryRow(ctx, q, p.ID, p.OwnerID, p.Name, p.Description, p.Price).Scan(&p.CreatedAt)
	return translate(err, "create product")
}

// GetByID selects a product by ID.
func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	const q = `
SELECT id, owner_id, name, description, price, created_at
FROM products WHERE id=$1`
	var p model.Product
	err := r.db.conn(ctx).QueryRow(ctx, q, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.CreatedAt)
	if err != nil {
		return nil, translate(err, "get product")
	}
	return &p, nil
}
