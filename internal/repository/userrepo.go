// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/offer-chat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides lazy user records keyed by the external identity.
type UserRepository interface {
	// Upsert creates the user or refreshes its profile. Empty input fields never
	// blank stored values. The stored row is written back into u.
	Upsert(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// ProductRepository provides the product records offers are made on.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, p *model.Product) error
	// GetByID loads a product by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
}
