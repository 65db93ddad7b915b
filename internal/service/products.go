package service

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/repository"
)

// ProductService manages the products offers are made on.
type ProductService interface {
	// Create validates and stores a product owned by the actor.
	Create(ctx context.Context, actor model.User, name, description string, price int64) (*model.Product, error)
	// Get returns a product by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Product, error)
}

type ProductServiceImpl struct {
	users    repository.UserRepository
	products repository.ProductRepository
}

// NewProductService constructs ProductService.
func NewProductService(users repository.UserRepository, products repository.ProductRepository) *ProductServiceImpl {
	return &ProductServiceImpl{users: users, products: products}
}

// Create stores a product after validation:
// - name has at least 3 characters after trimming
// - description is not blank
// - price (cents) is positive
func (s *ProductServiceImpl) Create(
	ctx context.Context, actor model.User, name, description string, price int64,
) (*model.Product, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	name, description = strings.TrimSpace(name), strings.TrimSpace(description)
	if len([]rune(name)) < 3 {
		return nil, validation("product name must be at least 3 characters")
	}
	if description == "" {
		return nil, validation("description is required")
	}
	if price <= 0 {
		return nil, validation("price must be positive")
	}
	if err := s.users.Upsert(ctx, &actor); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p := &model.Product{ID: id, OwnerID: actor.ID, Name: name, Description: description, Price: price}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the product or errs.ErrNotFound.
func (s *ProductServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	if id == uuid.Nil {
		return nil, errs.ErrNotFound
	}
	return s.products.GetByID(ctx, id)
}
