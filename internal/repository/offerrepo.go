package repository

import (
	"context"

	"github.com/and161185/offer-chat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// OfferRepository stores offers and serializes their status transitions.
type OfferRepository interface {
	// Create inserts a new pending offer.
	Create(ctx context.Context, o *model.Offer) error

	// GetByID returns a single offer by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Offer, error)

	// Transition moves the offer from one status to another.
	// Returns errs.ErrInvalidState if the offer is no longer in status from.
	Transition(ctx context.Context, id uuid.UUID, from, to model.OfferStatus) error

	// DeletePending removes the offer only while it is pending, together with
	// any message-less conversation opened for it. Returns errs.ErrInvalidState
	// if the offer is not pending or a conversation with messages still refers to it.
	DeletePending(ctx context.Context, id uuid.UUID) error

	// ListByProductOwner returns offers made on products owned by ownerID, newest first.
	ListByProductOwner(ctx context.Context, ownerID string) ([]model.Offer, error)

	// ListBySender returns offers sent by senderID, newest first.
	ListBySender(ctx context.Context, senderID string) ([]model.Offer, error)
}
