package repository

import (
	"context"

	"github.com/and161185/offer-chat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ConversationRepository stores two-party conversations.
// Implementations must enforce uniqueness of (user1, user2, offer).
type ConversationRepository interface {
	// Create inserts a conversation. Returns errs.ErrAlreadyExists on a uniqueness conflict.
	Create(ctx context.Context, c *model.Conversation) error

	// FindByPair looks up the conversation for a canonical pair and offer (nil offer matches NULL).
	FindByPair(ctx context.Context, user1, user2 string, offerID *uuid.UUID) (*model.Conversation, error)

	// FindAnyByPair looks up the most recently updated conversation of a canonical pair, ignoring the offer.
	FindAnyByPair(ctx context.Context, user1, user2 string) (*model.Conversation, error)

	// GetByID returns a conversation by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error)

	// DeleteEmptyForOffer removes conversations opened for offerID that hold no
	// messages yet and reports how many were removed.
	DeleteEmptyForOffer(ctx context.Context, offerID uuid.UUID) (int64, error)

	// ListForUser returns summaries of the user's conversations, most recently updated first.
	ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error)
}

// Transactor runs fn in one storage transaction. Repository calls made with
// the context handed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MessageRepository stores append-only messages.
type MessageRepository interface {
	// Append persists msg, assigns a CreatedAt that is not earlier than any previous
	// message of the conversation and bumps the conversation's UpdatedAt.
	// Returns errs.ErrNotFound if the conversation does not exist.
	Append(ctx context.Context, msg *model.Message) error

	// GetByID returns a single message of the conversation.
	GetByID(ctx context.Context, conversationID, id uuid.UUID) (*model.Message, error)

	// ListByConversation returns messages ordered by CreatedAt, then ID.
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error)
}
