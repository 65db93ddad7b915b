package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/repository"
)

// ConversationRegistry maps an unordered user pair plus an optional offer to
// exactly one conversation.
type ConversationRegistry interface {
	// GetOrCreate returns the conversation for (userA, userB, offerID), creating it
	// if needed. Concurrent callers with the same key get the same conversation.
	GetOrCreate(ctx context.Context, userA, userB string, offerID *uuid.UUID) (*model.Conversation, error)
}

// Registry implements ConversationRegistry on top of a store that enforces
// uniqueness of the conversation key.
type Registry struct {
	convs repository.ConversationRepository
	log   *zap.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(convs repository.ConversationRepository, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{convs: convs, log: logger}
}

// GetOrCreate runs lookup, insert, then re-lookup when the insert lost a race.
// The unique index decides the winner; the re-lookup only lets losers converge.
// A pair-only lookup is tried last and logged, since reaching it means the
// exact key vanished between the conflict and the re-lookup.
func (r *Registry) GetOrCreate(
	ctx context.Context, userA, userB string, offerID *uuid.UUID,
) (*model.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, validation("conversation participants are required")
	}
	if userA == userB {
		return nil, validation("conversation needs two distinct participants")
	}
	u1, u2 := model.CanonicalPair(userA, userB)

	c, err := r.convs.FindByPair(ctx, u1, u2, offerID)
	switch {
	case err == nil:
		return c, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	c = &model.Conversation{ID: id, User1ID: u1, User2ID: u2, OfferID: offerID}
	err = r.convs.Create(ctx, c)
	switch {
	case err == nil:
		r.log.Info("conversation created",
			zap.String("conversation_id", c.ID.String()),
			zap.String("user1", u1), zap.String("user2", u2))
		return c, nil
	case !errors.Is(err, errs.ErrAlreadyExists):
		return nil, err
	}

	c, err = r.convs.FindByPair(ctx, u1, u2, offerID)
	switch {
	case err == nil:
		return c, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	c, err = r.convs.FindAnyByPair(ctx, u1, u2)
	switch {
	case err == nil:
		r.log.Warn("conversation resolved by pair only",
			zap.String("conversation_id", c.ID.String()),
			zap.String("user1", u1), zap.String("user2", u2))
		return c, nil
	case errors.Is(err, errs.ErrNotFound):
		r.log.Error("conversation unresolvable after conflict",
			zap.String("user1", u1), zap.String("user2", u2))
		return nil, errs.ErrUnresolvable
	default:
		return nil, err
	}
}
