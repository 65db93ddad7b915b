package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/events"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/repository"
)

// DefaultOpeningMessage opens a conversation when the offer carried no text.
const DefaultOpeningMessage = "I'd like to discuss this offer with you."

// OfferService defines the offer lifecycle.
type OfferService interface {
	// Create makes a pending offer from actor on a product.
	Create(ctx context.Context, actor model.User, productID uuid.UUID, amount int64, message string) (*model.Offer, error)
	// Accept transitions a pending offer to accepted and opens its conversation.
	Accept(ctx context.Context, offerID uuid.UUID, actor model.User) (uuid.UUID, error)
	// Reject deletes a pending offer.
	Reject(ctx context.Context, offerID uuid.UUID, actorID string) error
	// ListReceived returns offers on the user's products, newest first.
	ListReceived(ctx context.Context, userID string) ([]model.Offer, error)
	// ListSent returns offers the user made, newest first.
	ListSent(ctx context.Context, userID string) ([]model.Offer, error)
}

// OfferDeps bundles the collaborators of OfferServiceImpl.
type OfferDeps struct {
	Users         repository.UserRepository
	Products      repository.ProductRepository
	Offers        repository.OfferRepository
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Registry      ConversationRegistry
	// Tx makes acceptance a single transaction. Without it a failed
	// acceptance is undone by compensating writes.
	Tx     repository.Transactor // optional
	Fanout Fanout                // optional
	Events events.Sink           // optional
	Logger *zap.Logger           // optional
}

type OfferServiceImpl struct {
	users    repository.UserRepository
	products repository.ProductRepository
	offers   repository.OfferRepository
	convs    repository.ConversationRepository
	messages repository.MessageRepository
	registry ConversationRegistry
	tx       repository.Transactor
	fanout   Fanout
	events   events.Sink
	log      *zap.Logger
}

// NewOfferService constructs OfferService.
func NewOfferService(d OfferDeps) *OfferServiceImpl {
	s := &OfferServiceImpl{
		users:    d.Users,
		products: d.Products,
		offers:   d.Offers,
		convs:    d.Conversations,
		messages: d.Messages,
		registry: d.Registry,
		tx:       d.Tx,
		fanout:   d.Fanout,
		events:   d.Events,
		log:      d.Logger,
	}
	if s.fanout == nil {
		s.fanout = nopFanout{}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Create validates and stores a pending offer. The sender record is upserted.
func (s *OfferServiceImpl) Create(
	ctx context.Context, actor model.User, productID uuid.UUID, amount int64, message string,
) (*model.Offer, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, validation("amount must be positive")
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == actor.ID {
		return nil, validation("cannot make an offer on your own product")
	}
	if err := s.users.Upsert(ctx, &actor); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	o := &model.Offer{
		ID:        id,
		ProductID: p.ID,
		SenderID:  actor.ID,
		Amount:    amount,
		Message:   strings.TrimSpace(message),
	}
	if err := s.offers.Create(ctx, o); err != nil {
		return nil, err
	}
	s.emit(ctx, events.OfferCreated, map[string]any{
		"offerId":   o.ID.String(),
		"productId": p.ID.String(),
		"senderId":  o.SenderID,
		"ownerId":   p.OwnerID,
		"amount":    o.Amount,
	})
	return o, nil
}

// Accept runs the acceptance pipeline:
//  1. authorize the actor as product owner and check the offer is pending;
//  2. flip pending->accepted with a conditional update (the race arbiter);
//  3. upsert both users, get-or-create the conversation, append the opening message.
//
// With a Transactor, steps 2 and 3 commit together. Otherwise a failure in 3
// removes the still empty conversation and flips the offer back to pending,
// so the call can be retried.
//
// Returns the conversation id.
func (s *OfferServiceImpl) Accept(ctx context.Context, offerID uuid.UUID, actor model.User) (uuid.UUID, error) {
	offer, product, err := s.authorize(ctx, offerID, actor.ID)
	if err != nil {
		return uuid.Nil, err
	}

	var (
		conv *model.Conversation
		msg  *model.Message
	)
	if s.tx != nil {
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.offers.Transition(ctx, offer.ID, model.OfferPending, model.OfferAccepted); err != nil {
				return err
			}
			var err error
			conv, msg, err = s.materialize(ctx, offer, actor)
			return err
		})
		if err != nil {
			if !errors.Is(err, errs.ErrInvalidState) {
				s.log.Warn("offer accept rolled back",
					zap.String("offer_id", offer.ID.String()), zap.Error(err))
			}
			return uuid.Nil, err
		}
	} else {
		if err := s.offers.Transition(ctx, offer.ID, model.OfferPending, model.OfferAccepted); err != nil {
			return uuid.Nil, err
		}
		conv, msg, err = s.materialize(ctx, offer, actor)
		if err != nil {
			s.compensate(context.WithoutCancel(ctx), offer.ID)
			s.log.Warn("offer accept rolled back",
				zap.String("offer_id", offer.ID.String()), zap.Error(err))
			return uuid.Nil, err
		}
	}

	if err := s.fanout.PublishMessage(ctx, *msg); err != nil {
		s.log.Warn("fanout failed",
			zap.String("conversation_id", conv.ID.String()), zap.Error(err))
	}
	s.emit(ctx, events.OfferAccepted, map[string]any{
		"offerId":        offer.ID.String(),
		"productId":      product.ID.String(),
		"conversationId": conv.ID.String(),
		"ownerId":        product.OwnerID,
		"senderId":       offer.SenderID,
	})
	s.emit(ctx, events.MessageCreated, messagePayload(msg))
	s.log.Info("offer accepted",
		zap.String("offer_id", offer.ID.String()),
		zap.String("conversation_id", conv.ID.String()))
	return conv.ID, nil
}

// compensate undoes a partial acceptance: the conversation opened for the
// offer goes away while it is empty, then the offer returns to pending.
func (s *OfferServiceImpl) compensate(ctx context.Context, offerID uuid.UUID) {
	if _, err := s.convs.DeleteEmptyForOffer(ctx, offerID); err != nil {
		s.log.Error("conversation cleanup failed",
			zap.String("offer_id", offerID.String()), zap.Error(err))
	}
	if err := s.offers.Transition(ctx, offerID, model.OfferAccepted, model.OfferPending); err != nil {
		s.log.Error("offer compensation failed",
			zap.String("offer_id", offerID.String()), zap.Error(err))
	}
}

func (s *OfferServiceImpl) materialize(
	ctx context.Context, offer *model.Offer, owner model.User,
) (*model.Conversation, *model.Message, error) {
	if err := s.users.Upsert(ctx, &owner); err != nil {
		return nil, nil, err
	}
	sender := model.User{ID: offer.SenderID}
	if err := s.users.Upsert(ctx, &sender); err != nil {
		return nil, nil, err
	}

	offerID := offer.ID
	conv, err := s.registry.GetOrCreate(ctx, owner.ID, sender.ID, &offerID)
	if err != nil {
		return nil, nil, err
	}

	content := strings.TrimSpace(offer.Message)
	if content == "" {
		content = DefaultOpeningMessage
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, err
	}
	msg := &model.Message{ID: id, ConversationID: conv.ID, SenderID: sender.ID, Content: content}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, nil, err
	}
	msg.Sender = &sender
	return conv, msg, nil
}

// Reject deletes a pending offer on one of the actor's products.
func (s *OfferServiceImpl) Reject(ctx context.Context, offerID uuid.UUID, actorID string) error {
	offer, product, err := s.authorize(ctx, offerID, actorID)
	if err != nil {
		return err
	}
	if err := s.offers.DeletePending(ctx, offer.ID); err != nil {
		return err
	}
	s.emit(ctx, events.OfferRejected, map[string]any{
		"offerId":   offer.ID.String(),
		"productId": product.ID.String(),
		"senderId":  offer.SenderID,
	})
	return nil
}

// authorize loads the offer and its product and checks, in order:
// identity, existence, ownership, pending status.
func (s *OfferServiceImpl) authorize(
	ctx context.Context, offerID uuid.UUID, actorID string,
) (*model.Offer, *model.Product, error) {
	if actorID == "" {
		return nil, nil, errs.ErrUnauthorized
	}
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	product, err := s.products.GetByID(ctx, offer.ProductID)
	if err != nil {
		return nil, nil, err
	}
	if product.OwnerID != actorID {
		return nil, nil, errs.ErrForbidden
	}
	if offer.Status != model.OfferPending {
		return nil, nil, errs.ErrInvalidState
	}
	return offer, product, nil
}

// ListReceived returns offers on products owned by userID.
func (s *OfferServiceImpl) ListReceived(ctx context.Context, userID string) ([]model.Offer, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.offers.ListByProductOwner(ctx, userID)
}

// ListSent returns offers sent by userID.
func (s *OfferServiceImpl) ListSent(ctx context.Context, userID string) ([]model.Offer, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.offers.ListBySender(ctx, userID)
}

func (s *OfferServiceImpl) emit(ctx context.Context, typ string, payload any) {
	if err := s.events.Emit(ctx, events.New(typ, payload)); err != nil {
		s.log.Warn("event not published", zap.String("type", typ), zap.Error(err))
	}
}

func messagePayload(m *model.Message) map[string]any {
	return map[string]any{
		"messageId":      m.ID.String(),
		"conversationId": m.ConversationID.String(),
		"senderId":       m.SenderID,
		"createdAt":      m.CreatedAt,
	}
}
