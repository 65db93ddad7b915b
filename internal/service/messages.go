package service

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/events"
	"github.com/and161185/offer-chat/internal/limiter"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/repository"
)

// MessageService defines conversation reads and message sending for participants.
type MessageService interface {
	// ListConversations returns the user's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	// ListMessages returns the ordered history of a conversation the user takes part in.
	ListMessages(ctx context.Context, userID string, conversationID uuid.UUID) ([]model.Message, error)
	// Send persists a message from sender and fans it out.
	Send(ctx context.Context, sender model.User, conversationID uuid.UUID, content string) (*model.Message, error)
	// Message returns one persisted message of a conversation the user takes part in.
	Message(ctx context.Context, userID string, conversationID, messageID uuid.UUID) (*model.Message, error)
	// CanJoin reports whether the user may subscribe to the conversation's room.
	CanJoin(ctx context.Context, userID string, conversationID uuid.UUID) error
}

// MessageDeps bundles the collaborators of MessageServiceImpl.
type MessageDeps struct {
	Users         repository.UserRepository
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Limiter       limiter.Limiter // optional
	Fanout        Fanout          // optional
	Events        events.Sink     // optional
	Logger        *zap.Logger     // optional
}

type MessageServiceImpl struct {
	users    repository.UserRepository
	convs    repository.ConversationRepository
	messages repository.MessageRepository
	lim      limiter.Limiter
	fanout   Fanout
	events   events.Sink
	log      *zap.Logger
}

// NewMessageService constructs MessageService.
func NewMessageService(d MessageDeps) *MessageServiceImpl {
	s := &MessageServiceImpl{
		users:    d.Users,
		convs:    d.Conversations,
		messages: d.Messages,
		lim:      d.Limiter,
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

// ListConversations returns summaries for userID.
func (s *MessageServiceImpl) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.convs.ListForUser(ctx, userID)
}

// ListMessages checks identity, existence and participation, in that order.
func (s *MessageServiceImpl) ListMessages(
	ctx context.Context, userID string, conversationID uuid.UUID,
) ([]model.Message, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conversationID)
}

// Send validates content before looking the conversation up, then checks
// participation and the send quota, appends and fans out.
func (s *MessageServiceImpl) Send(
	ctx context.Context, sender model.User, conversationID uuid.UUID, content string,
) (*model.Message, error) {
	if err := requireActor(sender); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validation("message content is required")
	}
	conv, err := s.participant(ctx, sender.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if s.lim != nil {
		ok, retry, err := s.lim.Allow(ctx, "send:"+sender.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &RateLimitError{RetryAfter: retry}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	msg := &model.Message{ID: id, ConversationID: conv.ID, SenderID: sender.ID, Content: content}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	msg.Sender = s.senderSummary(ctx, sender)

	if err := s.fanout.PublishMessage(ctx, *msg); err != nil {
		s.log.Warn("fanout failed",
			zap.String("conversation_id", conv.ID.String()), zap.Error(err))
	}
	if err := s.events.Emit(ctx, events.New(events.MessageCreated, messagePayload(msg))); err != nil {
		s.log.Warn("event not published", zap.String("type", events.MessageCreated), zap.Error(err))
	}
	return msg, nil
}

// Message returns a stored message for rebroadcast after the same checks as ListMessages.
func (s *MessageServiceImpl) Message(
	ctx context.Context, userID string, conversationID, messageID uuid.UUID,
) (*model.Message, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.GetByID(ctx, conversationID, messageID)
}

// CanJoin admits participants only.
func (s *MessageServiceImpl) CanJoin(ctx context.Context, userID string, conversationID uuid.UUID) error {
	_, err := s.participant(ctx, userID, conversationID)
	return err
}

func (s *MessageServiceImpl) participant(
	ctx context.Context, userID string, conversationID uuid.UUID,
) (*model.Conversation, error) {
	if userID == "" {
		return nil, errs.ErrUnauthorized
	}
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errs.ErrForbidden
	}
	return conv, nil
}

// senderSummary prefers the stored profile and falls back to the token claims.
func (s *MessageServiceImpl) senderSummary(ctx context.Context, actor model.User) *model.User {
	u, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return &actor
	}
	return u
}
