package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
)

type stubLimiter struct {
	allow bool
	retry time.Duration
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.retry, l.err
}

func TestMessageService_AcceptThenReply(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.seedOffer(t, "M1")

	convID, err := e.offers.Accept(ctx, o.ID, ownerA)
	require.NoError(t, err)
	before, err := e.store.Conversations().GetByID(ctx, convID)
	require.NoError(t, err)

	msg, err := e.messages.Send(ctx, ownerA, convID, "  hello ")
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Content)
	require.Equal(t, "Ann", msg.Sender.FirstName)

	msgs, err := e.messages.ListMessages(ctx, "user_b", convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "M1", msgs[0].Content)
	require.Equal(t, "user_b", msgs[0].SenderID)
	require.Equal(t, "hello", msgs[1].Content)
	require.Equal(t, "user_a", msgs[1].SenderID)
	require.False(t, msgs[1].CreatedAt.Before(msgs[0].CreatedAt))

	after, err := e.store.Conversations().GetByID(ctx, convID)
	require.NoError(t, err)
	require.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	require.Equal(t, msgs[1].CreatedAt, after.UpdatedAt)

	require.Len(t, e.fanout.published(), 2)

	list, err := e.messages.ListConversations(ctx, "user_b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "user_a", list[0].OtherUser.ID)
	require.Equal(t, "hello", list[0].LastMessage.Content)
	require.Equal(t, "Road bike", list[0].Product.Name)
}

func TestMessageService_Send_CheckOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.seedOffer(t, "")
	convID, err := e.offers.Accept(ctx, o.ID, ownerA)
	require.NoError(t, err)
	missing := mustV4()

	_, err = e.messages.Send(ctx, model.User{}, missing, "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// blank content is reported before the conversation lookup
	_, err = e.messages.Send(ctx, ownerA, missing, "   ")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = e.messages.Send(ctx, ownerA, missing, "hi")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.messages.Send(ctx, userC, convID, "hi")
	require.ErrorIs(t, err, errs.ErrForbidden)

	msgs, err := e.messages.ListMessages(ctx, "user_a", convID)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "rejected sends must not persist")
}

func TestMessageService_Send_RateLimited(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.seedOffer(t, "M1")
	convID, err := e.offers.Accept(ctx, o.ID, ownerA)
	require.NoError(t, err)

	lim := &stubLimiter{allow: false, retry: 30 * time.Second}
	e.messages.lim = lim

	_, err = e.messages.Send(ctx, senderB, convID, "hello")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	require.Equal(t, 30*time.Second, rl.RetryAfter)
	require.Equal(t, []string{"send:user_b"}, lim.keys)

	lim.allow = true
	_, err = e.messages.Send(ctx, senderB, convID, "hello")
	require.NoError(t, err)

	lim.err = errors.New("limiter down")
	_, err = e.messages.Send(ctx, senderB, convID, "again")
	require.Error(t, err)
}

func TestMessageService_ReadAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.seedOffer(t, "M1")
	convID, err := e.offers.Accept(ctx, o.ID, ownerA)
	require.NoError(t, err)

	_, err = e.messages.ListMessages(ctx, "", convID)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = e.messages.ListMessages(ctx, "user_c", convID)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = e.messages.ListMessages(ctx, "user_a", mustV4())
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, e.messages.CanJoin(ctx, "user_b", convID))
	require.ErrorIs(t, e.messages.CanJoin(ctx, "user_c", convID), errs.ErrForbidden)

	msgs, err := e.messages.ListMessages(ctx, "user_a", convID)
	require.NoError(t, err)
	m, err := e.messages.Message(ctx, "user_b", convID, msgs[0].ID)
	require.NoError(t, err)
	require.Equal(t, "M1", m.Content)
	_, err = e.messages.Message(ctx, "user_c", convID, msgs[0].ID)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = e.messages.Message(ctx, "user_b", convID, mustV4())
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.messages.ListConversations(ctx, "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
