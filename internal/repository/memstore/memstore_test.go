package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
)

func seedConversation(t *testing.T, s *Store, offerID *uuid.UUID) *model.Conversation {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Users().Upsert(ctx, &model.User{ID: "user_a", FirstName: "Ann"}))
	require.NoError(t, s.Users().Upsert(ctx, &model.User{ID: "user_b", FirstName: "Bo"}))
	c := &model.Conversation{ID: uuid.Must(uuid.NewV7()), User1ID: "user_a", User2ID: "user_b", OfferID: offerID}
	require.NoError(t, s.Conversations().Create(ctx, c))
	return c
}

func TestConversations_UniquePerPairAndOffer(t *testing.T) {
	s := New()
	ctx := context.Background()
	offerID := uuid.Must(uuid.NewV4())
	first := seedConversation(t, s, &offerID)

	dup := &model.Conversation{ID: uuid.Must(uuid.NewV7()), User1ID: "user_a", User2ID: "user_b", OfferID: &offerID}
	require.ErrorIs(t, s.Conversations().Create(ctx, dup), errs.ErrAlreadyExists)

	// same pair, no offer: a different key
	direct := &model.Conversation{ID: uuid.Must(uuid.NewV7()), User1ID: "user_a", User2ID: "user_b"}
	require.NoError(t, s.Conversations().Create(ctx, direct))

	got, err := s.Conversations().FindByPair(ctx, "user_a", "user_b", &offerID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	got, err = s.Conversations().FindByPair(ctx, "user_a", "user_b", nil)
	require.NoError(t, err)
	require.Equal(t, direct.ID, got.ID)

	_, err = s.Conversations().FindByPair(ctx, "user_a", "user_c", nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestConversations_RejectsNonCanonicalPair(t *testing.T) {
	s := New()
	c := &model.Conversation{ID: uuid.Must(uuid.NewV7()), User1ID: "user_b", User2ID: "user_a"}
	require.ErrorIs(t, s.Conversations().Create(context.Background(), c), errs.ErrValidation)
}

func TestMessages_AppendIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := seedConversation(t, s, nil)

	base := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	m1 := &model.Message{ID: uuid.FromStringOrNil("00000000-0000-7000-8000-000000000001"), ConversationID: c.ID, SenderID: "user_b", Content: "M1"}
	require.NoError(t, s.Messages().Append(ctx, m1))

	clock = base.Add(-5 * time.Second) // clock skew
	m2 := &model.Message{ID: uuid.FromStringOrNil("00000000-0000-7000-8000-000000000002"), ConversationID: c.ID, SenderID: "user_a", Content: "hello"}
	require.NoError(t, s.Messages().Append(ctx, m2))
	require.False(t, m2.CreatedAt.Before(m1.CreatedAt))

	list, err := s.Messages().ListByConversation(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "M1", list[0].Content)
	require.Equal(t, "hello", list[1].Content)
	require.Equal(t, "Bo", list[0].Sender.FirstName)

	conv, err := s.Conversations().GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, m2.CreatedAt, conv.UpdatedAt)

	missing := &model.Message{ID: uuid.Must(uuid.NewV7()), ConversationID: uuid.Must(uuid.NewV7()), SenderID: "user_a", Content: "x"}
	require.ErrorIs(t, s.Messages().Append(ctx, missing), errs.ErrNotFound)
}

func TestOffers_TransitionOnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &model.Product{ID: uuid.Must(uuid.NewV4()), OwnerID: "user_a", Name: "Bike", Description: "d", Price: 100}
	require.NoError(t, s.Products().Create(ctx, p))
	o := &model.Offer{ID: uuid.Must(uuid.NewV4()), ProductID: p.ID, SenderID: "user_b", Amount: 50}
	require.NoError(t, s.Offers().Create(ctx, o))

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Offers().Transition(ctx, o.ID, model.OfferPending, model.OfferAccepted); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.ErrorIs(t, s.Offers().DeletePending(ctx, o.ID), errs.ErrInvalidState)

	received, err := s.Offers().ListByProductOwner(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, received, 1)
	sent, err := s.Offers().ListBySender(ctx, "user_b")
	require.NoError(t, err)
	require.Len(t, sent, 1)
}

func TestUsers_UpsertNeverBlanks(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().Upsert(ctx, &model.User{ID: "u1", FirstName: "Ann", LastName: "Lee"}))
	u := &model.User{ID: "u1", FirstName: "Anna"}
	require.NoError(t, s.Users().Upsert(ctx, u))
	require.Equal(t, "Anna", u.FirstName)
	require.Equal(t, "Lee", u.LastName)
}

func TestConversations_ListForUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &model.Product{ID: uuid.Must(uuid.NewV4()), OwnerID: "user_a", Name: "Bike", Description: "d", Price: 100}
	require.NoError(t, s.Products().Create(ctx, p))
	o := &model.Offer{ID: uuid.Must(uuid.NewV4()), ProductID: p.ID, SenderID: "user_b", Amount: 50}
	require.NoError(t, s.Offers().Create(ctx, o))
	c := seedConversation(t, s, &o.ID)

	require.NoError(t, s.Messages().Append(ctx, &model.Message{
		ID: uuid.Must(uuid.NewV7()), ConversationID: c.ID, SenderID: "user_b", Content: "M1",
	}))

	list, err := s.Conversations().ListForUser(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "user_b", list[0].OtherUser.ID)
	require.Equal(t, "Bike", list[0].Product.Name)
	require.Equal(t, "M1", list[0].LastMessage.Content)

	list, err = s.Conversations().ListForUser(ctx, "user_z")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOffers_DeletePendingDropsEmptyConversation(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &model.Product{ID: uuid.Must(uuid.NewV4()), OwnerID: "user_a", Name: "Bike", Description: "d", Price: 100}
	require.NoError(t, s.Products().Create(ctx, p))
	o := &model.Offer{ID: uuid.Must(uuid.NewV4()), ProductID: p.ID, SenderID: "user_b", Amount: 50}
	require.NoError(t, s.Offers().Create(ctx, o))
	c := seedConversation(t, s, &o.ID)
	direct := &model.Conversation{ID: uuid.Must(uuid.NewV7()), User1ID: "user_a", User2ID: "user_b"}
	require.NoError(t, s.Conversations().Create(ctx, direct))

	require.NoError(t, s.Offers().DeletePending(ctx, o.ID))

	_, err := s.Conversations().GetByID(ctx, c.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.Conversations().FindByPair(ctx, "user_a", "user_b", &o.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	list, err := s.Conversations().ListForUser(ctx, "user_b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, direct.ID, list[0].ID)
}

func TestOffers_DeletePendingKeepsConversationWithMessages(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &model.Product{ID: uuid.Must(uuid.NewV4()), OwnerID: "user_a", Name: "Bike", Description: "d", Price: 100}
	require.NoError(t, s.Products().Create(ctx, p))
	o := &model.Offer{ID: uuid.Must(uuid.NewV4()), ProductID: p.ID, SenderID: "user_b", Amount: 50}
	require.NoError(t, s.Offers().Create(ctx, o))
	c := seedConversation(t, s, &o.ID)
	require.NoError(t, s.Messages().Append(ctx, &model.Message{
		ID: uuid.Must(uuid.NewV7()), ConversationID: c.ID, SenderID: "user_b", Content: "M1",
	}))

	n, err := s.Conversations().DeleteEmptyForOffer(ctx, o.ID)
	require.NoError(t, err)
	require.Zero(t, n)
	require.ErrorIs(t, s.Offers().DeletePending(ctx, o.ID), errs.ErrInvalidState)

	got, err := s.Offers().GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, model.OfferPending, got.Status)
}

func TestConversations_LastMessageIsNewestOnTie(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := seedConversation(t, s, nil)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return at })

	// same timestamp: the higher id sorts last, whatever the append order
	hi := &model.Message{ID: uuid.FromStringOrNil("00000000-0000-7000-8000-000000000009"), ConversationID: c.ID, SenderID: "user_a", Content: "hi"}
	lo := &model.Message{ID: uuid.FromStringOrNil("00000000-0000-7000-8000-000000000001"), ConversationID: c.ID, SenderID: "user_b", Content: "lo"}
	require.NoError(t, s.Messages().Append(ctx, hi))
	require.NoError(t, s.Messages().Append(ctx, lo))
	require.True(t, hi.CreatedAt.Equal(lo.CreatedAt))

	list, err := s.Conversations().ListForUser(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "hi", list[0].LastMessage.Content)
}
