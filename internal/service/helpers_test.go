package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/offer-chat/internal/events"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/repository"
	"github.com/and161185/offer-chat/internal/repository/memstore"
)

type recFanout struct {
	mu   sync.Mutex
	msgs []model.Message
	err  error
}

func (f *recFanout) PublishMessage(_ context.Context, m model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *recFanout) published() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.msgs...)
}

type recSink struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (s *recSink) Emit(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, ev.Type)
	return s.err
}

func (s *recSink) emitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

// flakyMessages fails Append while failing is set.
type flakyMessages struct {
	repository.MessageRepository
	mu      sync.Mutex
	failing bool
}

func (f *flakyMessages) Append(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	fail := f.failing
	f.mu.Unlock()
	if fail {
		return errors.New("write timeout")
	}
	return f.MessageRepository.Append(ctx, m)
}

func (f *flakyMessages) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

var (
	ownerA  = model.User{ID: "user_a", FirstName: "Ann", LastName: "Lee"}
	senderB = model.User{ID: "user_b", FirstName: "Bo"}
	userC   = model.User{ID: "user_c", FirstName: "Cy"}
)

type env struct {
	store    *memstore.Store
	msgRepo  *flakyMessages
	fanout   *recFanout
	sink     *recSink
	registry *Registry
	offers   *OfferServiceImpl
	messages *MessageServiceImpl
	products *ProductServiceImpl
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	e := &env{
		store:   st,
		msgRepo: &flakyMessages{MessageRepository: st.Messages()},
		fanout:  &recFanout{},
		sink:    &recSink{},
	}
	log := zaptest.NewLogger(t)
	e.registry = NewRegistry(st.Conversations(), log)
	e.offers = NewOfferService(OfferDeps{
		Users:    st.Users(),
		Products: st.Products(),
		Offers:        st.Offers(),
		Conversations: st.Conversations(),
		Messages:      e.msgRepo,
		Registry:      e.registry,
		Fanout:        e.fanout,
		Events:        e.sink,
		Logger:        log,
	})
	e.messages = NewMessageService(MessageDeps{
		Users:         st.Users(),
		Conversations: st.Conversations(),
		Messages:      e.msgRepo,
		Fanout:        e.fanout,
		Events:        e.sink,
		Logger:        log,
	})
	e.products = NewProductService(st.Users(), st.Products())
	return e
}

// seedOffer creates a product owned by ownerA and a pending offer from senderB.
func (e *env) seedOffer(t *testing.T, message string) *model.Offer {
	t.Helper()
	ctx := context.Background()
	p, err := e.products.Create(ctx, ownerA, "Road bike", "56cm frame", 50000)
	require.NoError(t, err)
	o, err := e.offers.Create(ctx, senderB, p.ID, 42000, message)
	require.NoError(t, err)
	return o
}

func (e *env) conversationCount(t *testing.T, userID string) int {
	t.Helper()
	list, err := e.store.Conversations().ListForUser(context.Background(), userID)
	require.NoError(t, err)
	return len(list)
}

func mustV4() uuid.UUID { return uuid.Must(uuid.NewV4()) }
