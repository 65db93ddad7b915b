// Package memstore is an in-process implementation of the repository
// interfaces. It enforces the same uniqueness and ordering guarantees as the
// PostgreSQL schema and backs the server's "memory" store mode and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/repository"
)

type pairKey struct {
	user1, user2 string
	offer        uuid.UUID // uuid.Nil for direct conversations
}

// Store holds all entities behind a single mutex.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	users         map[string]model.User
	products      map[uuid.UUID]model.Product
	offers        map[uuid.UUID]model.Offer
	conversations map[uuid.UUID]model.Conversation
	pairs         map[pairKey]uuid.UUID
	messages      map[uuid.UUID][]model.Message
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:           time.Now,
		users:         make(map[string]model.User),
		products:      make(map[uuid.UUID]model.Product),
		offers:        make(map[uuid.UUID]model.Offer),
		conversations: make(map[uuid.UUID]model.Conversation),
		pairs:         make(map[pairKey]uuid.UUID),
		messages:      make(map[uuid.UUID][]model.Message),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) stamp() time.Time { return s.now().UTC().Truncate(time.Microsecond) }

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s} }

// Products returns the product repository view.
func (s *Store) Products() *Products { return &Products{s} }

// Offers returns the offer repository view.
func (s *Store) Offers() *Offers { return &Offers{s} }

// Conversations returns the conversation repository view.
func (s *Store) Conversations() *Conversations { return &Conversations{s} }

// Messages returns the message repository view.
func (s *Store) Messages() *Messages { return &Messages{s} }

var (
	_ repository.UserRepository         = (*Users)(nil)
	_ repository.ProductRepository      = (*Products)(nil)
	_ repository.OfferRepository        = (*Offers)(nil)
	_ repository.ConversationRepository = (*Conversations)(nil)
	_ repository.MessageRepository      = (*Messages)(nil)
)

/************ users ************/

// Users implements repository.UserRepository.
type Users struct{ s *Store }

func (r *Users) Upsert(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.users[u.ID]
	if !ok {
		cur = model.User{ID: u.ID, CreatedAt: r.s.stamp()}
	}
	if u.FirstName != "" {
		cur.FirstName = u.FirstName
	}
	if u.LastName != "" {
		cur.LastName = u.LastName
	}
	if u.ProfileImage != "" {
		cur.ProfileImage = u.ProfileImage
	}
	r.s.users[u.ID] = cur
	*u = cur
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

/************ products ************/

// Products implements repository.ProductRepository.
type Products struct{ s *Store }

func (r *Products) Create(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; ok {
		return errs.ErrAlreadyExists
	}
	p.CreatedAt = r.s.stamp()
	r.s.products[p.ID] = *p
	return nil
}

func (r *Products) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

/************ offers ************/

// Offers implements repository.OfferRepository.
type Offers struct{ s *Store }

func (r *Offers) Create(_ context.Context, o *model.Offer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.offers[o.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.s.products[o.ProductID]; !ok {
		return errs.ErrNotFound
	}
	o.Status = model.OfferPending
	o.CreatedAt = r.s.stamp()
	r.s.offers[o.ID] = *o
	return nil
}

func (r *Offers) GetByID(_ context.Context, id uuid.UUID) (*model.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &o, nil
}

func (r *Offers) Transition(_ context.Context, id uuid.UUID, from, to model.OfferStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok || o.Status != from {
		return errs.ErrInvalidState
	}
	o.Status = to
	r.s.offers[id] = o
	return nil
}

func (r *Offers) DeletePending(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.offers[id]
	if !ok || o.Status != model.OfferPending {
		return errs.ErrInvalidState
	}
	r.s.deleteEmptyForOffer(id)
	for _, c := range r.s.conversations {
		if c.OfferID != nil && *c.OfferID == id {
			return errs.ErrInvalidState
		}
	}
	delete(r.s.offers, id)
	return nil
}

func (r *Offers) ListByProductOwner(_ context.Context, ownerID string) ([]model.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(o model.Offer) bool {
		p, ok := r.s.products[o.ProductID]
		return ok && p.OwnerID == ownerID
	}), nil
}

func (r *Offers) ListBySender(_ context.Context, senderID string) ([]model.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(o model.Offer) bool { return o.SenderID == senderID }), nil
}

func (r *Offers) filter(keep func(model.Offer) bool) []model.Offer {
	var out []model.Offer
	for _, o := range r.s.offers {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

/************ conversations ************/

// Conversations implements repository.ConversationRepository.
type Conversations struct{ s *Store }

func keyOf(user1, user2 string, offerID *uuid.UUID) pairKey {
	k := pairKey{user1: user1, user2: user2}
	if offerID != nil {
		k.offer = *offerID
	}
	return k
}

func (r *Conversations) Create(_ context.Context, c *model.Conversation) error {
	if c.User1ID >= c.User2ID {
		return errs.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := keyOf(c.User1ID, c.User2ID, c.OfferID)
	if _, ok := r.s.pairs[k]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.s.conversations[c.ID]; ok {
		return errs.ErrAlreadyExists
	}
	now := r.s.stamp()
	c.CreatedAt, c.UpdatedAt = now, now
	stored := *c
	if c.OfferID != nil {
		id := *c.OfferID
		stored.OfferID = &id
	}
	r.s.conversations[c.ID] = stored
	r.s.pairs[k] = c.ID
	return nil
}

func (r *Conversations) FindByPair(_ context.Context, user1, user2 string, offerID *uuid.UUID) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.pairs[keyOf(user1, user2, offerID)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return r.s.copyConversation(id), nil
}

func (r *Conversations) FindAnyByPair(_ context.Context, user1, user2 string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *model.Conversation
	for id, stored := range r.s.conversations {
		if stored.User1ID != user1 || stored.User2ID != user2 {
			continue
		}
		c := r.s.copyConversation(id)
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	return best, nil
}

func (r *Conversations) GetByID(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.conversations[id]; !ok {
		return nil, errs.ErrNotFound
	}
	return r.s.copyConversation(id), nil
}

func (r *Conversations) ListForUser(_ context.Context, userID string) ([]model.ConversationSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ConversationSummary
	for id, c := range r.s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		sum := model.ConversationSummary{Conversation: *r.s.copyConversation(id)}
		other := c.Other(userID)
		if u, ok := r.s.users[other]; ok {
			sum.OtherUser = u
		} else {
			sum.OtherUser = model.User{ID: other}
		}
		if c.OfferID != nil {
			if o, ok := r.s.offers[*c.OfferID]; ok {
				if p, ok := r.s.products[o.ProductID]; ok {
					sum.Product = &model.ProductRef{ID: p.ID, Name: p.Name}
				}
			}
		}
		if msgs := r.s.messages[id]; len(msgs) > 0 {
			last := msgs[0]
			for _, m := range msgs[1:] {
				if last.Before(m) {
					last = m
				}
			}
			last.Sender = nil
			sum.LastMessage = &last
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (r *Conversations) DeleteEmptyForOffer(_ context.Context, offerID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.deleteEmptyForOffer(offerID), nil
}

// deleteEmptyForOffer removes message-less conversations opened for offerID.
// The caller holds s.mu.
func (s *Store) deleteEmptyForOffer(offerID uuid.UUID) int64 {
	var n int64
	for id, c := range s.conversations {
		if c.OfferID == nil || *c.OfferID != offerID || len(s.messages[id]) > 0 {
			continue
		}
		delete(s.conversations, id)
		delete(s.pairs, keyOf(c.User1ID, c.User2ID, c.OfferID))
		delete(s.messages, id)
		n++
	}
	return n
}

func (s *Store) copyConversation(id uuid.UUID) *model.Conversation {
	c := s.conversations[id]
	if c.OfferID != nil {
		oid := *c.OfferID
		c.OfferID = &oid
	}
	return &c
}

/************ messages ************/

// Messages implements repository.MessageRepository.
type Messages struct{ s *Store }

func (r *Messages) Append(_ context.Context, msg *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[msg.ConversationID]
	if !ok {
		return errs.ErrNotFound
	}
	at := r.s.stamp()
	if at.Before(c.UpdatedAt) {
		at = c.UpdatedAt
	}
	msg.CreatedAt = at
	stored := *msg
	stored.Sender = nil
	r.s.messages[c.ID] = append(r.s.messages[c.ID], stored)
	c.UpdatedAt = at
	r.s.conversations[c.ID] = c
	return nil
}

func (r *Messages) GetByID(_ context.Context, conversationID, id uuid.UUID) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages[conversationID] {
		if m.ID == id {
			r.s.attachSender(&m)
			return &m, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *Messages) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	src := r.s.messages[conversationID]
	out := make([]model.Message, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	for i := range out {
		r.s.attachSender(&out[i])
	}
	return out, nil
}

func (s *Store) attachSender(m *model.Message) {
	u, ok := s.users[m.SenderID]
	if !ok {
		u = model.User{ID: m.SenderID}
	}
	m.Sender = &u
}
