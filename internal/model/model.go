// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// User is a marketplace participant. The ID is issued by the identity provider.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	ProfileImage string
	CreatedAt    time.Time
}

// Product is a buyer request that sellers make offers on.
type Product struct {
	ID          uuid.UUID
	OwnerID     string
	Name        string
	Description string
	Price       int64 // cents
	CreatedAt   time.Time
}

// Offer is a commercial proposal on a product.
type Offer struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	SenderID  string
	Amount    int64 // cents
	Message   string
	Status    OfferStatus
	CreatedAt time.Time
}

// Conversation is a two-party thread. User1ID < User2ID always holds.
type Conversation struct {
	ID        uuid.UUID
	User1ID   string
	User2ID   string
	OfferID   *uuid.UUID // originating offer, nil for direct conversations
	CreatedAt time.Time
	UpdatedAt time.Time // bumped on every new message
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message is an append-only chat entry.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Sender         *User // optional summary for display
}

// Before reports whether m sorts before o: by CreatedAt, ties broken by ID.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID.String() < o.ID.String()
}

// ProductRef is a short product reference used in conversation listings.
type ProductRef struct {
	ID   uuid.UUID
	Name string
}

// ConversationSummary is the list view of a conversation for one participant.
type ConversationSummary struct {
	Conversation
	OtherUser   User
	Product     *ProductRef
	LastMessage *Message
}

// CanonicalPair orders two user ids so (a,b) and (b,a) map to the same key.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
