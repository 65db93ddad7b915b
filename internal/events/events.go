// Package events publishes domain events after successful state changes.
package events

import (
	"context"
	"time"
)

// Event types, also used as routing keys.
const (
	OfferCreated   = "offer.created"
	OfferAccepted  = "offer.accepted"
	OfferRejected  = "offer.rejected"
	MessageCreated = "message.created"
)

// Event is the JSON envelope published for every domain event.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// New stamps an event of type typ.
func New(typ string, payload any) Event {
	return Event{Type: typ, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Sink receives domain events. Emit errors are reported but never roll back
// the change that produced the event.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Emit implements Sink.
func (Nop) Emit(context.Context, Event) error { return nil }
