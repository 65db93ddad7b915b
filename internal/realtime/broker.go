// Package realtime implements the in-process pub/sub broker and the WebSocket
// transport that speaks the chat event protocol.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/convert"
	"github.com/and161185/offer-chat/internal/model"
)

// Protocol event names.
const (
	EventJoin              = "join"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventNewMessage        = "new-message"
	EventError             = "error"
)

// ErrUnknownConnection is returned for operations on a connection id that is
// not registered.
var ErrUnknownConnection = errors.New("unknown connection")

// Frame is one JSON text frame on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame for event with data marshalled as its payload.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// RoomFor names the room of a conversation.
func RoomFor(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// Sink receives encoded frames for one connection.
type Sink interface {
	// Deliver enqueues frame without blocking. False means the sink cannot
	// keep up or is gone.
	Deliver(frame []byte) bool
	// Close releases the sink. It must be safe to call more than once.
	Close()
}

type connection struct {
	sink   Sink
	userID string
	rooms  map[string]struct{}
}

// Broker tracks live connections, their bound users and room memberships.
// All state is guarded by mu.
type Broker struct {
	mu    sync.Mutex
	conns map[string]*connection
	users map[string]string // userID -> latest connID
	rooms map[string]map[string]struct{}
	log   *zap.Logger
}

// NewBroker constructs an empty broker.
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		conns: make(map[string]*connection),
		users: make(map[string]string),
		rooms: make(map[string]map[string]struct{}),
		log:   logger,
	}
}

// Register adds a connection. Registering an existing id replaces its sink.
func (b *Broker) Register(connID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.conns[connID]; ok {
		c.sink = sink
		return
	}
	b.conns[connID] = &connection{sink: sink, rooms: make(map[string]struct{})}
}

// Join binds connID to userID. The latest connection of a user wins.
func (b *Broker) Join(connID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if c.userID != "" && c.userID != userID && b.users[c.userID] == connID {
		delete(b.users, c.userID)
	}
	c.userID = userID
	b.users[userID] = connID
	return nil
}

// JoinRoom subscribes connID to room. Joining twice is a no-op.
func (b *Broker) JoinRoom(connID, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	members := b.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		b.rooms[room] = members
	}
	members[connID] = struct{}{}
	c.rooms[room] = struct{}{}
	return nil
}

// LeaveRoom unsubscribes connID from room. Unknown ids and rooms are ignored.
func (b *Broker) LeaveRoom(connID, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.conns[connID]; ok {
		delete(c.rooms, room)
	}
	b.dropMember(room, connID)
}

// Disconnect drops the connection with its user binding and memberships and
// closes its sink. It reports whether the connection was registered.
func (b *Broker) Disconnect(connID string) bool {
	b.mu.Lock()
	c, ok := b.conns[connID]
	if ok {
		b.remove(connID, c)
	}
	b.mu.Unlock()
	if ok {
		c.sink.Close()
	}
	return ok
}

// Publish delivers event to every connection in room and returns how many
// accepted it. Sinks that refuse the frame are disconnected afterwards.
func (b *Broker) Publish(room, event string, data any) (int, error) {
	frame, err := Encode(event, data)
	if err != nil {
		return 0, err
	}

	type target struct {
		id   string
		sink Sink
	}
	b.mu.Lock()
	targets := make([]target, 0, len(b.rooms[room]))
	for id := range b.rooms[room] {
		targets = append(targets, target{id: id, sink: b.conns[id].sink})
	}
	b.mu.Unlock()

	delivered := 0
	var slow []string
	for _, t := range targets {
		if t.sink.Deliver(frame) {
			delivered++
			continue
		}
		slow = append(slow, t.id)
	}
	for _, id := range slow {
		if b.Disconnect(id) {
			b.log.Warn("dropping slow connection", zap.String("conn_id", id), zap.String("room", room))
		}
	}
	return delivered, nil
}

// PublishMessage broadcasts a persisted message to its conversation room.
func (b *Broker) PublishMessage(_ context.Context, m model.Message) error {
	n, err := b.Publish(RoomFor(m.ConversationID), EventNewMessage, convert.ToAPIMessage(m))
	if err != nil {
		return err
	}
	b.log.Debug("message published",
		zap.String("conversation_id", m.ConversationID.String()),
		zap.String("message_id", m.ID.String()),
		zap.Int("receivers", n))
	return nil
}

// RoomSize returns the number of connections subscribed to room.
func (b *Broker) RoomSize(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[room])
}

// ConnectionOf returns the latest connection bound to userID.
func (b *Broker) ConnectionOf(userID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.users[userID]
	return id, ok
}

// Close disconnects every connection.
func (b *Broker) Close() {
	b.mu.Lock()
	sinks := make([]Sink, 0, len(b.conns))
	for id, c := range b.conns {
		b.remove(id, c)
		sinks = append(sinks, c.sink)
	}
	b.mu.Unlock()
	for _, s := range sinks {
		s.Close()
	}
}

// remove must be called with mu held.
func (b *Broker) remove(connID string, c *connection) {
	for room := range c.rooms {
		b.dropMember(room, connID)
	}
	if c.userID != "" && b.users[c.userID] == connID {
		delete(b.users, c.userID)
	}
	delete(b.conns, connID)
}

func (b *Broker) dropMember(room, connID string) {
	members, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.rooms, room)
	}
}
