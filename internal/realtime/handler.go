package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	u "github.com/gofrs/uuid/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/auth"
	"github.com/and161185/offer-chat/internal/convert"
	"github.com/and161185/offer-chat/internal/model"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// RoomGuard authorizes room subscriptions and resolves advisory send
// notifications to persisted messages. service.MessageService satisfies it.
type RoomGuard interface {
	CanJoin(ctx context.Context, userID string, conversationID u.UUID) error
	Message(ctx context.Context, userID string, conversationID, messageID u.UUID) (*model.Message, error)
}

// HandlerDeps bundles the collaborators of Handler.
type HandlerDeps struct {
	Broker         *Broker
	Verifier       TokenVerifier
	Guard          RoomGuard
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handler upgrades authenticated requests to WebSocket connections and
// dispatches protocol events.
type Handler struct {
	broker   *Broker
	verifier TokenVerifier
	guard    RoomGuard
	origins  map[string]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler constructs Handler.
func NewHandler(d HandlerDeps) *Handler {
	h := &Handler{
		broker:   d.Broker,
		verifier: d.Verifier,
		guard:    d.Guard,
		origins:  make(map[string]struct{}, len(d.AllowedOrigins)),
		log:      d.Logger,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	for _, o := range d.AllowedOrigins {
		h.origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}
	if _, ok := h.origins[strings.TrimRight(origin, "/")]; ok {
		return true
	}
	o, err := url.Parse(origin)
	return err == nil && strings.EqualFold(o.Host, r.Host)
}

func tokenFrom(r *http.Request) string {
	if tok, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return tok
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP authenticates, upgrades and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.verifier.Verify(tokenFrom(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), id.UserID, conn)
	h.broker.Register(c.id, c)
	_ = h.broker.Join(c.id, id.UserID)
	h.log.Info("websocket connected", zap.String("conn_id", c.id), zap.String("user_id", id.UserID))

	go c.writePump()
	// The request context stays valid until ServeHTTP returns.
	c.readPump(r.Context(), h)

	h.log.Info("websocket disconnected", zap.String("conn_id", c.id), zap.String("user_id", id.UserID))
}

func (h *Handler) dispatch(ctx context.Context, c *client, f Frame) {
	switch f.Event {
	case EventJoin:
		var userID string
		if err := json.Unmarshal(f.Data, &userID); err != nil || userID != c.userID {
			h.reply(c, "cannot join as another user")
			return
		}
		_ = h.broker.Join(c.id, userID)

	case EventJoinConversation:
		cid, ok := h.conversationID(c, f.Data)
		if !ok {
			return
		}
		if err := h.guard.CanJoin(ctx, c.userID, cid); err != nil {
			h.log.Debug("join refused", zap.String("conn_id", c.id), zap.String("conversation_id", cid.String()), zap.Error(err))
			h.reply(c, "not allowed to join conversation")
			return
		}
		_ = h.broker.JoinRoom(c.id, RoomFor(cid))

	case EventLeaveConversation:
		if cid, ok := h.conversationID(c, f.Data); ok {
			h.broker.LeaveRoom(c.id, RoomFor(cid))
		}

	case EventSendMessage:
		h.rebroadcast(ctx, c, f.Data)

	default:
		h.reply(c, "unknown event")
	}
}

// rebroadcast fans out the stored copy of a message announced by a client.
// Unknown or unreadable ids are ignored.
func (h *Handler) rebroadcast(ctx context.Context, c *client, data json.RawMessage) {
	var n api.SendMessageNotice
	if err := json.Unmarshal(data, &n); err != nil {
		h.reply(c, "malformed send-message")
		return
	}
	cid, err := convert.ParseID("conversationId", n.ConversationID)
	if err != nil {
		return
	}
	mid, err := convert.ParseID("messageId", n.MessageID)
	if err != nil {
		return
	}
	m, err := h.guard.Message(ctx, c.userID, cid, mid)
	if err != nil {
		h.log.Debug("send-message ignored", zap.String("message_id", mid.String()), zap.Error(err))
		return
	}
	if err := h.broker.PublishMessage(ctx, *m); err != nil {
		h.log.Warn("rebroadcast failed", zap.String("message_id", mid.String()), zap.Error(err))
	}
}

func (h *Handler) conversationID(c *client, data json.RawMessage) (u.UUID, bool) {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		h.reply(c, "invalid conversation id")
		return u.Nil, false
	}
	cid, err := convert.ParseID("conversationId", raw)
	if err != nil {
		h.reply(c, "invalid conversation id")
		return u.Nil, false
	}
	return cid, true
}

func (h *Handler) reply(c *client, msg string) {
	frame, err := Encode(EventError, api.ErrorEvent{Message: msg})
	if err != nil {
		return
	}
	c.Deliver(frame)
}
