package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/realtime"
)

// ErrNotConnected is returned when a frame is written without a live socket.
var ErrNotConnected = errors.New("not connected")

const (
	defaultPollInterval = 10 * time.Second
	defaultMinBackoff   = 500 * time.Millisecond
	defaultMaxBackoff   = 30 * time.Second
	readWait            = 30 * time.Second
	writeWait           = 10 * time.Second
)

// SessionConfig configures Session. UserID, WSURL and API are required.
type SessionConfig struct {
	UserID       string
	Token        string
	WSURL        string
	API          *API
	Dialer       *websocket.Dialer
	PollInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	// OnUpdate is called after every merge that added messages, with the
	// full timeline of the conversation.
	OnUpdate func(conversationID string, msgs []api.Message)
	Logger   *zap.Logger
}

// Session keeps the timelines of open conversations in sync over a
// reconnecting WebSocket plus periodic HTTP reconciliation.
type Session struct {
	cfg SessionConfig
	log *zap.Logger

	mu    sync.Mutex
	rooms map[string]*Timeline
	conn  *websocket.Conn

	writeMu sync.Mutex
}

// NewSession constructs Session with defaults filled in.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, log: log, rooms: make(map[string]*Timeline)}
}

// Timeline returns the timeline of an open conversation.
func (s *Session) Timeline(conversationID string) (*Timeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rooms[conversationID]
	return t, ok
}

// Connected reports whether a socket is currently established.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Open starts tracking a conversation: it loads the full history and
// subscribes to the room when connected.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if _, ok := s.rooms[conversationID]; !ok {
		s.rooms[conversationID] = NewTimeline()
	}
	s.mu.Unlock()

	if err := s.Refetch(ctx, conversationID); err != nil {
		return err
	}
	if err := s.write(realtime.EventJoinConversation, conversationID); err != nil && !errors.Is(err, ErrNotConnected) {
		s.log.Debug("subscribe failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// Leave stops tracking a conversation.
func (s *Session) Leave(conversationID string) {
	s.mu.Lock()
	delete(s.rooms, conversationID)
	s.mu.Unlock()
	_ = s.write(realtime.EventLeaveConversation, conversationID)
}

// Send persists a message over HTTP, merges the stored copy and then
// announces it on the socket. Nothing is merged when the POST fails; the
// error can be checked with IsRetryable.
func (s *Session) Send(ctx context.Context, conversationID, content string) (*api.Message, error) {
	m, err := s.cfg.API.Send(ctx, conversationID, content)
	if err != nil {
		return nil, err
	}
	s.merge(conversationID, *m)

	notice := api.SendMessageNotice{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      &m.CreatedAt,
		Sender:         m.Sender,
	}
	if err := s.write(realtime.EventSendMessage, notice); err != nil && !errors.Is(err, ErrNotConnected) {
		s.log.Debug("send-message notice failed", zap.String("message_id", m.ID), zap.Error(err))
	}
	return m, nil
}

// Refetch reloads the full history of an open conversation and merges it.
func (s *Session) Refetch(ctx context.Context, conversationID string) error {
	msgs, err := s.cfg.API.Messages(ctx, conversationID)
	if err != nil {
		return err
	}
	s.merge(conversationID, msgs...)
	return nil
}

func (s *Session) merge(conversationID string, msgs ...api.Message) {
	t, ok := s.Timeline(conversationID)
	if !ok {
		return
	}
	if t.Merge(msgs...) > 0 && s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(conversationID, t.Messages())
	}
}

func (s *Session) openRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) refetchAll(ctx context.Context) {
	for _, id := range s.openRooms() {
		if err := s.Refetch(ctx, id); err != nil && ctx.Err() == nil {
			s.log.Warn("refetch failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
}

func (s *Session) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.MinBackoff)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(s.cfg.MaxBackoff, b)
}

// Run keeps the socket connected until ctx is done. It always returns a
// non-nil error.
func (s *Session) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	backoff := s.newBackoff()
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			backoff = s.newBackoff()
			s.serve(ctx, conn)
		} else {
			s.log.Debug("dial failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait, _ := backoff.Next()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	h := http.Header{}
	if s.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.WSURL, h)
	return conn, err
}

// serve owns conn until it fails or ctx is done.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	done := make(chan struct{})
	defer close(done)
	frames := make(chan realtime.Frame)
	readErr := make(chan error, 1)
	go s.readFrames(ctx, conn, done, frames, readErr)

	s.log.Info("connected", zap.String("user_id", s.cfg.UserID))
	if err := s.write(realtime.EventJoin, s.cfg.UserID); err != nil {
		return
	}
	for _, id := range s.openRooms() {
		if err := s.write(realtime.EventJoinConversation, id); err != nil {
			return
		}
	}
	s.refetchAll(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case err := <-readErr:
			s.log.Info("disconnected", zap.Error(err))
			return
		case f := <-frames:
			s.handle(f)
		}
	}
}

// readFrames decodes frames from conn until the read fails or the serving
// loop is gone. done is closed when serve returns.
func (s *Session) readFrames(
	ctx context.Context, conn *websocket.Conn, done <-chan struct{},
	frames chan<- realtime.Frame, readErr chan<- error,
) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		var f realtime.Frame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		select {
		case frames <- f:
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handle(f realtime.Frame) {
	switch f.Event {
	case realtime.EventNewMessage:
		var m api.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			s.log.Debug("bad new-message frame", zap.Error(err))
			return
		}
		s.merge(m.ConversationID, m)
	case realtime.EventError:
		var e api.ErrorEvent
		_ = json.Unmarshal(f.Data, &e)
		s.log.Warn("server error event", zap.String("message", e.Message))
	}
}

func (s *Session) pollLoop(ctx context.Context) {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refetchAll(ctx)
		}
	}
}

func (s *Session) write(event string, data any) error {
	frame, err := realtime.Encode(event, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
