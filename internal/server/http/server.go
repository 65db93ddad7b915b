// Package httpserver exposes the conversation HTTP API and the WebSocket
// endpoint.
package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/auth"
	"github.com/and161185/offer-chat/internal/convert"
	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/service"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Deps bundles the collaborators of Server.
type Deps struct {
	Messages service.MessageService
	Verifier TokenVerifier
	// WS serves GET /ws. Optional.
	WS     http.Handler
	Logger *zap.Logger
}

// Server wires services into HTTP handlers.
type Server struct {
	messages service.MessageService
	verifier TokenVerifier
	ws       http.Handler
	log      *zap.Logger
}

// New constructs Server.
func New(d Deps) *Server {
	s := &Server{messages: d.Messages, verifier: d.Verifier, ws: d.WS, log: d.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Handler returns the routed handler wrapped with recovery and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /messages", s.listConversations)
	mux.HandleFunc("GET /messages/{conversationId}", s.listMessages)
	mux.HandleFunc("POST /messages/{conversationId}", s.sendMessage)
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	return AccessLog(s.log, Recover(s.log, mux))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) identity(r *http.Request) (auth.Identity, error) {
	tok, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return auth.Identity{}, errs.ErrUnauthorized
	}
	return s.verifier.Verify(tok)
}

// listConversations handles GET /messages.
func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.messages.ListConversations(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIConversations(list))
}

// listMessages handles GET /messages/{conversationId}.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cid, err := convert.ParseID("conversationId", r.PathValue("conversationId"))
	if err != nil {
		s.writeError(w, r, errs.ErrNotFound)
		return
	}
	msgs, err := s.messages.ListMessages(r.Context(), id.UserID, cid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIMessages(msgs))
}

// sendMessage handles POST /messages/{conversationId}. Blank content is
// rejected before the conversation is looked up.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "message content is required"})
		return
	}
	cid, err := convert.ParseID("conversationId", r.PathValue("conversationId"))
	if err != nil {
		s.writeError(w, r, errs.ErrNotFound)
		return
	}
	m, err := s.messages.Send(r.Context(), id.User(), cid, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIMessage(*m))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
