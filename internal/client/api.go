package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/offer-chat/internal/api"
)

// StatusError is a non-2xx answer of the HTTP API.
type StatusError struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// IsRetryable reports whether a failed call may succeed when repeated:
// transport failures, throttling and server errors.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// API talks to the HTTP surface of the server.
type API struct {
	base  string
	token string
	hc    *http.Client
}

// NewAPI constructs API. A nil hc uses a client with a 15s timeout.
func NewAPI(baseURL, token string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{base: strings.TrimRight(baseURL, "/"), token: token, hc: hc}
}

// Conversations lists the caller's conversations.
func (a *API) Conversations(ctx context.Context) ([]api.ConversationSummary, error) {
	var out []api.ConversationSummary
	if err := a.do(ctx, http.MethodGet, "/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages returns the full ordered history of a conversation.
func (a *API) Messages(ctx context.Context, conversationID string) ([]api.Message, error) {
	var out []api.Message
	if err := a.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send posts a message and returns the persisted copy.
func (a *API) Send(ctx context.Context, conversationID, content string) (*api.Message, error) {
	var out api.Message
	body := api.SendMessageRequest{Content: content}
	if err := a.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(conversationID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		se := &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var er api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			se.Message = er.Error
		}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			se.RetryAfter = time.Duration(s) * time.Second
		}
		return se
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
