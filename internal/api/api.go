// Package api defines the JSON wire shapes shared by the HTTP, WebSocket and
// gRPC surfaces and by the client.
package api

import "time"

// UserSummary is the public profile attached to messages and conversations.
type UserSummary struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ProfileImage string `json:"profileImage"`
}

// Message is a persisted chat message.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"createdAt"`
	Sender         *UserSummary `json:"sender,omitempty"`
}

// LastMessage is the preview shown in conversation lists.
type LastMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProductRef names the product a conversation originated from.
type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConversationSummary is one entry of GET /messages.
// Product and LastMessage encode as null when absent.
type ConversationSummary struct {
	ID          string       `json:"id"`
	OtherUser   UserSummary  `json:"otherUser"`
	Product     *ProductRef  `json:"product"`
	LastMessage *LastMessage `json:"lastMessage"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// SendMessageRequest is the body of POST /messages/{conversationId}.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ErrorResponse is the body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendMessageNotice is the data of the advisory send-message event a client
// emits after a successful POST. Only the ids are trusted by the server.
type SendMessageNotice struct {
	ConversationID string       `json:"conversationId"`
	MessageID      string       `json:"messageId"`
	SenderID       string       `json:"senderId,omitempty"`
	Content        string       `json:"content,omitempty"`
	CreatedAt      *time.Time   `json:"createdAt,omitempty"`
	Sender         *UserSummary `json:"sender,omitempty"`
}

// ErrorEvent is the data of a server error event.
type ErrorEvent struct {
	Message string `json:"message"`
}
