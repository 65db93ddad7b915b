package api

import "time"

// Offer boxes for ListOffers.
const (
	BoxReceived = "received"
	BoxSent     = "sent"
)

// Product is a buyer request offers are made on. Price is in cents.
type Product struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Offer is a proposal on a product. Amount is in cents.
type Offer struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	SenderID  string    `json:"senderId"`
	Amount    int64     `json:"amount"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

type CreateOfferRequest struct {
	ProductID string `json:"productId"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message,omitempty"`
}

type AcceptOfferRequest struct {
	OfferID string `json:"offerId"`
}

type AcceptOfferResponse struct {
	ConversationID string `json:"conversationId"`
}

type RejectOfferRequest struct {
	OfferID string `json:"offerId"`
}

type RejectOfferResponse struct{}

type ListOffersRequest struct {
	Box string `json:"box"`
}

type ListOffersResponse struct {
	Offers []Offer `json:"offers"`
}

type GetProductRequest struct {
	ID string `json:"id"`
}
