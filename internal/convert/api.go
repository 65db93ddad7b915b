// Package convert maps domain models to wire DTOs and back.
package convert

import (
	"fmt"
	"strings"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/offer-chat/internal/api"
	model "github.com/and161185/offer-chat/internal/model"
)

// Profile fallbacks for conversation lists.
const (
	UnknownFirstName = "Unknown"
	UnknownLastName  = "User"
	avatarBase       = "https://avatar.vercel.sh/"
)

// --- users ---

// ToAPIUser converts a stored profile without fallbacks.
func ToAPIUser(in *model.User) *api.UserSummary {
	if in == nil {
		return nil
	}
	return &api.UserSummary{
		ID:           in.ID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		ProfileImage: in.ProfileImage,
	}
}

// ToAPIOtherUser fills blank profile fields with display fallbacks.
func ToAPIOtherUser(in model.User) api.UserSummary {
	out := api.UserSummary{
		ID:           in.ID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		ProfileImage: in.ProfileImage,
	}
	if out.FirstName == "" {
		out.FirstName = UnknownFirstName
	}
	if out.LastName == "" {
		out.LastName = UnknownLastName
	}
	if out.ProfileImage == "" {
		name := in.FirstName
		if name == "" {
			name = "User"
		}
		out.ProfileImage = avatarBase + name
	}
	return out
}

// FromAPIUser converts a wire profile back to the domain.
func FromAPIUser(in *api.UserSummary) *model.User {
	if in == nil {
		return nil
	}
	return &model.User{ID: in.ID, FirstName: in.FirstName, LastName: in.LastName, ProfileImage: in.ProfileImage}
}

// --- messages ---

// ToAPIMessage converts a persisted message.
func ToAPIMessage(in model.Message) api.Message {
	return api.Message{
		ID:             in.ID.String(),
		ConversationID: in.ConversationID.String(),
		SenderID:       in.SenderID,
		Content:        in.Content,
		CreatedAt:      in.CreatedAt.UTC(),
		Sender:         ToAPIUser(in.Sender),
	}
}

// ToAPIMessages converts a history; the result is never nil.
func ToAPIMessages(in []model.Message) []api.Message {
	out := make([]api.Message, 0, len(in))
	for _, m := range in {
		out = append(out, ToAPIMessage(m))
	}
	return out
}

// FromAPIMessage parses a wire message.
func FromAPIMessage(in api.Message) (model.Message, error) {
	id, err := u.FromString(in.ID)
	if err != nil {
		return model.Message{}, fmt.Errorf("message id: %w", err)
	}
	cid, err := u.FromString(in.ConversationID)
	if err != nil {
		return model.Message{}, fmt.Errorf("conversation id: %w", err)
	}
	return model.Message{
		ID:             id,
		ConversationID: cid,
		SenderID:       in.SenderID,
		Content:        in.Content,
		CreatedAt:      in.CreatedAt,
		Sender:         FromAPIUser(in.Sender),
	}, nil
}

// --- conversations ---

// ToAPIConversations converts list summaries; the result is never nil.
func ToAPIConversations(in []model.ConversationSummary) []api.ConversationSummary {
	out := make([]api.ConversationSummary, 0, len(in))
	for _, s := range in {
		cs := api.ConversationSummary{
			ID:        s.ID.String(),
			OtherUser: ToAPIOtherUser(s.OtherUser),
			UpdatedAt: s.UpdatedAt.UTC(),
		}
		if s.Product != nil {
			cs.Product = &api.ProductRef{ID: s.Product.ID.String(), Name: s.Product.Name}
		}
		if m := s.LastMessage; m != nil {
			cs.LastMessage = &api.LastMessage{
				ID:        m.ID.String(),
				Content:   m.Content,
				SenderID:  m.SenderID,
				CreatedAt: m.CreatedAt.UTC(),
			}
		}
		out = append(out, cs)
	}
	return out
}

// --- market ---

// ToAPIProduct converts a product.
func ToAPIProduct(in *model.Product) api.Product {
	return api.Product{
		ID:          in.ID.String(),
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CreatedAt:   in.CreatedAt.UTC(),
	}
}

// ToAPIOffer converts an offer.
func ToAPIOffer(in model.Offer) api.Offer {
	return api.Offer{
		ID:        in.ID.String(),
		ProductID: in.ProductID.String(),
		SenderID:  in.SenderID,
		Amount:    in.Amount,
		Message:   in.Message,
		Status:    string(in.Status),
		CreatedAt: in.CreatedAt.UTC(),
	}
}

// ToAPIOffers converts a list of offers; the result is never nil.
func ToAPIOffers(in []model.Offer) []api.Offer {
	out := make([]api.Offer, 0, len(in))
	for _, o := range in {
		out = append(out, ToAPIOffer(o))
	}
	return out
}

// ParseID parses a textual UUID, naming the field on failure.
func ParseID(field, s string) (u.UUID, error) {
	id, err := u.FromString(strings.TrimSpace(s))
	if err != nil || id == u.Nil {
		return u.Nil, fmt.Errorf("invalid %s %q", field, s)
	}
	return id, nil
}
