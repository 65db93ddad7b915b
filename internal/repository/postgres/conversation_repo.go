package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pkg/errors"

	"github.com/and161185/offer-chat/internal/model"
)

// ConversationRepo implements ConversationRepository using PostgreSQL.
// Uniqueness of (user1_id, user2_id, offer_id) is enforced by conversations_pair_offer_uq.
type ConversationRepo struct{ db *DB }

// NewConversationRepo constructs a conversation repository.
func NewConversationRepo(db *DB) *ConversationRepo { return &ConversationRepo{db: db} }

const conversationColumns = `id, user1_id, user2_id, offer_id, created_at, updated_at`

// Create inserts a conversation. A concurrent insert of the same key yields errs.ErrAlreadyExists.
func (r *ConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	const q = `
INSERT INTO conversations (id, user1_id, user2_id, offer_id)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`
	err := r.db.conn(ctx).QueryRow(ctx, q, c.ID, c.User1ID, c.User2ID, nullUUID(c.OfferID)).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	return translate(err, "create conversation")
}

// FindByPair looks up a conversation by canonical pair and offer.
func (r *ConversationRepo) FindByPair(
	ctx context.Context, user1, user2 string, offerID *uuid.UUID,
) (*model.Conversation, error) {
	const q = `
SELECT ` + conversationColumns + `
FROM conversations
WHERE user1_id=$1 AND user2_id=$2 AND offer_id IS NOT DISTINCT FROM $3::uuid`
	c, err := scanConversation(r.db.conn(ctx).QueryRow(ctx, q, user1, user2, nullUUID(offerID)))
	if err != nil {
		return nil, translate(err, "find conversation")
	}
	return c, nil
}

// FindAnyByPair returns the most recently updated conversation of the pair.
func (r *ConversationRepo) FindAnyByPair(ctx context.Context, user1, user2 string) (*model.Conversation, error) {
	const q = `
SELECT ` + conversationColumns + `
FROM conversations
WHERE user1_id=$1 AND user2_id=$2
ORDER BY updated_at DESC
LIMIT 1`
	c, err := scanConversation(r.db.conn(ctx).QueryRow(ctx, q, user1, user2))
	if err != nil {
		return nil, translate(err, "find conversation by pair")
	}
	return c, nil
}

// GetByID selects a conversation by ID.
func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	const q = `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	c, err := scanConversation(r.db.conn(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, translate(err, "get conversation")
	}
	return c, nil
}

const deleteEmptyConversations = `
DELETE FROM conversations c
WHERE c.offer_id=$1
  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id)`

// DeleteEmptyForOffer removes conversations opened for offerID that hold no messages.
func (r *ConversationRepo) DeleteEmptyForOffer(ctx context.Context, offerID uuid.UUID) (int64, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, deleteEmptyConversations, offerID)
	if err != nil {
		return 0, errors.Wrap(err, "delete empty conversations")
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns the user's conversations with the other participant,
// the originating product and the last message, most recently updated first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	const q = `
SELECT c.id, c.user1_id, c.user2_id, c.offer_id, c.created_at, c.updated_at,
       u.id, u.first_name, u.last_name, u.profile_image,
       p.id, COALESCE(p.name, ''),
       m.id, COALESCE(m.sender_id, ''), COALESCE(m.content, ''), m.created_at
FROM conversations c
JOIN users u ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
LEFT JOIN offers o ON o.id = c.offer_id
LEFT JOIN products p ON p.id = o.product_id
LEFT JOIN LATERAL (
  SELECT id, sender_id, content, created_at
  FROM messages
  WHERE conversation_id = c.id
  ORDER BY created_at DESC, id DESC
  LIMIT 1
) m ON true
WHERE c.user1_id = $1 OR c.user2_id = $1
ORDER BY c.updated_at DESC, c.id DESC`
	rows, err := r.db.conn(ctx).Query(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var (
			s         model.ConversationSummary
			offerID   uuid.NullUUID
			productID uuid.NullUUID
			prodName  string
			msgID     uuid.NullUUID
			msgSender string
			msgBody   string
			msgAt     pgtype.Timestamptz
		)
		if err := rows.Scan(
			&s.ID, &s.User1ID, &s.User2ID, &offerID, &s.CreatedAt, &s.UpdatedAt,
			&s.OtherUser.ID, &s.OtherUser.FirstName, &s.OtherUser.LastName, &s.OtherUser.ProfileImage,
			&productID, &prodName,
			&msgID, &msgSender, &msgBody, &msgAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan conversation summary")
		}
		if offerID.Valid {
			id := offerID.UUID
			s.OfferID = &id
		}
		if productID.Valid {
			s.Product = &model.ProductRef{ID: productID.UUID, Name: prodName}
		}
		if msgID.Valid {
			s.LastMessage = &model.Message{
				ID:             msgID.UUID,
				ConversationID: s.ID,
				SenderID:       msgSender,
				Content:        msgBody,
				CreatedAt:      msgAt.Time,
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		c       model.Conversation
		offerID uuid.NullUUID
	)
	if err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &offerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if offerID.Valid {
		id := offerID.UUID
		c.OfferID = &id
	}
	return &c, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
