package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/and161185/offer-chat/internal/model"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct {
	db  *DB
	now func() time.Time
}

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db, now: time.Now} }

// Append stores msg under a row lock on its conversation. CreatedAt is
// max(now, conversation.updated_at) so timestamps never go backwards
// within a conversation, and updated_at is moved to it.
func (r *MessageRepo) Append(ctx context.Context, msg *model.Message) error {
	const sel = `SELECT updated_at FROM conversations WHERE id=$1 FOR UPDATE`
	const ins = `
INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
VALUES ($1, $2, $3, $4, $5)`
	const upd = `UPDATE conversations SET updated_at=$2 WHERE id=$1`

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		var last time.Time
		if err := tx.QueryRow(ctx, sel, msg.ConversationID).Scan(&last); err != nil {
			return translate(err, "lock conversation")
		}
		at := r.now().UTC().Truncate(time.Microsecond)
		if at.Before(last) {
			at = last
		}
		if _, err := tx.Exec(ctx, ins, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, at); err != nil {
			return translate(err, "insert message")
		}
		if _, err := tx.Exec(ctx, upd, msg.ConversationID, at); err != nil {
			return errors.Wrap(err, "bump conversation")
		}
		msg.CreatedAt = at
		return nil
	})
}

const messageSelect = `
SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
       u.first_name, u.last_name, u.profile_image
FROM messages m
JOIN users u ON u.id = m.sender_id`

// GetByID selects a message of the conversation with its sender summary.
func (r *MessageRepo) GetByID(ctx context.Context, conversationID, id uuid.UUID) (*model.Message, error) {
	const q = messageSelect + `
WHERE m.conversation_id=$1 AND m.id=$2`
	m, err := scanMessage(r.db.conn(ctx).QueryRow(ctx, q, conversationID, id))
	if err != nil {
		return nil, translate(err, "get message")
	}
	return m, nil
}

// ListByConversation returns the conversation's messages in (created_at, id) order.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	const q = messageSelect + `
WHERE m.conversation_id=$1
ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.db.conn(ctx).Query(ctx, q, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	out := make([]model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m model.Message
		s model.User
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt,
		&s.FirstName, &s.LastName, &s.ProfileImage); err != nil {
		return nil, err
	}
	s.ID = m.SenderID
	m.Sender = &s
	return &m, nil
}
