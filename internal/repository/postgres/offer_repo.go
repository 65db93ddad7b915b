package postgres

import (
	"context"
	stderrors "errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
)

// OfferRepo implements OfferRepository using PostgreSQL.
type OfferRepo struct{ db *DB }

// NewOfferRepo constructs an offer repository.
func NewOfferRepo(db *DB) *OfferRepo { return &OfferRepo{db: db} }

const offerColumns = `id, product_id, sender_id, amount, message, status, created_at`

// Create inserts a pending offer and fills Status and CreatedAt.
func (r *OfferRepo) Create(ctx context.Context, o *model.Offer) error {
	const q = `
INSERT INTO offers (id, product_id, sender_id, amount, message, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
RETURNING created_at`
	if err := r.db.conn(ctx).QueryRow(ctx, q, o.ID, o.ProductID, o.SenderID, o.Amount, o.Message).Scan(&o.CreatedAt); err != nil {
		return translate(err, "create offer")
	}
	o.Status = model.OfferPending
	return nil
}

// GetByID selects an offer by ID.
func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Offer, error) {
	const q = `SELECT ` + offerColumns + ` FROM offers WHERE id=$1`
	o, err := scanOffer(r.db.conn(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, translate(err, "get offer")
	}
	return o, nil
}

// Transition performs a conditional status update. Only one of several
// concurrent callers observes a matched row.
func (r *OfferRepo) Transition(ctx context.Context, id uuid.UUID, from, to model.OfferStatus) error {
	const q = `UPDATE offers SET status=$3 WHERE id=$1 AND status=$2`
	tag, err := r.db.conn(ctx).Exec(ctx, q, id, string(from), string(to))
	if err != nil {
		return errors.Wrap(err, "transition offer")
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrInvalidState
	}
	return nil
}

// DeletePending removes the offer while it is still pending. Message-less
// conversations opened for it go too; one with messages blocks the delete.
func (r *OfferRepo) DeletePending(ctx context.Context, id uuid.UUID) error {
	const lock = `SELECT status FROM offers WHERE id=$1 FOR UPDATE`
	const inUse = `SELECT EXISTS (SELECT 1 FROM conversations WHERE offer_id=$1)`
	const del = `DELETE FROM offers WHERE id=$1 AND status='pending'`

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, lock, id).Scan(&status); err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return errs.ErrInvalidState
			}
			return errors.Wrap(err, "lock offer")
		}
		if model.OfferStatus(status) != model.OfferPending {
			return errs.ErrInvalidState
		}
		if _, err := tx.Exec(ctx, deleteEmptyConversations, id); err != nil {
			return errors.Wrap(err, "delete empty conversations")
		}
		var used bool
		if err := tx.QueryRow(ctx, inUse, id).Scan(&used); err != nil {
			return errors.Wrap(err, "check offer conversations")
		}
		if used {
			return errs.ErrInvalidState
		}
		tag, err := tx.Exec(ctx, del, id)
		if err != nil {
			return errors.Wrap(err, "delete offer")
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrInvalidState
		}
		return nil
	})
}

// ListByProductOwner returns offers on products owned by ownerID, newest first.
func (r *OfferRepo) ListByProductOwner(ctx context.Context, ownerID string) ([]model.Offer, error) {
	const q = `
SELECT o.id, o.product_id, o.sender_id, o.amount, o.message, o.status, o.created_at
FROM offers o
JOIN products p ON p.id = o.product_id
WHERE p.owner_id=$1
ORDER BY o.created_at DESC, o.id DESC`
	return r.list(ctx, q, ownerID)
}

// ListBySender returns offers sent by senderID, newest first.
func (r *OfferRepo) ListBySender(ctx context.Context, senderID string) ([]model.Offer, error) {
	const q = `SELECT ` + offerColumns + ` FROM offers WHERE sender_id=$1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, senderID)
}

func (r *OfferRepo) list(ctx context.Context, q string, arg string) ([]model.Offer, error) {
	rows, err := r.db.conn(ctx).Query(ctx, q, arg)
	if err != nil {
		return nil, errors.Wrap(err, "list offers")
	}
	defer rows.Close()

	var out []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan offer")
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOffer(row pgx.Row) (*model.Offer, error) {
	var (
		o      model.Offer
		status string
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.SenderID, &o.Amount, &o.Message, &status, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Status = model.OfferStatus(status)
	return &o, nil
}
