// Package postgres contains PostgreSQL implementations of repository interfaces.
package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/repository"
)

// PgxPool is a minimal abstraction over a Postgres connection pool,
// used by repositories. It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// BeginTx starts a transaction with the provided options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// Close shuts down the pool and frees resources.
	Close()
}

// DB wraps pgxpool.Pool to satisfy repository constructors and allow testing.
type DB struct{ Pool PgxPool }

// New creates a new connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

var _ repository.Transactor = (*DB)(nil)

// querier is what repositories need from either the pool or a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// conn returns the transaction carried by ctx, or the pool.
func (db *DB) conn(ctx context.Context) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db.Pool
}

// WithinTx runs fn in a transaction. Nested calls join the outer one.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return inTx(ctx, db, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return stderrors.As(err, &pg) && pg.Code == "23505"
}

// translate maps driver errors onto sentinels and adds call-site context.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, pgx.ErrNoRows):
		return errors.Wrap(errs.ErrNotFound, op)
	case isUniqueViolation(err):
		return errors.Wrap(errs.ErrAlreadyExists, op)
	default:
		return errors.Wrap(err, op)
	}
}

// inTx runs fn in a transaction, committing on success and rolling back on error.
// When ctx already carries a transaction, fn runs in it and the outer caller
// decides the outcome.
func inTx(ctx context.Context, db *DB, fn func(tx pgx.Tx) error) (err error) {
	if tx, ok := txFrom(ctx); ok {
		return fn(tx)
	}
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()
	return fn(tx)
}
