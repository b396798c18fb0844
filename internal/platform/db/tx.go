package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// ContextWithTx attaches tx to ctx so repositories joined to the same request share it.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction stored by ContextWithTx.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// Conn returns the active transaction when ctx carries one, the pool otherwise.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return pool
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// Transactor runs units of work spanning several repositories.
type Transactor struct {
	pool     *pgxpool.Pool
	conflict error
}

// NewTransactor builds a Transactor over pool. Serialization failures and
// deadlocks are reported wrapped in conflict, so callers can treat a lost
// race like a stale version.
func NewTransactor(pool *pgxpool.Pool, conflict error) *Transactor {
	return &Transactor{pool: pool, conflict: conflict}
}

// InTx runs fn inside a transaction. Nested calls join the outer transaction.
func (t *Transactor) InTx(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return t.translate(WithTx(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(ContextWithTx(ctx, tx))
	}))
}

func (t *Transactor) translate(err error) error {
	if err == nil || t.conflict == nil || errors.Is(err, t.conflict) || !IsSerializationFailure(err) {
		return err
	}
	return fmt.Errorf("%w: %w", t.conflict, err)
}
