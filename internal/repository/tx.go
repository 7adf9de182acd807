package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use,
// so every query can run either directly on the pool or inside an open
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Atomic runs fn inside one storage transaction: either every write in fn
// commits or none become visible.
type Atomic interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

type txContextKey struct{}

// TxRunner implements Atomic over a pgx pool. The open transaction is
// carried in the context, where the repositories pick it up.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner builds a runner bound to the pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithinTx begins a transaction, runs fn with it bound to the context and
// commits, rolling back when fn errors. A context already carrying a
// transaction joins it instead of opening a nested one.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	if r == nil || r.pool == nil || txFrom(ctx) != nil {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

func txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx
}

func poolOrTx(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return pool
}
