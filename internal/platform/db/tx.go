package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const TxKey contextKey = "db_tx"

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxStarter begins transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var (
	// ReadWrite is the default isolation for writes.
	ReadWrite = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

	// ReadSnapshot gives multi-statement reads a single consistent snapshot.
	ReadSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// WithTx runs fn inside a transaction carried on the context. Repositories pick
// it up through Conn. If ctx already carries a transaction, fn joins it and the
// outer caller owns commit and rollback. Errors from fn are returned unchanged.
func WithTx(ctx context.Context, starter TxStarter, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := starter.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, TxKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxFromContext returns the transaction started by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// Conn returns the context transaction when there is one, else fallback.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// Transactor is what services depend on instead of a pool, so tests can run
// them against an in-memory store.
type Transactor interface {
	InTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error
}

// PoolTransactor runs WithTx against a pool.
type PoolTransactor struct {
	Starter TxStarter
}

func NewTransactor(s TxStarter) PoolTransactor {
	return PoolTransactor{Starter: s}
}

func (t PoolTransactor) InTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	return WithTx(ctx, t.Starter, opts, fn)
}
