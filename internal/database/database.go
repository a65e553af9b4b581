// Package database carries an open transaction through the context so
// stores in different packages can enlist their writes in one commit. An
// order transition and its ledger entries, or an admin override and its
// audit row, either all land or none do.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Querier is the query surface shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx returns ctx carrying tx for stores to pick up.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// From returns the context transaction when one is open, else db.
func From(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// Runner executes fn atomically: every store write fn makes through its
// context is applied in full or not at all. Nested calls join the
// enclosing unit instead of starting a new one.
type Runner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner backs Runner with real database transactions.
type SQLRunner struct {
	db *sql.DB
}

// NewSQLRunner creates a transaction runner over db.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type memTxKey struct{}

// MemoryRunner gives the in-memory stores the same contract by serializing
// composed operations under one lock. The stores cannot roll back, so
// callers order their fallible step first; with every composer holding the
// lock, nothing can interleave between that step and the writes after it.
type MemoryRunner struct {
	mu sync.Mutex
}

// NewMemoryRunner creates a runner for the in-memory stores.
func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}
