// Package dbexec provides database query execution abstractions.
// It supports direct execution against a pool and execution inside one
// transaction; readers use a read-only snapshot transaction so a count and a
// page fetch observe the same committed state.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can run the same code
// against the pool or a transaction.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxRunner runs a function against one transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type TxRunner interface {
	QueryExecutor
	InTx(ctx context.Context, opts *sql.TxOptions, fn func(QueryExecutor) error) error
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// InTx begins a transaction with opts, runs fn and finishes the
// transaction. Cancelling ctx aborts the transaction and releases its
// connection.
func (e *StandardExecutor) InTx(ctx context.Context, opts *sql.TxOptions, fn func(QueryExecutor) error) (err error) {
	if e.db == nil {
		return sql.ErrConnDone
	}
	tx, err := e.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			panic(rec)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
			}
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit transaction: %w", cerr)
		}
	}()

	return fn(&txExecutor{tx: tx})
}

type txExecutor struct {
	tx *sql.Tx
}

func (t *txExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *txExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}
