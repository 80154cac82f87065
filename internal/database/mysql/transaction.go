package mysql

import (
	"context"
	"fmt"
	"sync/atomic"

	"database/sql"

	"github.com/officepass/officepass/internal/database/adapter"
)

// Transaction pins one pool connection for its whole lifetime. The
// connection is released back to the pool in a deferred step of Commit and
// Rollback regardless of whether the call itself succeeds.
type Transaction struct {
	conn     *sql.Conn
	tx       *sql.Tx
	resolved int32
}

// BeginTransaction reserves one pool connection, re-asserts the active
// schema on it, and opens a transaction pinned to it.
func (a *Adapter) BeginTransaction(ctx context.Context) (adapter.Transaction, error) {
	conn, err := a.borrowConn(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{conn: conn, tx: tx}, nil
}

// Run executes a parameterized mutation inside the transaction.
func (t *Transaction) Run(ctx context.Context, query string, params ...interface{}) (adapter.RunResult, error) {
	if atomic.LoadInt32(&t.resolved) == 1 {
		return adapter.RunResult{}, adapter.ErrTransactionClosed
	}
	res, err := t.tx.ExecContext(ctx, query, params...)
	if err != nil {
		return adapter.RunResult{}, fmt.Errorf("error executing statement: %w", err)
	}
	return normalizeResult(res), nil
}

// Get returns at most one row from a query inside the transaction.
func (t *Transaction) Get(ctx context.Context, query string, params ...interface{}) (map[string]interface{}, error) {
	rows, err := t.All(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All returns every row from a query inside the transaction.
func (t *Transaction) All(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if atomic.LoadInt32(&t.resolved) == 1 {
		return nil, adapter.ErrTransactionClosed
	}
	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Commit commits the transaction. The reserved connection is released even
// if the commit fails.
func (t *Transaction) Commit(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.resolved, 0, 1) {
		return adapter.ErrTransactionClosed
	}
	defer t.conn.Close()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Rollback discards the transaction. The reserved connection is released
// even if the rollback fails.
func (t *Transaction) Rollback(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.resolved, 0, 1) {
		return adapter.ErrTransactionClosed
	}
	defer t.conn.Close()
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
