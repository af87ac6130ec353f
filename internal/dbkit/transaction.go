package dbkit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const (
	txStatusKey = txContextKey("tx-status")
	txKey       = txContextKey("tx")
)

// Tx tracks a transaction's commit/rollback lifecycle so an enclosing
// caller's Commit/Rollback is a no-op for everyone nested inside it.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// transaction wraps a *sqlx.Tx with idempotent Commit/Rollback.
type transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

// NewTx wraps an open sqlx transaction.
func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &transaction{Tx: tx, logger: logger}
}

// GetTx returns a transaction scoped to ctx, reusing one already open on it
// (so nested repository calls within a single pass share one commit unit),
// or starting a new one against db.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		if status, ok := ctx.Value(txStatusKey).(string); ok && status == "open" {
			return ctx, ctxTx, nil
		}
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	ctx = context.WithValue(ctx, txStatusKey, "open")
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

func (t *transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}
	if status, ok := ctx.Value(txStatusKey).(string); ok && status == "open" {
		return nil // owned by an enclosing caller; it will close this tx
	}
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}
	t.isClosed = true
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}
	t.isClosed = true
	return nil
}
