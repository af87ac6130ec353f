// Package dbkit wraps sqlx with the transaction, builder, and migration
// conventions trackersyncd's mapping store is built on.
package dbkit

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the slice of the sqlx surface the mapping store's repositories
// actually call, plus GetTx. Narrower than sqlx.DB/sql.DB on purpose: a
// method only earns a place here once a repository calls it.
type DB interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Close() error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	PingContext(ctx context.Context) error
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	SetConnMaxLifetime(d time.Duration)
	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

// Instance adapts a *sqlx.DB into DB.
type Instance struct {
	*sqlx.DB
	logger ectologger.Logger
}

// NewInstance wraps an open sqlx connection.
func NewInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &Instance{DB: db, logger: logger}
}

func (db *Instance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}
