package db

import (
	"context"
	"database/sql"
)

// Querier runs statements against either the pool or an open transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is the pool handle repositories depend on.
type Database interface {
	Querier
	// Transaction runs fn inside a transaction, committing when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Close() error
}

type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows is satisfied by *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is satisfied by *sql.Row.
type Row interface {
	Scan(dest ...interface{}) error
}

type Result = sql.Result
