package db

import "context"

// Database is the connection-pool facing interface used by repositories.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, committing on nil and rolling back otherwise.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Transaction is a Querier bound to an open transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows is an iterator over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Scanner is satisfied by both Row and Rows so one scan helper serves single and list reads.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Row is the result of QueryRow.
type Row interface {
	Scanner
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
