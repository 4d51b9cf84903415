package db

import "context"

// Database abstracts a pooled SQL connection.
type Database interface {
	Querier

	Ping(ctx context.Context) error
	Close() error
}

// Scanner is implemented by Row and Rows.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows iterates a query result.
type Rows interface {
	Scanner
	Next() bool
	Err() error
	Close() error
}

// Row is a single-row query result.
type Row interface {
	Scanner
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
