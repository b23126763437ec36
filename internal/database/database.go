// Package database defines the read-only contract all SQL drivers implement.
//
// Layers above this package (schema inspection, the execution prechecker, the
// HTTP handlers) talk only to the DB interface — they never import the mysql
// or postgres packages directly.
package database

import "context"

// DB is the central contract for all database operations.
// nlquery is strictly read-only: drivers expose no Exec and no transactions.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// ListDatabases returns the names of all user databases / schemas.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListTables returns all base table names in the given database.
	ListTables(ctx context.Context, db string) ([]string, error)

	// TableExists reports whether the table exists in the given database.
	TableExists(ctx context.Context, db, table string) (bool, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row. Returns false when exhausted or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}
