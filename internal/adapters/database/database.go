// Package database defines the executor-facing contract this module hands
// a compiled program to; actually running SQL against a live connection is
// explicitly out of scope for the compiler (spec.md §1 Non-goals), so this
// package holds the interfaces, driver registration, and one thin
// database/sql-backed implementation (sql_executor.go), grounded on the
// teacher's per-dialect adapter split (v3/internal/adapters/database/*)
// without carrying over the teacher's own execution logic.
package database

import (
	"context"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Row is one returned record, keyed by column name, the shape an Executor's
// query results are expected to take.
type Row map[string]interface{}

// ExecResult is the outcome of a non-query statement.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Executor is the boundary a compiled program's Execute/Query expression
// nodes are run against. NewExecutor in this package provides a
// database/sql-backed implementation; this interface fixes the shape any
// implementation must satisfy.
type Executor interface {
	Exec(ctx context.Context, sql string, args []interface{}) (ExecResult, error)
	Query(ctx context.Context, sql string, args []interface{}) ([]Row, error)
}

// TxExecutor is an Executor bound to an open transaction. Its isolation
// level is whatever the caller passed to BeginTx; no dialect-specific
// statement ordering is applied here.
type TxExecutor interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
