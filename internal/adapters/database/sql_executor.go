package database

import (
	"context"
	"database/sql"
)

// sqlRows is satisfied by both *sql.DB and *sql.Tx, letting sqlExecutor wrap
// either a plain connection pool or an open transaction.
type sqlRows interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// sqlExecutor adapts database/sql to the Executor contract. It carries no
// dialect knowledge of its own: the SQL text and parameter order it is
// handed already came out of sqlgen.Render for the right dialect.Capability.
type sqlExecutor struct {
	conn sqlRows
}

// NewExecutor wraps a *sql.DB as an Executor.
func NewExecutor(db *sql.DB) Executor {
	return &sqlExecutor{conn: db}
}

// NewTxExecutor begins a transaction and returns a TxExecutor bound to it.
func NewTxExecutor(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (TxExecutor, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTxExecutor{sqlExecutor{conn: tx}, tx}, nil
}

func (e *sqlExecutor) Exec(ctx context.Context, query string, args []interface{}) (ExecResult, error) {
	res, err := e.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

func (e *sqlExecutor) Query(ctx context.Context, query string, args []interface{}) ([]Row, error) {
	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type sqlTxExecutor struct {
	sqlExecutor
	tx *sql.Tx
}

func (e *sqlTxExecutor) Commit(ctx context.Context) error   { return e.tx.Commit() }
func (e *sqlTxExecutor) Rollback(ctx context.Context) error { return e.tx.Rollback() }
