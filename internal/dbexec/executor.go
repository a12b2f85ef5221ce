// Package dbexec runs compiled statements on database/sql. A Session looks
// statements up by id, binds their arguments, fills generated keys, pages
// selects through the rewriter and maps rows onto result maps. The
// QueryExecutor underneath picks the connection each statement runs on.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/dialect"
)

// Rows is the part of *sql.Rows a Session reads. Executors may wrap it to
// release a pinned connection on Close.
type Rows interface {
	Next() bool
	Columns() ([]string, error)
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs bound SQL. StandardExecutor uses the pool directly;
// RoleExecutor pins a connection and switches to the caller's role first.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor runs statements on the connection pool.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor returns an executor over db.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) pool() (*sql.DB, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db, nil
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	db, err := e.pool()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := e.pool()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

// boundStatement is one call of a compiled statement: SQL with the
// dialect's placeholders and the arguments in placeholder order.
type boundStatement struct {
	statement *compiler.Statement
	query     string
	args      []any
}

// bindFor rebinds query, rendered from st with '?' placeholders, for d.
func bindFor(d dialect.Dialect, st *compiler.Statement, query string, args []any) (boundStatement, error) {
	q, err := d.Rebind(query)
	if err != nil {
		return boundStatement{}, fmt.Errorf("failed to bind %s: %w", st.ID, err)
	}
	return boundStatement{statement: st, query: q, args: args}, nil
}

// rows runs a select; action names the step in errors and logs.
func (b boundStatement) rows(ctx context.Context, e QueryExecutor, logger *slog.Logger, action string) (Rows, error) {
	logger.Debug(action+" statement", slog.String("statement", b.statement.ID), slog.String("sql", b.query))
	rows, err := e.QueryContext(ctx, b.query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", action, b.statement.ID, err)
	}
	return rows, nil
}

// exec runs an insert, update or delete.
func (b boundStatement) exec(ctx context.Context, e QueryExecutor, logger *slog.Logger) (sql.Result, error) {
	logger.Debug("execute statement", slog.String("statement", b.statement.ID), slog.String("sql", b.query))
	res, err := e.ExecContext(ctx, b.query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", b.statement.ID, err)
	}
	return res, nil
}
