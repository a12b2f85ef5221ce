package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"sqlmapper/internal/dialect"
)

// RoleExecutor runs each statement on a dedicated connection after
// switching to the role carried by the request context, and restores the
// default role before the connection returns to the pool.
type RoleExecutor struct {
	db           *sql.DB
	dialect      dialect.Dialect
	databaseName string
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB      *sql.DB
	Dialect dialect.Dialect
	// DatabaseName is selected with USE on MySQL-family connections, where
	// SET ROLE can leave the session without a default schema.
	DatabaseName string
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each statement.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	return &RoleExecutor{
		db:           cfg.DB,
		dialect:      cfg.Dialect,
		databaseName: cfg.DatabaseName,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, release, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		release()
		return nil, err
	}
	return &roleAwareRows{Rows: rows, release: release}, nil
}

func (e *RoleExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, release, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return conn.ExecContext(ctx, query, args...)
}

// prepare acquires a connection and applies the context role. The returned
// release func resets the role and returns the connection.
func (e *RoleExecutor) prepare(ctx context.Context) (*sql.Conn, func(), error) {
	if e.db == nil {
		return nil, nil, sql.ErrConnDone
	}
	role, hasRole := "", false
	if e.roleFromCtx != nil {
		role, hasRole = e.roleFromCtx(ctx)
	}
	hasRole = hasRole && role != ""
	if hasRole && e.validateRole {
		if _, ok := e.allowedRoles[role]; !ok {
			return nil, nil, fmt.Errorf("role not allowed: %s", role)
		}
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	release := func() { _ = conn.Close() }
	if hasRole {
		release = func() {
			_, _ = conn.ExecContext(context.Background(), e.resetRoleSQL())
			_ = conn.Close()
		}
		// SET ROLE takes no bind parameters; the role is quoted as an identifier.
		if _, err := conn.ExecContext(ctx, "SET ROLE "+e.dialect.Quote(role)); err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to set role %s: %w", role, err)
		}
	}
	if err := e.useDatabase(ctx, conn); err != nil {
		release()
		return nil, nil, err
	}
	return conn, release, nil
}

func (e *RoleExecutor) mysqlFamily() bool {
	switch e.dialect.Name() {
	case dialect.MySQL, dialect.MariaDB, dialect.TiDB:
		return true
	}
	return false
}

func (e *RoleExecutor) resetRoleSQL() string {
	if e.mysqlFamily() {
		return "SET ROLE DEFAULT"
	}
	return "RESET ROLE"
}

func (e *RoleExecutor) useDatabase(ctx context.Context, conn *sql.Conn) error {
	if e.databaseName == "" || !e.mysqlFamily() {
		return nil
	}
	if _, err := conn.ExecContext(ctx, "USE "+e.dialect.Quote(e.databaseName)); err != nil {
		return fmt.Errorf("failed to select database %s: %w", e.databaseName, err)
	}
	return nil
}

type roleAwareRows struct {
	*sql.Rows
	release func()
}

func (r *roleAwareRows) Close() error {
	defer r.release()
	return r.Rows.Close()
}
