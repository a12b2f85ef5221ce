package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sqlmapper/internal/config"
	"sqlmapper/internal/dbexec"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/logging"
	"sqlmapper/internal/middleware"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

func dbSystem(driver string) attribute.KeyValue {
	switch driver {
	case config.DriverPostgres:
		return semconv.DBSystemPostgreSQL
	case config.DriverSQLite:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}
	driver := cfg.Database.DriverName()
	obs := cfg.Observability

	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open(driver, dsn)
		return db, nil, err
	}

	system := dbSystem(driver)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if obs.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	switch {
	case obs.SQLCommenter && obs.TracingEnabled:
		opts = append(opts, otelsql.WithSQLCommenter(true))
		logger.Info("SQLCommenter enabled - trace context will be injected into SQL queries")
	case obs.SQLCommenter:
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open(driver, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}
	var statsReg interface{ Unregister() error }
	if obs.MetricsEnabled {
		if statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system)); err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}
	logger.Info("database instrumentation enabled",
		slog.String("driver", driver),
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
	)
	return db, statsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	pool := cfg.Database.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg.Database.ConnectionTimeout, cfg.Database.ConnectionRetryInterval, logger, db); err != nil {
		return err
	}
	logger.Info("connected to database",
		slog.String("driver", cfg.Database.DriverName()),
		slog.String("database", cfg.Database.Database),
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
	)
	return nil
}

// waitForDatabase pings until the database answers or timeout elapses,
// doubling interval between attempts up to 30s. A zero timeout pings once.
func waitForDatabase(ctx context.Context, timeout, interval time.Duration, logger *logging.Logger, db *sql.DB) error {
	if timeout == 0 {
		return db.PingContext(ctx)
	}
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}
		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, 30*time.Second)
	}
}

var versionQueries = map[string]string{
	config.DriverMySQL:    "SELECT VERSION()",
	config.DriverPostgres: "SELECT version()",
	config.DriverSQLite:   "SELECT 'SQLite ' || sqlite_version()",
}

// resolveDialect returns the configured dialect, or asks the database for
// its version banner when auto detection is on. MySQL banners without a
// product name fall back to the driver's dialect.
func resolveDialect(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) (dialect.Dialect, error) {
	if !cfg.Dialect.AutoDetect || db == nil {
		return dialect.Lookup(cfg.EffectiveDialect())
	}
	driver := cfg.Database.DriverName()
	var banner string
	if err := db.QueryRowContext(ctx, versionQueries[driver]).Scan(&banner); err != nil {
		return dialect.Dialect{}, fmt.Errorf("failed to read database version: %w", err)
	}
	d, err := dialect.ForProduct(banner)
	if err != nil {
		d, err = dialect.Lookup(cfg.Database.DialectName())
		if err != nil {
			return dialect.Dialect{}, err
		}
	}
	logger.Info("detected database dialect",
		slog.String("version", strings.TrimSpace(banner)),
		slog.String("dialect", d.Name()),
	)
	return d, nil
}

func buildQueryExecutor(cfg *config.Config, db *sql.DB, d dialect.Dialect) dbexec.QueryExecutor {
	auth := cfg.Server.Auth
	if !auth.DBRoleEnabled {
		return dbexec.NewStandardExecutor(db)
	}
	return dbexec.NewRoleExecutor(dbexec.RoleExecutorConfig{
		DB:           db,
		Dialect:      d,
		DatabaseName: cfg.Database.Database,
		RoleFromCtx: func(ctx context.Context) (string, bool) {
			role, ok := middleware.DBRoleFromContext(ctx)
			return role.Role, ok && role.Validated
		},
		AllowedRoles: auth.DBRoleAllowed,
		ValidateRole: len(auth.DBRoleAllowed) > 0,
	})
}
