package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"sqlmapper/internal/keygen"
	"sqlmapper/internal/pagination"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	var t telemetry
	if err := initMetrics(a.cfg, a.logger, &t); err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if t.meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return t.meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}
	if err := initTracing(a.cfg, a.logger, &t); err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if t.tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return t.tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to database",
		slog.String("driver", a.cfg.Database.DriverName()),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.cfg.Database.Database),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)
	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})
	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	d, err := resolveDialect(ctx, a.cfg, a.logger, db)
	if err != nil {
		return fmt.Errorf("failed to resolve SQL dialect: %w", err)
	}

	rewriterOpts := []pagination.Option{
		pagination.WithCacheSize(a.cfg.Pagination.CacheSize),
		pagination.WithLogger(a.logger.Logger),
	}
	if t.mapperMetrics != nil {
		rewriterOpts = append(rewriterOpts, pagination.WithObserver(t.mapperMetrics.ObserveRewrite))
	}
	rewriter := pagination.NewRewriter(d, rewriterOpts...)
	if t.mapperMetrics != nil {
		if err := t.mapperMetrics.RegisterCacheStats(rewriter.CacheStats); err != nil {
			a.logger.Warn("failed to register pagination cache metrics", slog.String("error", err.Error()))
		}
	}

	catalogs, err := newCatalogStore(ctx, &catalogBuilder{
		cfg:      a.cfg,
		logger:   a.logger,
		dialect:  d,
		executor: buildQueryExecutor(a.cfg, db, d),
		rewriter: rewriter,
		keys:     keygen.NewRegistry(a.logger.Logger),
		metrics:  t.mapperMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to compile mapper catalog: %w", err)
	}
	cleanup.push("mapper catalog", drainCatalog(catalogs, a.logger))

	mux, err := buildRouter(a.cfg, a.logger, &api{
		cfg:      a.cfg,
		logger:   a.logger,
		catalogs: catalogs,
		rewriter: rewriter,
		dialect:  d,
		db:       db,
		metrics:  t.mapperMetrics,
	}, t.securityMetrics, t.meterProvider != nil)
	if err != nil {
		return err
	}
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = t.meterProvider
	a.mapperMetrics = t.mapperMetrics
	a.securityMetrics = t.securityMetrics
	a.tracerProvider = t.tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.dialect = d
	a.catalogs = catalogs
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
