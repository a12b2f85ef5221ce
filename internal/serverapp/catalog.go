package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/config"
	"sqlmapper/internal/dbexec"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/keygen"
	"sqlmapper/internal/logging"
	"sqlmapper/internal/mapping"
	"sqlmapper/internal/naming"
	"sqlmapper/internal/observability"
	"sqlmapper/internal/pagination"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errCatalogClosed = errors.New("mapper catalog is shut down")

// catalog is one compiled generation of the mapping files.
type catalog struct {
	statements *compiler.Registry
	session    *dbexec.Session
	loadedAt   time.Time
}

type catalogBuilder struct {
	cfg      *config.Config
	logger   *logging.Logger
	dialect  dialect.Dialect
	executor dbexec.QueryExecutor
	rewriter *pagination.Rewriter
	keys     *keygen.Registry
	metrics  *observability.MapperMetrics
}

// compile loads the mapping files and compiles every statement without
// attaching a session.
func (b *catalogBuilder) compile(ctx context.Context) (*compiler.Registry, error) {
	file, err := mapping.Load(b.cfg.Mapping.Files...)
	if err != nil {
		return nil, err
	}
	mappers, err := mapping.Build(ctx, file, mapping.BuildOptions{
		Namer:           naming.New(b.cfg.Naming, b.logger.Logger),
		Logger:          b.logger.Logger,
		NamespacePrefix: b.cfg.Mapping.NamespacePrefix,
	})
	if err != nil {
		return nil, err
	}
	opts := []compiler.Option{compiler.WithValues(b.keys.Value)}
	if b.metrics != nil {
		opts = append(opts, compiler.WithObserver(b.metrics.ObserveCompiled))
	}
	return compiler.New(mappers, b.dialect, b.logger.Logger, opts...).CompileAll()
}

func (b *catalogBuilder) build(ctx context.Context) (*catalog, error) {
	ctx, span := otel.Tracer("sqlmapper/serverapp").Start(ctx, "catalog.build")
	defer span.End()

	started := time.Now()
	statements, err := b.compile(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sqlmapper.statements", statements.Len()),
		attribute.Int("sqlmapper.namespaces", len(statements.Namespaces())),
	)
	sessionCfg := dbexec.SessionConfig{
		Executor:   b.executor,
		Statements: statements,
		Dialect:    b.dialect,
		Keys:       b.keys,
		Rewriter:   b.rewriter,
		Logger:     b.logger.Logger,
	}
	// A typed nil would make the session's observer check pass.
	if b.metrics != nil {
		sessionCfg.Observer = b.metrics
	}
	b.logger.Info("mapper catalog compiled",
		slog.Int("statements", statements.Len()),
		slog.Int("namespaces", len(statements.Namespaces())),
		slog.Duration("duration", time.Since(started)),
	)
	return &catalog{
		statements: statements,
		session:    dbexec.NewSession(sessionCfg),
		loadedAt:   time.Now(),
	}, nil
}

// catalogStore serves the current catalog to handlers and swaps in a new
// one on reload. Requests in flight keep the catalog they started with.
type catalogStore struct {
	builder *catalogBuilder
	current atomic.Pointer[catalog]
	mu      sync.Mutex
	closed  bool
}

func newCatalogStore(ctx context.Context, builder *catalogBuilder) (*catalogStore, error) {
	s := &catalogStore{builder: builder}
	c, err := builder.build(ctx)
	if err != nil {
		return nil, err
	}
	s.current.Store(c)
	return s, nil
}

// Load returns the current catalog.
func (s *catalogStore) Load() *catalog {
	return s.current.Load()
}

// Reload recompiles the mapping files. On failure the current catalog
// stays in place.
func (s *catalogStore) Reload(ctx context.Context) (*catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errCatalogClosed
	}

	c, err := s.builder.build(ctx)
	if err != nil {
		s.builder.logger.Error("mapper catalog reload failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("reload failed: %w", err)
	}
	s.current.Store(c)
	return c, nil
}

// Close refuses further reloads, waiting for one in progress, and returns
// the catalog left in service.
func (s *catalogStore) Close() *catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.current.Load()
}
