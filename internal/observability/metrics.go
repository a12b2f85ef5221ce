package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/pagination"
)

const meterName = "sqlmapper"

// MapperMetrics holds the instruments of the statement pipeline: compile
// counts, pagination rewrites, parse cache state and statement execution.
type MapperMetrics struct {
	compiled          metric.Int64Counter
	rewrites          metric.Int64Counter
	statementDuration metric.Float64Histogram
	statements        metric.Int64Counter
	statementErrors   metric.Int64Counter
	statementRows     metric.Int64Histogram
	activeStatements  metric.Int64UpDownCounter

	meter metric.Meter
}

// NewMapperMetrics creates the instruments on provider; nil uses the
// global meter provider.
func NewMapperMetrics(provider metric.MeterProvider) (*MapperMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &MapperMetrics{meter: meter}

	var err error
	if m.compiled, err = meter.Int64Counter(
		"sqlmapper.statements.compiled",
		metric.WithDescription("Number of compiled mapped statements"),
	); err != nil {
		return nil, fmt.Errorf("failed to create compiled statements counter: %w", err)
	}
	if m.rewrites, err = meter.Int64Counter(
		"sqlmapper.pagination.rewrites",
		metric.WithDescription("Number of pagination rewrites by strategy"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pagination rewrite counter: %w", err)
	}
	if m.statementDuration, err = meter.Float64Histogram(
		"sqlmapper.statement.duration",
		metric.WithDescription("Duration of executed statements in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create statement duration histogram: %w", err)
	}
	if m.statements, err = meter.Int64Counter(
		"sqlmapper.statements.executed",
		metric.WithDescription("Number of executed statements"),
	); err != nil {
		return nil, fmt.Errorf("failed to create statement counter: %w", err)
	}
	if m.statementErrors, err = meter.Int64Counter(
		"sqlmapper.statements.errors",
		metric.WithDescription("Number of statements that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create statement error counter: %w", err)
	}
	if m.statementRows, err = meter.Int64Histogram(
		"sqlmapper.statement.rows",
		metric.WithDescription("Rows returned or affected per statement"),
	); err != nil {
		return nil, fmt.Errorf("failed to create statement rows histogram: %w", err)
	}
	if m.activeStatements, err = meter.Int64UpDownCounter(
		"sqlmapper.statements.active",
		metric.WithDescription("Number of statements currently executing"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active statements counter: %w", err)
	}
	return m, nil
}

// InitMetrics creates the mapper metrics on the global meter provider.
func InitMetrics(logger *slog.Logger) (*MapperMetrics, error) {
	metrics, err := NewMapperMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mapper metrics: %w", err)
	}
	logger.Info("mapper metrics initialized")
	return metrics, nil
}

// ObserveCompiled counts one compiled statement. It matches the compiler
// observer signature.
func (m *MapperMetrics) ObserveCompiled(st *compiler.Statement) {
	m.compiled.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("command", st.Command.String()),
		attribute.Bool("custom", st.Custom),
	))
}

// ObserveRewrite counts one pagination rewrite by the strategy it took.
func (m *MapperMetrics) ObserveRewrite(res pagination.Result) {
	m.rewrites.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("path", res.Path.String()),
	))
}

// RecordStatement records one statement execution.
func (m *MapperMetrics) RecordStatement(ctx context.Context, statementID, command string, duration time.Duration, rows int64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("statement", statementID),
		attribute.String("command", command),
	)
	m.statementDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.statements.Add(ctx, 1, attrs)
	if err != nil {
		m.statementErrors.Add(ctx, 1, attrs)
		return
	}
	m.statementRows.Record(ctx, rows, attrs)
}

// StatementStarted increments the active statement gauge; the returned
// func decrements it.
func (m *MapperMetrics) StatementStarted(ctx context.Context) func() {
	m.activeStatements.Add(ctx, 1)
	return func() { m.activeStatements.Add(ctx, -1) }
}

// RegisterCacheStats exports the pagination parse cache counters, read
// from stats at collection time.
func (m *MapperMetrics) RegisterCacheStats(stats func() pagination.CacheStats) error {
	entries, err := m.meter.Int64ObservableGauge(
		"sqlmapper.pagination.cache.entries",
		metric.WithDescription("Parsed statements held by the pagination cache"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache entries gauge: %w", err)
	}
	lookups, err := m.meter.Int64ObservableCounter(
		"sqlmapper.pagination.cache.lookups",
		metric.WithDescription("Pagination cache lookups by result"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache lookups counter: %w", err)
	}
	evictions, err := m.meter.Int64ObservableCounter(
		"sqlmapper.pagination.cache.evictions",
		metric.WithDescription("Parsed statements evicted from the pagination cache"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache evictions counter: %w", err)
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(entries, int64(s.Entries))
		o.ObserveInt64(lookups, s.Hits, metric.WithAttributes(attribute.String("result", "hit")))
		o.ObserveInt64(lookups, s.Misses, metric.WithAttributes(attribute.String("result", "miss")))
		o.ObserveInt64(evictions, s.Evictions)
		return nil
	}, entries, lookups, evictions)
	if err != nil {
		return fmt.Errorf("failed to register cache callback: %w", err)
	}
	return nil
}
