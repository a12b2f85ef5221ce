package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/pagination"
)

func newTestMetrics(t *testing.T) (*MapperMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMapperMetrics(provider)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMapperMetrics_CompileAndRewrite(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.ObserveCompiled(&compiler.Statement{ID: "UserMapper.findById", Command: compiler.Select})
	m.ObserveCompiled(&compiler.Statement{ID: "UserMapper.insert", Command: compiler.Insert})
	m.ObserveCompiled(&compiler.Statement{ID: "UserMapper.findAll", Command: compiler.Select})
	m.ObserveRewrite(pagination.Result{Path: pagination.PathJoined})
	m.ObserveRewrite(pagination.Result{Path: pagination.PathDirect})
	m.ObserveRewrite(pagination.Result{Path: pagination.PathJoined})

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["sqlmapper.statements.compiled"], "command", "select"))
	assert.Equal(t, int64(1), sumFor(t, data["sqlmapper.statements.compiled"], "command", "insert"))
	assert.Equal(t, int64(2), sumFor(t, data["sqlmapper.pagination.rewrites"], "path", "joined"))
	assert.Equal(t, int64(1), sumFor(t, data["sqlmapper.pagination.rewrites"], "path", "direct"))
}

func TestMapperMetrics_RecordStatement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	done := m.StatementStarted(ctx)
	m.RecordStatement(ctx, "UserMapper.findById", "select", 3*time.Millisecond, 2, nil)
	done()
	m.RecordStatement(ctx, "UserMapper.findById", "select", time.Millisecond, 0, errors.New("boom"))

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["sqlmapper.statements.executed"], "statement", "UserMapper.findById"))
	assert.Equal(t, int64(1), sumFor(t, data["sqlmapper.statements.errors"], "statement", "UserMapper.findById"))

	rows, ok := data["sqlmapper.statement.rows"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, rows.DataPoints, 1)
	assert.Equal(t, uint64(1), rows.DataPoints[0].Count)
	assert.Equal(t, int64(2), rows.DataPoints[0].Sum)

	active, ok := data["sqlmapper.statements.active"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(0), active.DataPoints[0].Value)
}

func TestMapperMetrics_CacheStats(t *testing.T) {
	m, reader := newTestMetrics(t)
	stats := pagination.CacheStats{Entries: 4, Hits: 10, Misses: 4, Evictions: 1}
	require.NoError(t, m.RegisterCacheStats(func() pagination.CacheStats { return stats }))

	data := collect(t, reader)
	entries, ok := data["sqlmapper.pagination.cache.entries"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, entries.DataPoints, 1)
	assert.Equal(t, int64(4), entries.DataPoints[0].Value)
	assert.Equal(t, int64(10), sumFor(t, data["sqlmapper.pagination.cache.lookups"], "result", "hit"))
	assert.Equal(t, int64(4), sumFor(t, data["sqlmapper.pagination.cache.lookups"], "result", "miss"))
}

func TestSecurityMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSecurityMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAuthAttempt(ctx, "/statements")
	m.RecordAuthFailure(ctx, "/statements", "missing_token")
	m.RecordRoleRejected(ctx, "not_allowed")

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, data["security.auth.failures.total"], "reason", "missing_token"))
	assert.Equal(t, int64(1), sumFor(t, data["security.db_role.rejections.total"], "reason", "not_allowed"))
}
