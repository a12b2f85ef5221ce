package serverapp

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/config"
	"sqlmapper/internal/criteria"
	"sqlmapper/internal/dbexec"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/keygen"
	"sqlmapper/internal/logging"
	"sqlmapper/internal/naming"
	"sqlmapper/internal/pagination"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Mapping.Files = []string{"testdata/catalog.yaml"}
	cfg.Naming = naming.DefaultConfig()
	cfg.Database.Driver = config.DriverMySQL
	cfg.Dialect.Name = dialect.MySQL
	cfg.Server.MaxRows = 100
	return cfg
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type apiHarness struct {
	cfg     *config.Config
	api     *api
	mock    sqlmock.Sqlmock
	handler http.Handler
	d       dialect.Dialect
}

func newAPIHarness(t *testing.T, mutate func(*config.Config)) *apiHarness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := testLogger()
	d, err := dialect.Lookup(cfg.EffectiveDialect())
	require.NoError(t, err)

	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	rewriter := pagination.NewRewriter(d)
	catalogs, err := newCatalogStore(context.Background(), &catalogBuilder{
		cfg:      cfg,
		logger:   logger,
		dialect:  d,
		executor: dbexec.NewStandardExecutor(db),
		rewriter: rewriter,
		keys:     keygen.NewRegistry(logger.Logger),
	})
	require.NoError(t, err)

	h := &api{cfg: cfg, logger: logger, catalogs: catalogs, rewriter: rewriter, dialect: d, db: db}
	mux, err := buildRouter(cfg, logger, h, nil, false)
	require.NoError(t, err)
	return &apiHarness{cfg: cfg, api: h, mock: mock, handler: wrapHTTPHandler(cfg, logger, mux), d: d}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) statement(t *testing.T, id string) *compiler.Statement {
	t.Helper()
	st, ok := h.api.catalogs.Load().statements.Statement(id)
	require.True(t, ok, id)
	return st
}

func (h *apiHarness) bound(t *testing.T, id string, args ...any) string {
	t.Helper()
	query, _, err := h.statement(t, id).Bind(args...)
	require.NoError(t, err)
	query, err = h.d.Rebind(query)
	require.NoError(t, err)
	return query
}

func bookColumns(st *compiler.Statement) (cols []string, byProperty map[string]string) {
	byProperty = make(map[string]string)
	for _, m := range st.ResultMap.Mappings {
		cols = append(cols, m.Column)
		byProperty[m.Property] = m.Column
	}
	return cols, byProperty
}

func bookRow(cols []string, byProperty map[string]string, id int64, title, author string) []driver.Value {
	values := map[string]driver.Value{
		byProperty["id"]:     id,
		byProperty["title"]:  title,
		byProperty["author"]: author,
	}
	out := make([]driver.Value, len(cols))
	for i, c := range cols {
		out[i] = values[c]
	}
	return out
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error.Code
}

func TestListStatements(t *testing.T) {
	h := newAPIHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/statements", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Statements []statementSummary `json:"statements"`
	}
	decodeBody(t, rec, &body)
	ids := make(map[string]statementSummary)
	for _, s := range body.Statements {
		ids[s.ID] = s
	}
	require.Contains(t, ids, "BookMapper.findByAuthor")
	require.Contains(t, ids, "BookMapper.deleteById")
	assert.Equal(t, "BookMapper", ids["BookMapper.findByAuthor"].Namespace)
	assert.Equal(t, "Book", ids["BookMapper.findByAuthor"].Entity)
	assert.True(t, ids["BookMapper.findByAuthor"].Pageable)
	assert.False(t, ids["BookMapper.deleteById"].Pageable)
}

func TestGetStatement(t *testing.T) {
	h := newAPIHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/statements/BookMapper.findByAuthor", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail statementDetail
	decodeBody(t, rec, &detail)
	require.Len(t, detail.Params, 1)
	assert.Equal(t, "author", detail.Params[0].Name)
	assert.Equal(t, "value", detail.Params[0].Kind)
	assert.Contains(t, detail.Template, "t_book")
	assert.Contains(t, detail.Script, "<script>")

	rec = h.do(t, http.MethodGet, "/statements/BookMapper.nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestGetMapper(t *testing.T) {
	h := newAPIHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/mappers/BookMapper", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `<mapper namespace="BookMapper">`)
	assert.Contains(t, rec.Body.String(), `id="findByAuthor"`)

	rec = h.do(t, http.MethodGet, "/mappers/AuthorMapper", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaginate(t *testing.T) {
	h := newAPIHarness(t, nil)

	t.Run("raw sql", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/paginate", map[string]any{
			"sql": "SELECT id, title FROM t_book ORDER BY id", "offset": 20, "limit": 10,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res paginateResponse
		decodeBody(t, rec, &res)
		assert.Equal(t, "custom", res.Path)
		assert.Contains(t, res.PageSQL, "LIMIT 10 OFFSET 20")
		assert.Contains(t, strings.ToUpper(res.CountSQL), "COUNT(")
	})

	t.Run("compiled statement", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/paginate", map[string]any{
			"statement": "BookMapper.findByAuthor", "args": []any{"Le Guin"}, "limit": 5,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res paginateResponse
		decodeBody(t, rec, &res)
		assert.Equal(t, "direct", res.Path)
		assert.Contains(t, res.PageSQL, "LIMIT 5")
		assert.Equal(t, []any{"Le Guin"}, res.Args)
	})

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"neither", map[string]any{"limit": 5}, http.StatusBadRequest},
		{"both", map[string]any{"sql": "SELECT 1", "statement": "BookMapper.findByAuthor", "limit": 5}, http.StatusBadRequest},
		{"unknown statement", map[string]any{"statement": "BookMapper.nope", "limit": 5}, http.StatusNotFound},
		{"write statement", map[string]any{"statement": "BookMapper.deleteById", "args": []any{1}, "limit": 5}, http.StatusBadRequest},
		{"zero limit", map[string]any{"sql": "SELECT id FROM t_book", "limit": 0}, http.StatusBadRequest},
		{"argument count", map[string]any{"statement": "BookMapper.findByAuthor", "limit": 5}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/paginate", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestPaginate_InvalidBody(t *testing.T) {
	h := newAPIHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/paginate", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))
}

func TestQuery_Disabled(t *testing.T) {
	h := newAPIHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/statements/BookMapper.findByAuthor/query", map[string]any{"args": []any{"x"}}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery_Select(t *testing.T) {
	h := newAPIHarness(t, func(cfg *config.Config) {
		cfg.Server.QueryEnabled = true
		cfg.Server.MaxRows = 1
	})
	st := h.statement(t, "BookMapper.findByAuthor")
	cols, byProperty := bookColumns(st)
	h.mock.ExpectQuery(h.bound(t, st.ID, "Le Guin")).
		WithArgs("Le Guin").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(bookRow(cols, byProperty, 1, "The Dispossessed", "Le Guin")...).
			AddRow(bookRow(cols, byProperty, 2, "The Lathe of Heaven", "Le Guin")...))

	rec := h.do(t, http.MethodPost, "/statements/BookMapper.findByAuthor/query", map[string]any{"args": []any{"Le Guin"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Rows      []map[string]any `json:"rows"`
		Truncated bool             `json:"truncated"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Rows, 1)
	assert.True(t, body.Truncated)
	assert.Equal(t, float64(1), body.Rows[0]["id"])
	assert.Equal(t, "The Dispossessed", body.Rows[0]["title"])
}

func TestQuery_Page(t *testing.T) {
	h := newAPIHarness(t, func(cfg *config.Config) { cfg.Server.QueryEnabled = true })
	st := h.statement(t, "BookMapper.findByAuthor")
	cols, byProperty := bookColumns(st)

	res, _, err := h.api.catalogs.Load().session.Explain(st.ID, criteria.Page{Offset: 0, Limit: 1}, "Le Guin")
	require.NoError(t, err)
	h.mock.ExpectQuery(res.CountSQL).WithArgs("Le Guin").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(2)))
	h.mock.ExpectQuery(res.PageSQL).WithArgs("Le Guin").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(bookRow(cols, byProperty, 1, "The Dispossessed", "Le Guin")...))

	rec := h.do(t, http.MethodPost, "/statements/BookMapper.findByAuthor/query",
		map[string]any{"args": []any{"Le Guin"}, "limit": 1}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page dbexec.Page
	decodeBody(t, rec, &page)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, int64(1), page.Limit)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "Le Guin", page.Rows[0]["author"])
}

func TestQuery_Exec(t *testing.T) {
	h := newAPIHarness(t, func(cfg *config.Config) { cfg.Server.QueryEnabled = true })
	h.mock.ExpectExec(h.bound(t, "BookMapper.deleteById", int64(3))).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := h.do(t, http.MethodPost, "/statements/BookMapper.deleteById/query", map[string]any{"args": []any{3}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out execResponse
	decodeBody(t, rec, &out)
	assert.Equal(t, int64(1), out.RowsAffected)
	assert.Nil(t, out.LastInsertID)
}

func TestQuery_Errors(t *testing.T) {
	h := newAPIHarness(t, func(cfg *config.Config) { cfg.Server.QueryEnabled = true })

	rec := h.do(t, http.MethodPost, "/statements/BookMapper.nope/query", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/statements/BookMapper.findByAuthor/query", map[string]any{"args": []any{}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.mock.ExpectQuery(h.bound(t, "BookMapper.findByAuthor", "x")).WithArgs("x").WillReturnError(sql.ErrConnDone)
	rec = h.do(t, http.MethodPost, "/statements/BookMapper.findByAuthor/query", map[string]any{"args": []any{"x"}}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "STATEMENT_FAILED", errorCode(t, rec))
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t, nil)

	h.mock.ExpectPing()
	rec := h.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mysql", body["dialect"])

	h.mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	rec = h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminReload(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		rec := h.do(t, http.MethodPost, "/admin/reload", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		h := newAPIHarness(t, func(cfg *config.Config) {
			cfg.Server.AdminEndpointsEnabled = true
			cfg.Server.AdminAuthToken = "s3cret"
		})
		before := h.api.catalogs.Load()

		rec := h.do(t, http.MethodPost, "/admin/reload", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		token := http.Header{"X-Admin-Token": []string{"s3cret"}}
		rec = h.do(t, http.MethodPost, "/admin/reload", nil, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body map[string]any
		decodeBody(t, rec, &body)
		assert.Equal(t, float64(before.statements.Len()), body["statements"])
		assert.NotSame(t, before, h.api.catalogs.Load())
	})
}

func TestCatalogStore_ReloadFailureKeepsCurrent(t *testing.T) {
	h := newAPIHarness(t, nil)
	before := h.api.catalogs.Load()

	h.cfg.Mapping.Files = []string{"testdata/broken.yaml"}
	_, err := h.api.catalogs.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload failed")
	assert.Same(t, before, h.api.catalogs.Load())

	h.cfg.Mapping.Files = []string{"testdata/catalog.yaml"}
	after, err := h.api.catalogs.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, after, h.api.catalogs.Load())
}

func TestCatalogStore_DrainStopsReload(t *testing.T) {
	h := newAPIHarness(t, nil)
	served := h.api.catalogs.Load()

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, drainCatalog(h.api.catalogs, logger)(context.Background()))
	assert.Contains(t, buf.String(), "mapper catalog drained")
	assert.Contains(t, buf.String(), `"statements":`)

	_, err := h.api.catalogs.Reload(context.Background())
	require.ErrorIs(t, err, errCatalogClosed)
	assert.Same(t, served, h.api.catalogs.Load())

	rec := h.do(t, http.MethodGet, "/statements", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"integer", json.Number("42"), int64(42)},
		{"float", json.Number("1.5"), 1.5},
		{"string", "x", "x"},
		{"nil", nil, nil},
		{"object", map[string]any{"id": json.Number("7")}, map[string]any{"id": int64(7)}},
		{"array", []any{json.Number("1"), "a"}, []any{int64(1), "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeJSON(tt.in))
		})
	}
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := map[string]string{
		"/statements":                           "/statements",
		"/statements/BookMapper.findById":       "/statements/{id}",
		"/statements/BookMapper.findById/query": "/statements/{id}/query",
		"/mappers/BookMapper":                   "/mappers/{namespace}",
		"/health":                               "/health",
		"/admin/reload":                         "/admin/reload",
		"/something/else/entirely":              "/*",
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, normalizeHTTPSpanRoute(path))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/statements/BookMapper.findById/query", nil)
	assert.Equal(t, "POST /statements/{id}/query", httpRootSpanName(req))
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestResolveDialect(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		query  string
		banner string
		want   string
	}{
		{"postgres banner", config.DriverPostgres, "SELECT version()", "PostgreSQL 16.2 on x86_64-pc-linux-gnu", dialect.Postgres},
		{"tidb banner", config.DriverMySQL, "SELECT VERSION()", "8.0.11-TiDB-v7.5.0", dialect.TiDB},
		{"plain mysql version", config.DriverMySQL, "SELECT VERSION()", "8.0.36", dialect.MySQL},
		{"sqlite", config.DriverSQLite, "SELECT 'SQLite ' || sqlite_version()", "SQLite 3.45.1", dialect.SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
			require.NoError(t, err)
			defer db.Close()
			mock.ExpectQuery(tt.query).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(tt.banner))

			cfg := &config.Config{}
			cfg.Database.Driver = tt.driver
			cfg.Dialect.AutoDetect = true
			d, err := resolveDialect(context.Background(), cfg, testLogger(), db)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestResolveDialect_Configured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverMySQL
	cfg.Dialect.Name = dialect.MariaDB
	d, err := resolveDialect(context.Background(), cfg, testLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, dialect.MariaDB, d.Name())
}

func TestDumpMappers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DumpMappers(context.Background(), testConfig(), testLogger(), &buf))
	assert.Contains(t, buf.String(), `<mapper namespace="BookMapper">`)
	assert.Contains(t, buf.String(), "t_book")
}
