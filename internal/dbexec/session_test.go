package dbexec_test

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/criteria"
	"sqlmapper/internal/dbexec"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/keygen"
	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
	"sqlmapper/internal/pagination"
	"sqlmapper/internal/testfixture"
)

type harness struct {
	session *dbexec.Session
	reg     *compiler.Registry
	mock    sqlmock.Sqlmock
	dialect dialect.Dialect
}

func newHarness(t *testing.T, mappers *mapper.Registry, name string) *harness {
	t.Helper()
	d, err := dialect.Lookup(name)
	require.NoError(t, err)
	keys := keygen.NewRegistry(nil)
	reg, err := compiler.New(mappers, d, nil, compiler.WithValues(keys.Value)).CompileAll()
	require.NoError(t, err)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	session := dbexec.NewSession(dbexec.SessionConfig{
		Executor:   dbexec.NewStandardExecutor(db),
		Statements: reg,
		Dialect:    d,
		Keys:       keys,
	})
	return &harness{session: session, reg: reg, mock: mock, dialect: d}
}

func (h *harness) statement(t *testing.T, id string) *compiler.Statement {
	t.Helper()
	st, ok := h.reg.Statement(id)
	require.True(t, ok, id)
	return st
}

func (h *harness) bound(t *testing.T, id string, args ...any) string {
	t.Helper()
	sql, _, err := h.statement(t, id).Bind(args...)
	require.NoError(t, err)
	sql, err = h.dialect.Rebind(sql)
	require.NoError(t, err)
	return sql
}

// columns lists the columns a result map reads, nested maps included.
func (h *harness) columns(t *testing.T, rm *compiler.ResultMap) []string {
	t.Helper()
	var out []string
	for _, m := range rm.Mappings {
		if !m.Nested() {
			out = append(out, m.Column)
			continue
		}
		nested, ok := h.reg.ResultMap(m.NestedResultMap)
		require.True(t, ok, m.NestedResultMap)
		out = append(out, h.columns(t, nested)...)
	}
	return out
}

// row fills the given columns, leaving the others nil.
func row(cols []string, values map[string]any) []driver.Value {
	out := make([]driver.Value, len(cols))
	for i, c := range cols {
		out[i] = values[c]
	}
	return out
}

func column(t *testing.T, h *harness, rmID, property string) string {
	t.Helper()
	rm, ok := h.reg.ResultMap(rmID)
	require.True(t, ok, rmID)
	for _, m := range rm.Mappings {
		if m.Property == property {
			return m.Column
		}
	}
	t.Fatalf("%s has no mapping for %s", rmID, property)
	return ""
}

func TestQuery_NestsJoinedRows(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	st := h.statement(t, "UserMapper.findById")
	require.Len(t, st.Joins, 2)
	cols := h.columns(t, st.ResultMap)

	roleID := column(t, h, "RoleMapper.findJoinWithIdResultMap", "id")
	roleName := column(t, h, "RoleMapper.findJoinWithIdResultMap", "roleName")
	deptID := column(t, h, "DeptMapper.findWithDeptNoResultMap", "deptId")
	deptName := column(t, h, "DeptMapper.findWithDeptNoResultMap", "deptName")

	rows := sqlmock.NewRows(cols).
		AddRow(row(cols, map[string]any{"id": "u1", "name": "ann", roleID: "r1", roleName: "admin", deptID: "d", deptName: "ops"})...).
		AddRow(row(cols, map[string]any{"id": "u1", "name": "ann", roleID: "r2", roleName: "dev", deptID: "d", deptName: "ops"})...).
		AddRow(row(cols, map[string]any{"id": "u1", "name": "ann", roleID: "r2", roleName: "dev", deptID: "d", deptName: "ops"})...)
	h.mock.ExpectQuery(h.bound(t, st.ID, "u1")).WithArgs("u1").WillReturnRows(rows)

	got, err := h.session.Query(context.Background(), st.ID, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	user := got[0]
	assert.Equal(t, "ann", user["name"])

	roles, ok := user["roles"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, roles, 2)
	assert.Equal(t, "admin", roles[0]["roleName"])
	assert.Equal(t, "dev", roles[1]["roleName"])

	dept, ok := user["dept"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ops", dept["deptName"])
}

func TestQuery_OuterJoinWithoutMatch(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	st := h.statement(t, "UserMapper.findById")
	cols := h.columns(t, st.ResultMap)

	h.mock.ExpectQuery(h.bound(t, st.ID, "u2")).WithArgs("u2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(row(cols, map[string]any{"id": "u2", "name": []byte("bob")})...))

	got, err := h.session.Query(context.Background(), st.ID, "u2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0]["name"])
	assert.Nil(t, got[0]["dept"])
	assert.Empty(t, got[0]["roles"])
}

func TestQuery_ScalarResult(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	id := "UserMapper.countByNameAndDeptNo"
	h.mock.ExpectQuery(h.bound(t, id, "ann", "d1")).WithArgs("ann", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	got, err := h.session.Query(context.Background(), id, "ann", "d1")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"count": int64(3)}}, got)
}

func TestQuery_MaxResultsLimitsRows(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	st := h.statement(t, "UserMapper.findFirst2ByAgeGreaterThan")
	require.Equal(t, 2, st.MaxResults)

	sql, _, err := st.Bind(30)
	require.NoError(t, err)
	res, err := pagination.NewRewriter(h.dialect).Rewrite(sql,
		&pagination.StatementInfo{ID: st.ID, MainAlias: st.Alias, PrimaryKeys: []string{"id"}}, criteria.Page{Limit: 2})
	require.NoError(t, err)

	cols := h.columns(t, st.ResultMap)
	h.mock.ExpectQuery(res.PageSQL).WithArgs(30).WillReturnRows(sqlmock.NewRows(cols))

	got, err := h.session.Query(context.Background(), st.ID, 30)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryPage(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	st := h.statement(t, "UserMapper.findPageByDeptNo")
	page := criteria.PageRequest(1, 2)

	sql, _, err := st.Bind(page, "d1")
	require.NoError(t, err)
	res, err := pagination.NewRewriter(h.dialect).Rewrite(sql,
		&pagination.StatementInfo{ID: st.ID, MainAlias: st.Alias, PrimaryKeys: []string{"id"}}, page)
	require.NoError(t, err)

	cols := h.columns(t, st.ResultMap)
	h.mock.ExpectQuery(res.CountSQL).WithArgs("d1").WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(3))
	h.mock.ExpectQuery(res.PageSQL).WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(row(cols, map[string]any{"id": "u3", "deptNo": "d1"})...))

	got, err := h.session.QueryPage(context.Background(), st.ID, page, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Total)
	assert.Equal(t, int64(2), got.Offset)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "u3", got.Rows[0]["id"])
}

func TestQueryPage_SkipsPageWhenPastTheEnd(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	id := "UserMapper.findNames"
	bound := strings.TrimSpace(h.bound(t, id, "d1"))

	h.mock.ExpectQuery("SELECT COUNT(*) FROM ( " + bound + " ) TOTAL").WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(4))

	got, err := h.session.QueryPage(context.Background(), id, criteria.PageRequest(2, 2), "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Total)
	assert.Empty(t, got.Rows)
}

func TestExec_GeneratesKeysAndTriggers(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)

	dept := map[string]any{"deptNo": "d1", "deptName": "ops"}
	h.mock.ExpectExec(h.bound(t, "DeptMapper.insert", map[string]any{"deptId": "x", "deptNo": "d1", "deptName": "ops"})).
		WithArgs(sqlmock.AnyArg(), "d1", "ops").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := h.session.Exec(context.Background(), "DeptMapper.insert", dept)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), dept["deptId"])

	user := map[string]any{"name": "ann"}
	h.mock.ExpectExec(h.bound(t, "UserMapper.insertSelective", map[string]any{"name": "ann", "createTime": 1})).
		WithArgs("ann", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = h.session.Exec(context.Background(), "UserMapper.insertSelective", user)
	require.NoError(t, err)
	assert.NotNil(t, user["createTime"])
}

func keyed(t *testing.T, id metadata.FieldDescriptor) *mapper.Registry {
	t.Helper()
	meta := metadata.NewRegistry(naming.Default(), nil)
	_, err := meta.Register(metadata.EntityDescriptor{
		Name:   "Invoice",
		Table:  "t_invoice",
		Fields: []metadata.FieldDescriptor{id, {Name: "total", Type: "int"}},
	})
	require.NoError(t, err)
	require.NoError(t, meta.Resolve())
	mappers := mapper.NewRegistry(meta, naming.Default(), nil)
	_, err = mappers.Declare(mapper.Declaration{Namespace: "InvoiceMapper", Entity: "Invoice"})
	require.NoError(t, err)
	require.NoError(t, mappers.Expand())
	return mappers
}

func TestExec_StoresInsertID(t *testing.T) {
	h := newHarness(t, keyed(t, metadata.FieldDescriptor{Name: "id", Type: "int64", ID: true,
		Generation: metadata.GenerationIdentity}), dialect.MySQL)

	invoice := map[string]any{"total": 10}
	h.mock.ExpectExec(h.bound(t, "InvoiceMapper.insert", invoice)).WithArgs(10).
		WillReturnResult(sqlmock.NewResult(42, 1))

	_, err := h.session.Exec(context.Background(), "InvoiceMapper.insert", invoice)
	require.NoError(t, err)
	assert.Equal(t, int64(42), invoice["id"])
}

func TestExec_SelectsSequenceKey(t *testing.T) {
	h := newHarness(t, keyed(t, metadata.FieldDescriptor{Name: "id", Type: "int64", ID: true,
		Generation: metadata.GenerationSequence, Sequence: "seq_invoice"}), dialect.Postgres)

	invoice := map[string]any{"total": 10}
	h.mock.ExpectQuery("SELECT nextval('seq_invoice')").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	h.mock.ExpectExec(h.bound(t, "InvoiceMapper.insert", map[string]any{"id": int64(7), "total": 10})).
		WithArgs(int64(7), 10).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := h.session.Exec(context.Background(), "InvoiceMapper.insert", invoice)
	require.NoError(t, err)
	assert.Equal(t, int64(7), invoice["id"])
}

type recorder struct {
	ids  []string
	rows []int64
	errs []error
}

func (r *recorder) RecordStatement(_ context.Context, id, _ string, _ time.Duration, rows int64, err error) {
	r.ids = append(r.ids, id)
	r.rows = append(r.rows, rows)
	r.errs = append(r.errs, err)
}

func TestSession_Errors(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.MySQL)
	ctx := context.Background()

	_, err := h.session.Exec(ctx, "UserMapper.findByName", "ann")
	assert.ErrorIs(t, err, dbexec.ErrWrongCommand)

	_, err = h.session.Query(ctx, "UserMapper.deleteById", "u1")
	assert.ErrorIs(t, err, dbexec.ErrWrongCommand)

	_, err = h.session.Query(ctx, "UserMapper.missing")
	assert.ErrorIs(t, err, dbexec.ErrUnknownStatement)

	_, err = h.session.Query(ctx, "UserMapper.findByName")
	assert.ErrorIs(t, err, compiler.ErrArgumentCount)

	_, err = h.session.QueryPage(ctx, "UserMapper.findNames", criteria.Page{}, "d1")
	assert.ErrorIs(t, err, pagination.ErrInvalidPage)
}

func TestSession_ObservesStatements(t *testing.T) {
	d, err := dialect.Lookup(dialect.MySQL)
	require.NoError(t, err)
	reg, err := compiler.New(testfixture.Mappers(t), d, nil).CompileAll()
	require.NoError(t, err)
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	rec := &recorder{}
	session := dbexec.NewSession(dbexec.SessionConfig{
		Executor:   dbexec.NewStandardExecutor(db),
		Statements: reg,
		Dialect:    d,
		Observer:   rec,
	})
	st, _ := reg.Statement("UserMapper.deleteByNameAndDeptNo")
	sql, _, err := st.Bind("ann", "d1")
	require.NoError(t, err)
	mock.ExpectExec(sql).WithArgs("ann", "d1").WillReturnResult(sqlmock.NewResult(0, 2))

	_, err = session.Exec(context.Background(), st.ID, "ann", "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{st.ID}, rec.ids)
	assert.Equal(t, []int64{2}, rec.rows)
	assert.Equal(t, []error{nil}, rec.errs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExplain_RebindsWithoutExecuting(t *testing.T) {
	h := newHarness(t, testfixture.Mappers(t), dialect.Postgres)
	st := h.statement(t, "UserMapper.findPageByDeptNo")
	page := criteria.PageRequest(0, 5)

	sql, _, err := st.Bind(page, "d1")
	require.NoError(t, err)
	want, err := pagination.NewRewriter(h.dialect).Rewrite(sql,
		&pagination.StatementInfo{ID: st.ID, MainAlias: st.Alias, PrimaryKeys: []string{"id"}}, page)
	require.NoError(t, err)

	got, binds, err := h.session.Explain(st.ID, page, "d1")
	require.NoError(t, err)
	assert.Equal(t, []any{"d1"}, binds)
	assert.Equal(t, want.Path, got.Path)
	wantPage, err := h.dialect.Rebind(want.PageSQL)
	require.NoError(t, err)
	assert.Equal(t, wantPage, got.PageSQL)
	assert.Contains(t, got.CountSQL, "$1")
	assert.NotContains(t, got.CountSQL, "?")

	_, _, err = h.session.Explain("UserMapper.deleteById", page)
	assert.ErrorIs(t, err, dbexec.ErrWrongCommand)
}
