// Package pagination rewrites paginated SELECTs so that joins which
// multiply primary rows neither skew LIMIT/OFFSET nor the total count.
package pagination

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/singleflight"

	"sqlmapper/internal/criteria"
	"sqlmapper/internal/dialect"
)

// ErrInvalidPage reports a page with a negative offset or no limit.
var ErrInvalidPage = errors.New("invalid page")

// Path is the strategy a rewrite took.
type Path int

const (
	// PathCustom wraps a hand-written statement whole.
	PathCustom Path = iota
	// PathDirect appends the limit to a statement without joins.
	PathDirect
	// PathMainTable limits the primary table alone; joins only enrich the
	// select list.
	PathMainTable
	// PathJoined limits the primary rows matched through the joins WHERE
	// or ORDER BY reference.
	PathJoined
)

func (p Path) String() string {
	switch p {
	case PathCustom:
		return "custom"
	case PathDirect:
		return "direct"
	case PathMainTable:
		return "main_table"
	case PathJoined:
		return "joined"
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// StatementInfo identifies the compiled statement a SQL text was bound
// from. A nil *StatementInfo marks hand-written SQL.
type StatementInfo struct {
	ID          string
	MainAlias   string
	PrimaryKeys []string
}

// Result holds the count and page statements for one request.
type Result struct {
	CountSQL string
	PageSQL  string
	Path     Path
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithCacheSize bounds the parse cache.
func WithCacheSize(n int) Option {
	return func(r *Rewriter) {
		r.cacheSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers a callback run after every successful rewrite.
func WithObserver(fn func(Result)) Option {
	return func(r *Rewriter) {
		r.observe = fn
	}
}

// Rewriter produces count and page SQL. It is safe for concurrent use.
type Rewriter struct {
	dialect   dialect.Dialect
	cache     *Cache[*Select]
	cacheSize int
	group     singleflight.Group
	logger    *slog.Logger
	observe   func(Result)
}

// NewRewriter returns a rewriter emitting SQL for d.
func NewRewriter(d dialect.Dialect, opts ...Option) *Rewriter {
	r := &Rewriter{dialect: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = NewCache[*Select](r.cacheSize)
	return r
}

// CacheStats returns the parse cache counters.
func (r *Rewriter) CacheStats() CacheStats {
	return r.cache.Stats()
}

// Rewrite returns the count and page SQL for sql limited to page.
func (r *Rewriter) Rewrite(sql string, info *StatementInfo, page criteria.Page) (Result, error) {
	if page.Limit <= 0 || page.Offset < 0 {
		return Result{}, fmt.Errorf("%w: offset %d, limit %d", ErrInvalidPage, page.Offset, page.Limit)
	}
	sql = strings.TrimRight(strings.TrimSpace(sql), "; \t\n")

	var (
		res Result
		err error
		id  = "custom"
	)
	if info == nil {
		res, err = r.custom(sql, page)
	} else {
		id = info.ID
		res, err = r.compiled(sql, info, page)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to paginate %s: %w", id, err)
	}
	r.logger.Debug("rewrote paginated statement",
		slog.String("statement", id),
		slog.String("path", res.Path.String()),
		slog.Int64("offset", page.Offset),
		slog.Int64("limit", page.Limit))
	if r.observe != nil {
		r.observe(res)
	}
	return res, nil
}

func (r *Rewriter) custom(sql string, page criteria.Page) (Result, error) {
	count, _, err := sq.Select("COUNT(*)").From("( " + sql + " ) TOTAL").ToSql()
	if err != nil {
		return Result{}, err
	}
	return Result{CountSQL: count, PageSQL: r.dialect.PaginationSQL(sql, page.Offset, page.Limit), Path: PathCustom}, nil
}

func (r *Rewriter) compiled(sql string, info *StatementInfo, page criteria.Page) (Result, error) {
	sel, err := r.parse(sql)
	if err != nil {
		return Result{}, err
	}
	if sel.Limited {
		return Result{}, fmt.Errorf("%w: statement already limits its rows", ErrUnsupported)
	}
	if len(sel.Joins) == 0 {
		return r.direct(sql, sel, page)
	}

	refs := sel.WhereTables()
	for t := range sel.OrderTables() {
		refs[t] = struct{}{}
	}
	main := sel.ItemsOf(info.MainAlias)
	if len(main) == 0 {
		return Result{}, fmt.Errorf("%w: select list has no columns of %s", ErrUnsupported, info.MainAlias)
	}

	joins := sel.JoinsFor(refs)
	if len(joins) == 0 {
		return r.mainTable(sel, info, main, page)
	}
	return r.joined(sel, info, main, joins, page)
}

// parse returns the cached parse of sql. Concurrent misses on the same text
// share one parse.
func (r *Rewriter) parse(sql string) (*Select, error) {
	if sel, ok := r.cache.Get(sql); ok {
		return sel, nil
	}
	v, err, _ := r.group.Do(sql, func() (any, error) {
		sel, err := Parse(sql)
		if err != nil {
			return nil, err
		}
		r.cache.Put(sql, sel)
		return sel, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Select), nil
}

func (r *Rewriter) direct(sql string, sel *Select, page criteria.Page) (Result, error) {
	res := Result{PageSQL: r.dialect.PaginationSQL(sql, page.Offset, page.Limit), Path: PathDirect}
	var err error
	if sel.Distinct || len(sel.GroupBy) > 0 || sel.Having != nil {
		res.CountSQL, _, err = sq.Select("COUNT(*)").From("( " + sql + " ) TOTAL").ToSql()
	} else {
		res.CountSQL, _, err = base(sel, "COUNT(*)", nil).ToSql()
	}
	return res, err
}

func (r *Rewriter) mainTable(sel *Select, info *StatementInfo, main []SelectItem, page criteria.Page) (Result, error) {
	inner := base(sel, "", nil).Columns(itemTexts(main)...).OrderBy(orderTexts(sel)...)
	if sel.Distinct {
		inner = inner.Distinct()
	}
	innerSQL, _, err := inner.ToSql()
	if err != nil {
		return Result{}, err
	}
	pageSQL, err := r.outer(sel, info, innerSQL, page)
	if err != nil {
		return Result{}, err
	}
	count, _, err := base(sel, "COUNT(*)", nil).ToSql()
	if err != nil {
		return Result{}, err
	}
	return Result{CountSQL: count, PageSQL: pageSQL, Path: PathMainTable}, nil
}

func (r *Rewriter) joined(sel *Select, info *StatementInfo, main []SelectItem, joins []Join, page criteria.Page) (Result, error) {
	keys := keyColumns(info, main)
	inner := base(sel, "", joins).Columns(itemTexts(main)...).GroupBy(keys...).OrderBy(orderTexts(sel)...)
	innerSQL, _, err := inner.ToSql()
	if err != nil {
		return Result{}, err
	}
	pageSQL, err := r.outer(sel, info, innerSQL, page)
	if err != nil {
		return Result{}, err
	}
	count, err := r.countDistinct(sel, sel.JoinsFor(sel.WhereTables()), keys)
	if err != nil {
		return Result{}, err
	}
	return Result{CountSQL: count, PageSQL: pageSQL, Path: PathJoined}, nil
}

// outer limits the inner query and re-attaches the full select list and
// join set around it. WHERE and ORDER BY are already applied inside.
func (r *Rewriter) outer(sel *Select, info *StatementInfo, innerSQL string, page criteria.Page) (string, error) {
	paged := r.dialect.PaginationSQL(innerSQL, page.Offset, page.Limit)
	b := sq.Select(itemTexts(sel.Items)...).From("( " + paged + " ) " + info.MainAlias)
	if sel.Distinct {
		b = b.Distinct()
	}
	for _, j := range sel.Joins {
		b = b.JoinClause(j.Text)
	}
	out, _, err := b.ToSql()
	return out, err
}

// countDistinct counts primary rows through joins. Composite keys use the
// multi-column COUNT(DISTINCT) form where the database has one and a
// distinct sub-select elsewhere.
func (r *Rewriter) countDistinct(sel *Select, joins []Join, keys []string) (string, error) {
	cols := strings.Join(keys, ", ")
	switch {
	case len(keys) == 1:
		out, _, err := base(sel, "COUNT(DISTINCT "+cols+")", joins).ToSql()
		return out, err
	case r.dialect.Name() == dialect.MySQL || r.dialect.Name() == dialect.MariaDB || r.dialect.Name() == dialect.TiDB:
		out, _, err := base(sel, "COUNT(DISTINCT "+cols+")", joins).ToSql()
		return out, err
	case r.dialect.Name() == dialect.Postgres:
		out, _, err := base(sel, "COUNT(DISTINCT ("+cols+"))", joins).ToSql()
		return out, err
	}
	inner, _, err := base(sel, "", joins).Columns(keys...).Distinct().ToSql()
	if err != nil {
		return "", err
	}
	out, _, err := sq.Select("COUNT(*)").From("( " + inner + " ) TOTAL").ToSql()
	return out, err
}

// base selects column from the statement's FROM, the given joins and WHERE.
// An empty column leaves the select list to the caller.
func base(sel *Select, column string, joins []Join) sq.SelectBuilder {
	b := sq.Select().From(sel.From.Text)
	if column != "" {
		b = b.Columns(column)
	}
	for _, j := range joins {
		b = b.JoinClause(j.Text)
	}
	if sel.Where != nil {
		b = b.Where(sel.Where.Text)
	}
	return b
}

func keyColumns(info *StatementInfo, main []SelectItem) []string {
	var out []string
	if len(info.PrimaryKeys) > 0 {
		for _, k := range info.PrimaryKeys {
			out = append(out, info.MainAlias+"."+k)
		}
		return out
	}
	for _, it := range main {
		out = append(out, info.MainAlias+"."+it.Column)
	}
	return out
}

func itemTexts(items []SelectItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

func orderTexts(sel *Select) []string {
	out := make([]string, len(sel.OrderBy))
	for i, o := range sel.OrderBy {
		out[i] = o.Text
	}
	return out
}
