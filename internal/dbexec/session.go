package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sqlmapper/internal/compiler"
	"sqlmapper/internal/criteria"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/keygen"
	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/pagination"
	"sqlmapper/internal/sqlfrag"
)

var (
	// ErrUnknownStatement reports a statement id that was never compiled.
	ErrUnknownStatement = errors.New("unknown statement")
	// ErrWrongCommand reports Exec on a select or Query on a write.
	ErrWrongCommand = errors.New("wrong command for call")
)

// Observer receives one record per executed statement.
type Observer interface {
	RecordStatement(ctx context.Context, statementID, command string, duration time.Duration, rows int64, err error)
}

// SessionConfig configures a Session. Statements, Executor and Dialect are
// required.
type SessionConfig struct {
	Executor   QueryExecutor
	Statements *compiler.Registry
	Dialect    dialect.Dialect
	Keys       *keygen.Registry
	Rewriter   *pagination.Rewriter
	Logger     *slog.Logger
	Observer   Observer
}

// Session executes compiled statements. It is safe for concurrent use.
type Session struct {
	executor   QueryExecutor
	statements *compiler.Registry
	dialect    dialect.Dialect
	keys       *keygen.Registry
	rewriter   *pagination.Rewriter
	logger     *slog.Logger
	observer   Observer
	tracer     trace.Tracer
}

// NewSession creates a session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Keys == nil {
		cfg.Keys = keygen.NewRegistry(cfg.Logger)
	}
	if cfg.Rewriter == nil {
		cfg.Rewriter = pagination.NewRewriter(cfg.Dialect, pagination.WithLogger(cfg.Logger))
	}
	return &Session{
		executor:   cfg.Executor,
		statements: cfg.Statements,
		dialect:    cfg.Dialect,
		keys:       cfg.Keys,
		rewriter:   cfg.Rewriter,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		tracer:     otel.Tracer("sqlmapper/dbexec"),
	}
}

// Page is one page of rows with the total row count of the unpaged query.
type Page struct {
	Rows   []map[string]any `json:"rows"`
	Total  int64            `json:"total"`
	Offset int64            `json:"offset"`
	Limit  int64            `json:"limit"`
}

func (s *Session) statement(id string) (*compiler.Statement, error) {
	st, ok := s.statements.Statement(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatement, id)
	}
	return st, nil
}

// Exec runs an insert, update or delete. Entity arguments, and the items of
// list arguments, must be map[string]any values or struct pointers so that
// generated keys and code trigger values can be stored in them.
func (s *Session) Exec(ctx context.Context, id string, args ...any) (res sql.Result, err error) {
	st, err := s.statement(id)
	if err != nil {
		return nil, err
	}
	if st.Command == compiler.Select {
		return nil, fmt.Errorf("%w: %s is a select", ErrWrongCommand, id)
	}
	ctx, done := s.begin(ctx, st)
	var affected int64
	defer func() { done(affected, err) }()

	if err := s.prepare(ctx, st, args); err != nil {
		return nil, err
	}
	query, binds, err := st.Bind(args...)
	if err != nil {
		return nil, err
	}
	b, err := bindFor(s.dialect, st, query, binds)
	if err != nil {
		return nil, err
	}
	if res, err = b.exec(ctx, s.executor, s.logger); err != nil {
		return nil, err
	}
	affected, _ = res.RowsAffected()
	if st.KeyGeneration == compiler.KeyJDBC3 {
		if target, ok := entityArgument(st, args); ok {
			s.storeInsertID(st, res, target)
		}
	}
	return res, nil
}

// prepare fills generated keys and code trigger values before binding.
func (s *Session) prepare(ctx context.Context, st *compiler.Statement, args []any) error {
	var event metadata.TriggerEvent
	switch st.Command {
	case compiler.Insert:
		event = metadata.TriggerInsert
	case compiler.Update:
		event = metadata.TriggerUpdate
	default:
		return nil
	}
	for i, p := range st.Method.Params {
		if i >= len(args) {
			break
		}
		switch p.Kind {
		case mapper.ParamEntity:
			if st.KeyGeneration == compiler.KeySelect && st.SelectKey != nil {
				if err := s.selectKey(ctx, st, args[i]); err != nil {
					return err
				}
			}
			if err := s.keys.Populate(event, st.Entity, args[i]); err != nil {
				return fmt.Errorf("%s: %w", st.ID, err)
			}
		case mapper.ParamList:
			if st.Command != compiler.Insert && st.Command != compiler.Update {
				continue
			}
			items := reflect.ValueOf(args[i])
			if items.Kind() != reflect.Slice && items.Kind() != reflect.Array {
				continue
			}
			for j := 0; j < items.Len(); j++ {
				if err := s.keys.Populate(event, st.Entity, items.Index(j).Interface()); err != nil {
					return fmt.Errorf("%s: item %d: %w", st.ID, j, err)
				}
			}
		}
	}
	return nil
}

// selectKey draws the next sequence value into an empty key property.
func (s *Session) selectKey(ctx context.Context, st *compiler.Statement, target any) error {
	if !emptyProperty(target, st.SelectKey.Property) {
		return nil
	}
	rows, err := s.executor.QueryContext(ctx, st.SelectKey.SQL)
	if err != nil {
		return fmt.Errorf("failed to select key for %s: %w", st.ID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to select key for %s: %w", st.ID, err)
		}
		return fmt.Errorf("failed to select key for %s: no rows", st.ID)
	}
	var key any
	if err := rows.Scan(&key); err != nil {
		return fmt.Errorf("failed to select key for %s: %w", st.ID, err)
	}
	return keygen.Assign(target, st.SelectKey.Property, normalize(key))
}

func (s *Session) storeInsertID(st *compiler.Statement, res sql.Result, target any) {
	if st.KeyProperty == "" || !emptyProperty(target, st.KeyProperty) {
		return
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return
	}
	if err := keygen.Assign(target, st.KeyProperty, id); err != nil {
		s.logger.Warn("failed to store generated key",
			slog.String("statement", st.ID),
			slog.String("property", st.KeyProperty),
			slog.String("error", err.Error()))
	}
}

// Query runs a select and maps its rows. Joined relations are nested under
// their property. A page argument of the method, or the statement's row
// limit, restricts the rows through the pagination rewriter.
func (s *Session) Query(ctx context.Context, id string, args ...any) (rows []map[string]any, err error) {
	st, err := s.statement(id)
	if err != nil {
		return nil, err
	}
	if st.Command != compiler.Select {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongCommand, id, st.Command)
	}
	ctx, done := s.begin(ctx, st)
	defer func() { done(int64(len(rows)), err) }()

	query, binds, err := st.Bind(args...)
	if err != nil {
		return nil, err
	}
	page, limited := pageArgument(st, args)
	if !limited && st.MaxResults > 0 {
		page, limited = criteria.Page{Limit: int64(st.MaxResults)}, true
	}
	if limited {
		res, err := s.rewriter.Rewrite(query, statementInfo(st), page)
		if err != nil {
			return nil, err
		}
		query = res.PageSQL
	}
	return s.fetch(ctx, st, query, binds)
}

// QueryPage runs a select for one page and counts the rows of the whole
// result. When the method declares a page parameter, page is passed as
// that argument and args must omit it.
func (s *Session) QueryPage(ctx context.Context, id string, page criteria.Page, args ...any) (out *Page, err error) {
	st, err := s.statement(id)
	if err != nil {
		return nil, err
	}
	if st.Command != compiler.Select {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongCommand, id, st.Command)
	}
	ctx, done := s.begin(ctx, st)
	defer func() {
		var n int64
		if out != nil {
			n = int64(len(out.Rows))
		}
		done(n, err)
	}()

	if st.Method.HasPage() {
		args = insertArgument(args, st.Method.PageIndex, page)
	}
	query, binds, err := st.Bind(args...)
	if err != nil {
		return nil, err
	}
	res, err := s.rewriter.Rewrite(query, statementInfo(st), page)
	if err != nil {
		return nil, err
	}

	total, err := s.count(ctx, st, res.CountSQL, binds)
	if err != nil {
		return nil, err
	}
	out = &Page{Rows: []map[string]any{}, Total: total, Offset: page.Offset, Limit: page.Limit}
	if total == 0 || page.Offset >= total {
		return out, nil
	}
	if out.Rows, err = s.fetch(ctx, st, res.PageSQL, binds); err != nil {
		return nil, err
	}
	return out, nil
}

// Explain binds a select and returns the count and page SQL QueryPage would
// run for page, rebound for the session dialect, without executing either.
func (s *Session) Explain(id string, page criteria.Page, args ...any) (pagination.Result, []any, error) {
	st, err := s.statement(id)
	if err != nil {
		return pagination.Result{}, nil, err
	}
	if st.Command != compiler.Select {
		return pagination.Result{}, nil, fmt.Errorf("%w: %s is a %s", ErrWrongCommand, id, st.Command)
	}
	if st.Method.HasPage() {
		args = insertArgument(args, st.Method.PageIndex, page)
	}
	query, binds, err := st.Bind(args...)
	if err != nil {
		return pagination.Result{}, nil, err
	}
	res, err := s.rewriter.Rewrite(query, statementInfo(st), page)
	if err != nil {
		return pagination.Result{}, nil, err
	}
	if res.CountSQL, err = s.dialect.Rebind(res.CountSQL); err != nil {
		return pagination.Result{}, nil, err
	}
	if res.PageSQL, err = s.dialect.Rebind(res.PageSQL); err != nil {
		return pagination.Result{}, nil, err
	}
	return res, binds, nil
}

func (s *Session) count(ctx context.Context, st *compiler.Statement, query string, binds []any) (int64, error) {
	b, err := bindFor(s.dialect, st, query, binds)
	if err != nil {
		return 0, err
	}
	rows, err := b.rows(ctx, s.executor, s.logger, "count")
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("failed to count %s: %w", st.ID, err)
		}
	}
	return total, rows.Err()
}

func (s *Session) fetch(ctx context.Context, st *compiler.Statement, query string, binds []any) ([]map[string]any, error) {
	b, err := bindFor(s.dialect, st, query, binds)
	if err != nil {
		return nil, err
	}
	rows, err := b.rows(ctx, s.executor, s.logger, "query")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	raw, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", st.ID, err)
	}
	return s.mapRows(st.ResultMap, raw), nil
}

// begin starts the span of one call and returns the function that ends it.
func (s *Session) begin(ctx context.Context, st *compiler.Statement) (context.Context, func(int64, error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "sqlmapper."+st.Command.String(), trace.WithAttributes(
		attribute.String("sqlmapper.statement", st.ID),
	))
	return ctx, func(rows int64, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int64("sqlmapper.rows", rows))
		span.End()
		if s.observer != nil {
			s.observer.RecordStatement(ctx, st.ID, st.Command.String(), time.Since(start), rows, err)
		}
	}
}

// statementInfo describes a compiled statement to the rewriter; nil marks
// SQL the rewriter must treat as hand-written.
func statementInfo(st *compiler.Statement) *pagination.StatementInfo {
	if !st.Pageable() {
		return nil
	}
	info := &pagination.StatementInfo{ID: st.ID, MainAlias: st.Alias}
	for _, c := range st.Entity.PrimaryColumns() {
		info.PrimaryKeys = append(info.PrimaryKeys, c.Name)
	}
	return info
}

func pageArgument(st *compiler.Statement, args []any) (criteria.Page, bool) {
	i := st.Method.PageIndex
	if i < 0 || i >= len(args) {
		return criteria.Page{}, false
	}
	switch p := args[i].(type) {
	case criteria.Page:
		return p, p.Limit > 0
	case *criteria.Page:
		if p != nil {
			return *p, p.Limit > 0
		}
	}
	return criteria.Page{}, false
}

func entityArgument(st *compiler.Statement, args []any) (any, bool) {
	for i, p := range st.Method.Params {
		if p.Kind == mapper.ParamEntity && i < len(args) {
			return args[i], true
		}
	}
	return nil, false
}

func insertArgument(args []any, at int, v any) []any {
	if at > len(args) {
		at = len(args)
	}
	out := make([]any, 0, len(args)+1)
	out = append(out, args[:at]...)
	out = append(out, v)
	return append(out, args[at:]...)
}

func emptyProperty(target any, property string) bool {
	v, ok := sqlfrag.Property(target, property)
	if !ok || sqlfrag.IsNil(v) {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
