package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"sqlmapper/internal/criteria"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/sqlfrag"
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithValues sets the function code triggers of update specifications
// are evaluated with.
func WithValues(fn criteria.ValueFunc) Option {
	return func(c *Compiler) {
		c.values = fn
	}
}

// WithObserver registers a callback invoked for every compiled statement.
func WithObserver(fn func(*Statement)) Option {
	return func(c *Compiler) {
		c.observe = fn
	}
}

// Compiler compiles the methods of a mapper registry.
type Compiler struct {
	mappers *mapper.Registry
	dialect dialect.Dialect
	values  criteria.ValueFunc
	observe func(*Statement)
	logger  *slog.Logger
}

// New creates a compiler over expanded mapper definitions.
func New(mappers *mapper.Registry, d dialect.Dialect, logger *slog.Logger, opts ...Option) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compiler{mappers: mappers, dialect: d, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileAll compiles every method of every mapper and stops at the first
// error. Built-in methods that need a primary key are skipped, with a
// warning, for entities without one.
func (c *Compiler) CompileAll() (*Registry, error) {
	reg := newRegistry()
	for _, def := range c.mappers.Mappers() {
		for _, m := range def.Methods {
			st, err := c.Compile(m)
			if err != nil {
				if metadata.IsKind(err, metadata.MissingPrimaryKey) && needsKey(m.Kind) {
					c.logger.Warn("skipping built-in method of entity without primary key",
						slog.String("statement", m.StatementID()),
						slog.String("entity", m.Entity.Name))
					continue
				}
				return nil, err
			}
			reg.add(st)
		}
		if def.Implicit {
			continue
		}
		reg.addResultMap(baseResultMap(def.Namespace, def.Entity))
	}
	c.logger.Info("compiled statements",
		slog.Int("statements", len(reg.order)),
		slog.Int("mappers", len(c.mappers.Mappers())),
		slog.String("dialect", c.dialect.Name()))
	return reg, nil
}

// Compile compiles one method.
func (c *Compiler) Compile(m *mapper.MethodDefinition) (*Statement, error) {
	var (
		st  *Statement
		err error
	)
	if needsKey(m.Kind) && !m.Entity.HasPrimaryKey() {
		return nil, &metadata.ConfigError{Kind: metadata.MissingPrimaryKey, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: m.Kind.String() + " needs a primary key"}
	}

	switch m.Kind {
	case mapper.KindQuery:
		st, err = c.query(m, m.Name, nil)
	case mapper.KindFindByID:
		st, err = c.byID(m, "findBy")
	case mapper.KindExistsByID:
		st, err = c.byID(m, "existsBy")
	case mapper.KindDeleteByID:
		st, err = c.byID(m, "deleteBy")
	case mapper.KindInsert:
		st, err = c.insert(m)
	case mapper.KindInsertSelective:
		st, err = c.insertSelective(m)
	case mapper.KindInsertBatch:
		st, err = c.insertBatch(m)
	case mapper.KindUpdate:
		st, err = c.update(m)
	case mapper.KindUpdateSelective:
		st, err = c.updateSelective(m)
	case mapper.KindUpdateBatch:
		st, err = c.updateBatch(m)
	case mapper.KindDeleteBatch:
		st, err = c.deleteBatch(m)
	case mapper.KindFindAll, mapper.KindFindAllPage, mapper.KindFindAllPageSort:
		st, err = c.findAll(m)
	case mapper.KindFindAllByID:
		st, err = c.findAllByID(m)
	case mapper.KindFindSpecification:
		st, err = c.findSpecification(m)
	case mapper.KindCountSpecification:
		st, err = c.countSpecification(m)
	case mapper.KindUpdateSpecification:
		st, err = c.updateSpecification(m)
	case mapper.KindJoinFinder:
		st, err = c.joinFinder(m)
	case mapper.KindCustomSQL:
		st, err = c.custom(m)
	default:
		err = &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: fmt.Sprintf("unknown method kind %d", m.Kind)}
	}
	if err != nil {
		var cfgErr *metadata.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: err.Error()}
	}

	c.logger.Debug("compiled statement",
		slog.String("statement", st.ID),
		slog.String("kind", m.Kind.String()),
		slog.Int("joins", len(st.Joins)),
		slog.String("sql", sqlfrag.Compact(st.Template())))
	if c.observe != nil {
		c.observe(st)
	}
	return st, nil
}

func needsKey(kind mapper.MethodKind) bool {
	switch kind {
	case mapper.KindUpdate, mapper.KindUpdateSelective, mapper.KindUpdateBatch,
		mapper.KindDeleteByID, mapper.KindDeleteBatch,
		mapper.KindFindByID, mapper.KindExistsByID, mapper.KindFindAllByID:
		return true
	}
	return false
}

func (c *Compiler) statement(m *mapper.MethodDefinition, cmd Command) *Statement {
	return &Statement{
		ID:      m.StatementID(),
		Command: cmd,
		Method:  m,
		Entity:  m.Entity,
		Alias:   m.Entity.MainAlias(),
		Joins:   slices.Clone(m.Joins),
		values:  c.values,
	}
}

// attach adds the joins a predicate needs to the statement.
func (c *Compiler) attach(st *Statement, rels []*metadata.Relation) error {
	for _, rel := range rels {
		if _, ok := st.relationAlias(rel); ok {
			continue
		}
		j, ok := c.mappers.JoinFor(rel)
		if !ok {
			return &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: st.Entity.Name,
				Property: rel.Property, Statement: st.ID, Message: "relation has no join"}
		}
		st.Joins = append(st.Joins, j)
	}
	return nil
}

// selectFrom renders "SELECT cols FROM table alias LEFT JOIN ...".
func selectFrom(st *Statement, distinct bool) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(st.Entity.ColumnList(st.Alias))
	for _, j := range st.Joins {
		b.WriteString(", ")
		b.WriteString(j.ColumnList())
	}
	b.WriteString(" ")
	b.WriteString(from(st))
	return b.String()
}

func from(st *Statement) string {
	var b strings.Builder
	b.WriteString("FROM ")
	b.WriteString(st.Entity.Table)
	if st.Alias != "" {
		b.WriteString(" ")
		b.WriteString(st.Alias)
	}
	for _, j := range st.Joins {
		b.WriteString(" ")
		b.WriteString(j.LeftJoin(st.Alias))
	}
	return b.String()
}

// orderBy appends the static order and the runtime sort argument, if the
// method declares one.
func orderBy(m *mapper.MethodDefinition, static string) []sqlfrag.Node {
	var out []sqlfrag.Node
	open := " ORDER BY "
	if static != "" {
		out = append(out, sqlfrag.Text(" ORDER BY "+static))
		open = ", "
	}
	if !m.HasSort() {
		return out
	}
	name := m.Params[m.SortIndex].Name
	return append(out, sqlfrag.If{
		Conds: []sqlfrag.Cond{{Path: name, Op: sqlfrag.NotNull}},
		Body: []sqlfrag.Node{sqlfrag.ForEach{
			Collection: name + ".orders",
			Item:       "item",
			Open:       open,
			Separator:  ", ",
			Body: []sqlfrag.Node{
				sqlfrag.Raw{Path: "item.property"},
				sqlfrag.Text(" "),
				sqlfrag.Raw{Path: "item.direction"},
			},
		}},
	})
}

// distinctColumns returns the scalar columns with one column per name.
func distinctColumns(e *metadata.Entity) []*metadata.Column {
	seen := make(map[string]struct{})
	var out []*metadata.Column
	for _, col := range e.ScalarColumns() {
		if _, dup := seen[col.Name]; dup {
			continue
		}
		seen[col.Name] = struct{}{}
		out = append(out, col)
	}
	return out
}
