// Package compiler turns mapper method definitions into executable
// statements: a dynamic SQL template, its result map and its key
// generation settings.
package compiler

import (
	"errors"
	"fmt"

	"sqlmapper/internal/criteria"
	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/sqlfrag"
)

var (
	// ErrArgumentCount reports a call with the wrong number of arguments.
	ErrArgumentCount = errors.New("wrong number of arguments")
	// ErrUnknownSortProperty reports a sort key that is neither a property
	// nor a column of the statement's entity.
	ErrUnknownSortProperty = errors.New("unknown sort property")
	// ErrEmptyCollection reports an empty list argument, which would render
	// an invalid IN list or VALUES clause.
	ErrEmptyCollection = errors.New("empty collection argument")
)

// Command is the SQL command a statement runs.
type Command int

const (
	Select Command = iota
	Insert
	Update
	Delete
)

func (c Command) String() string {
	switch c {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "select"
	}
}

// KeyGeneration selects how an insert reports its generated key.
type KeyGeneration int

const (
	KeyNone KeyGeneration = iota
	// KeyJDBC3 reads the key back from the driver after the insert.
	KeyJDBC3
	// KeyJDBC3NoCallback sets the key in code before the insert; the driver
	// is not asked for it.
	KeyJDBC3NoCallback
	// KeySelect fetches the key with SelectKey.SQL before the insert.
	KeySelect
)

func (k KeyGeneration) String() string {
	switch k {
	case KeyJDBC3:
		return "jdbc3"
	case KeyJDBC3NoCallback:
		return "jdbc3_no_callback"
	case KeySelect:
		return "select_key"
	default:
		return "none"
	}
}

// SelectKey fetches a key from a sequence before an insert.
type SelectKey struct {
	SQL      string
	Property string
	Column   string
	Type     string
}

// Statement is a compiled method.
type Statement struct {
	ID      string
	Command Command
	Method  *mapper.MethodDefinition
	Entity  *metadata.Entity
	Nodes   []sqlfrag.Node

	// ResultMap maps selected rows; nil for scalar and write statements.
	ResultMap *ResultMap
	// ResultType names a scalar result such as "int64" or "bool".
	ResultType string

	KeyGeneration KeyGeneration
	KeyProperty   string
	KeyColumn     string
	SelectKey     *SelectKey

	// Alias qualifies the entity's own columns; empty for unaliased
	// statements.
	Alias string
	Joins []*mapper.JoinStatement
	// MaxResults limits returned rows; zero means unlimited.
	MaxResults int
	// Custom marks hand-written SQL.
	Custom bool

	values criteria.ValueFunc
}

// Namespace is the mapper namespace the statement belongs to.
func (s *Statement) Namespace() string {
	return s.Method.Namespace
}

// Script renders the template as a MyBatis script element.
func (s *Statement) Script() string {
	return sqlfrag.Script(s.Nodes)
}

// Template renders the template body as MyBatis markup.
func (s *Statement) Template() string {
	return sqlfrag.MyBatis(s.Nodes)
}

// Pageable reports whether the pagination rewriter may rewrite the
// statement's SQL.
func (s *Statement) Pageable() bool {
	return s.Command == Select && !s.Custom && s.ResultType == ""
}

// Bind evaluates the template with one argument per declared parameter
// and returns SQL with '?' placeholders.
func (s *Statement) Bind(args ...any) (string, []any, error) {
	env, err := s.arguments(args)
	if err != nil {
		return "", nil, err
	}
	sql, bound, err := sqlfrag.Bind(s.Nodes, env)
	if err != nil {
		return "", nil, fmt.Errorf("failed to bind %s: %w", s.ID, err)
	}
	return sql, bound, nil
}

func (s *Statement) relationAlias(rel *metadata.Relation) (string, bool) {
	for _, j := range s.Joins {
		if j.Relation == rel {
			return j.Alias(), true
		}
	}
	return "", false
}

func (s *Statement) aliases() criteria.Aliases {
	return criteria.Aliases{Main: s.Alias, Relation: s.relationAlias}
}

func (s *Statement) qualify(column string) string {
	if s.Alias == "" {
		return column
	}
	return s.Alias + "." + column
}
