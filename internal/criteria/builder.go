// Package criteria builds query specifications programmatically: where
// conditions, ordering and update assignments validated against entity
// metadata as they are added.
package criteria

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
	"sqlmapper/internal/parttree"
)

// ErrRelationUpdate is returned when an update specification references a
// property reached through a relation.
var ErrRelationUpdate = errors.New("update specification cannot reference a relation property")

// Conj joins a term to the one before it.
type Conj int

const (
	And Conj = iota
	Or
)

func (c Conj) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// Condition compares one property with literal values.
type Condition struct {
	Path   parttree.PropertyPath
	Op     Operator
	Values []any
}

// Term is a condition or a nested group, joined to the previous term by Conj.
type Term struct {
	Conj      Conj
	Condition *Condition
	Group     *Group
}

// Group is an ordered list of terms rendered left to right.
type Group struct {
	Terms []Term
}

// orderTerm sorts by one property.
type orderTerm struct {
	Path      parttree.PropertyPath
	Direction string
}

// Assignment sets one column in an update specification.
type Assignment struct {
	Column *metadata.Column
	Value  any
}

// Builder accumulates a specification. The first invalid call records an
// error that Build returns; later calls are ignored. A Builder is not safe
// for concurrent use.
type Builder struct {
	entity *metadata.Entity
	conj   Conj
	group  *Group
	orders []orderTerm
	sets   []Assignment
	err    error
}

// New starts a specification over entity.
func New(entity *metadata.Entity) *Builder {
	return &Builder{entity: entity, group: &Group{}}
}

// And joins the following conditions with AND.
func (b *Builder) And() *Builder {
	b.conj = And
	return b
}

// Or joins the following conditions with OR.
func (b *Builder) Or() *Builder {
	b.conj = Or
	return b
}

func (b *Builder) Equal(property string, value any) *Builder {
	return b.add(property, Equal, value)
}

func (b *Builder) NotEqual(property string, value any) *Builder {
	return b.add(property, NotEqual, value)
}

func (b *Builder) GreaterThan(property string, value any) *Builder {
	return b.add(property, GreaterThan, value)
}

func (b *Builder) GreaterThanEqual(property string, value any) *Builder {
	return b.add(property, GreaterThanEqual, value)
}

func (b *Builder) LessThan(property string, value any) *Builder {
	return b.add(property, LessThan, value)
}

func (b *Builder) LessThanEqual(property string, value any) *Builder {
	return b.add(property, LessThanEqual, value)
}

// Like matches values starting with value.
func (b *Builder) Like(property string, value any) *Builder {
	return b.add(property, Like, value)
}

func (b *Builder) NotLike(property string, value any) *Builder {
	return b.add(property, NotLike, value)
}

func (b *Builder) StartsWith(property string, value any) *Builder {
	return b.add(property, StartsWith, value)
}

func (b *Builder) EndsWith(property string, value any) *Builder {
	return b.add(property, EndsWith, value)
}

func (b *Builder) Contains(property string, value any) *Builder {
	return b.add(property, Contains, value)
}

// FreeLike binds pattern without adding wildcards.
func (b *Builder) FreeLike(property string, pattern string) *Builder {
	return b.add(property, FreeLike, pattern)
}

// In matches any of values. A single slice argument, as in In("id", ids),
// is expanded into its elements.
func (b *Builder) In(property string, values ...any) *Builder {
	return b.add(property, In, spread(values)...)
}

func (b *Builder) NotIn(property string, values ...any) *Builder {
	return b.add(property, NotIn, spread(values)...)
}

// spread expands a lone slice or array argument. Byte slices stay scalar.
func spread(values []any) []any {
	if len(values) != 1 {
		return values
	}
	if _, ok := values[0].([]byte); ok {
		return values
	}
	rv := reflect.ValueOf(values[0])
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return values
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func (b *Builder) Between(property string, from, to any) *Builder {
	return b.add(property, Between, from, to)
}

func (b *Builder) IsNull(property string) *Builder {
	return b.add(property, IsNull)
}

func (b *Builder) IsNotNull(property string) *Builder {
	return b.add(property, IsNotNull)
}

// If applies fn only when cond is true.
func (b *Builder) If(cond bool, fn func(*Builder)) *Builder {
	if cond && b.err == nil {
		fn(b)
	}
	return b
}

// Nested adds the conditions fn builds as one parenthesized group.
func (b *Builder) Nested(fn func(*Builder)) *Builder {
	if b.err != nil {
		return b
	}
	inner := New(b.entity)
	fn(inner)
	if inner.err != nil {
		b.err = inner.err
		return b
	}
	if len(inner.group.Terms) > 0 {
		b.group.Terms = append(b.group.Terms, Term{Conj: b.conj, Group: inner.group})
	}
	return b
}

// Asc orders by properties ascending.
func (b *Builder) Asc(properties ...string) *Builder {
	return b.order("ASC", properties)
}

// Desc orders by properties descending.
func (b *Builder) Desc(properties ...string) *Builder {
	return b.order("DESC", properties)
}

// Set assigns value to property in an update. A value of the form
// "@{property}" takes the named column's trigger value at render time.
func (b *Builder) Set(property string, value any) *Builder {
	if b.err != nil {
		return b
	}
	c, ok := b.entity.Column(property)
	switch {
	case ok && c.IsRelation(), !ok && (strings.Contains(property, ".") || b.isRelationPath(property)):
		b.err = fmt.Errorf("failed to set %s: %w", property, ErrRelationUpdate)
		return b
	case !ok:
		b.err = b.notFound(property)
		return b
	}
	b.sets = append(b.sets, Assignment{Column: c, Value: value})
	return b
}

func (b *Builder) isRelationPath(property string) bool {
	p, err := b.resolve(property)
	return err == nil && p.Relation != nil
}

func (b *Builder) add(property string, op Operator, values ...any) *Builder {
	if b.err != nil {
		return b
	}
	path, err := b.resolve(property)
	if err != nil {
		b.err = err
		return b
	}
	b.group.Terms = append(b.group.Terms, Term{Conj: b.conj, Condition: &Condition{Path: path, Op: op, Values: values}})
	return b
}

func (b *Builder) order(direction string, properties []string) *Builder {
	for _, property := range properties {
		if b.err != nil {
			return b
		}
		path, err := b.resolve(property)
		if err != nil {
			b.err = err
			return b
		}
		b.orders = append(b.orders, orderTerm{Path: path, Direction: direction})
	}
	return b
}

// resolve accepts "deptNo", "roles.roleName" or "rolesRoleName".
func (b *Builder) resolve(property string) (parttree.PropertyPath, error) {
	head, rest, dotted := strings.Cut(property, ".")
	if !dotted {
		return parttree.ResolvePath(b.entity, naming.UpperFirst(property), "")
	}
	rel, ok := b.entity.Relation(head)
	if !ok || rel.Target == nil {
		return parttree.PropertyPath{}, b.notFound(property)
	}
	c, ok := rel.Target.ScalarColumn(rest)
	if !ok {
		return parttree.PropertyPath{}, b.notFound(property)
	}
	return parttree.PropertyPath{Source: property, Relation: rel, Entity: rel.Target, Column: c}, nil
}

func (b *Builder) notFound(property string) error {
	return &metadata.ConfigError{
		Kind:     metadata.PropertyNotFound,
		Entity:   b.entity.Name,
		Property: property,
		Message:  fmt.Sprintf("no property %q on %s", property, b.entity.Name),
	}
}

// Build returns the immutable specification. Build may be called
// repeatedly; each result is independent of later builder calls.
func (b *Builder) Build() (*Specification, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Specification{
		entity: b.entity,
		where:  b.group.clone(),
		orders: append([]orderTerm(nil), b.orders...),
		sets:   append([]Assignment(nil), b.sets...),
	}, nil
}

func (g *Group) clone() *Group {
	out := &Group{Terms: make([]Term, len(g.Terms))}
	for i, t := range g.Terms {
		out.Terms[i] = Term{Conj: t.Conj}
		if t.Condition != nil {
			c := *t.Condition
			c.Values = append([]any(nil), t.Condition.Values...)
			out.Terms[i].Condition = &c
		}
		if t.Group != nil {
			out.Terms[i].Group = t.Group.clone()
		}
	}
	return out
}
