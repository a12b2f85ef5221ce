package criteria

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/parttree"
	"sqlmapper/internal/sqlfrag"
)

var triggerSentinel = regexp.MustCompile(`^@\{(\w+)\}$`)

// ValueFunc returns the current value of a named code trigger.
type ValueFunc func(name string) (any, error)

// Aliases qualifies columns when rendering. A zero Aliases renders bare
// column names and rejects relation properties.
type Aliases struct {
	Main     string
	Relation func(*metadata.Relation) (string, bool)
}

func (a Aliases) column(p parttree.PropertyPath) (string, error) {
	if p.Relation == nil {
		if a.Main == "" {
			return p.ColumnName(), nil
		}
		return a.Main + "." + p.ColumnName(), nil
	}
	if a.Relation != nil {
		if alias, ok := a.Relation(p.Relation); ok {
			return alias + "." + p.ColumnName(), nil
		}
	}
	return "", fmt.Errorf("relation %s is not joined in this statement", p.Relation.Property)
}

// Specification is an immutable where/order/set description built by a
// Builder.
type Specification struct {
	entity *metadata.Entity
	where  *Group
	orders []orderTerm
	sets   []Assignment
}

// Entity returns the entity the specification was built for.
func (s *Specification) Entity() *metadata.Entity {
	return s.entity
}

// HasWhere reports whether any condition was added.
func (s *Specification) HasWhere() bool {
	return len(s.where.Terms) > 0
}

// HasOrder reports whether any order was added.
func (s *Specification) HasOrder() bool {
	return len(s.orders) > 0
}

// Assignments returns the update assignments.
func (s *Specification) Assignments() []Assignment {
	return s.sets
}

// Relations returns the relations referenced by conditions and orders.
func (s *Specification) Relations() []*metadata.Relation {
	var out []*metadata.Relation
	seen := map[*metadata.Relation]bool{}
	add := func(r *metadata.Relation) {
		if r != nil && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	var walk func(*Group)
	walk = func(g *Group) {
		for _, t := range g.Terms {
			if t.Condition != nil {
				add(t.Condition.Path.Relation)
			} else {
				walk(t.Group)
			}
		}
	}
	walk(s.where)
	for _, o := range s.orders {
		add(o.Path.Relation)
	}
	return out
}

// Where renders the conditions as a squirrel expression. An empty
// specification renders empty SQL.
func (s *Specification) Where(a Aliases) (sq.Sqlizer, error) {
	return groupSqlizer(s.where, a)
}

// UpdateWhere renders the conditions for an UPDATE, where columns are not
// qualified and relation properties are not allowed.
func (s *Specification) UpdateWhere() (sq.Sqlizer, error) {
	if rels := s.Relations(); len(rels) > 0 {
		return nil, fmt.Errorf("failed to render update condition on %s: %w", rels[0].Property, ErrRelationUpdate)
	}
	return groupSqlizer(s.where, Aliases{})
}

func groupSqlizer(g *Group, a Aliases) (sq.Sqlizer, error) {
	parts := make([]any, 0, len(g.Terms)*2)
	for i, t := range g.Terms {
		if i > 0 {
			parts = append(parts, " "+t.Conj.String()+" ")
		}
		if t.Group != nil {
			inner, err := groupSqlizer(t.Group, a)
			if err != nil {
				return nil, err
			}
			parts = append(parts, "( ", inner, " )")
			continue
		}
		col, err := a.column(t.Condition.Path)
		if err != nil {
			return nil, err
		}
		z, err := t.Condition.Op.sqlizer(col, t.Condition.Values)
		if err != nil {
			return nil, err
		}
		parts = append(parts, z)
	}
	return sq.ConcatExpr(parts...), nil
}

// OrderBy renders the order list without the ORDER BY keyword.
func (s *Specification) OrderBy(a Aliases) (string, error) {
	items := make([]string, 0, len(s.orders))
	for _, o := range s.orders {
		col, err := a.column(o.Path)
		if err != nil {
			return "", err
		}
		items = append(items, col+" "+o.Direction)
	}
	return strings.Join(items, ", "), nil
}

// Set renders the update assignments as "col = ?, ..." resolving trigger
// sentinels through the column's trigger.
func (s *Specification) Set(values ValueFunc) (sq.Sqlizer, error) {
	parts := make([]any, 0, len(s.sets)*2)
	for i, a := range s.sets {
		if i > 0 {
			parts = append(parts, ", ")
		}
		expr, value, bound, err := s.assignment(a, values)
		if err != nil {
			return nil, err
		}
		if bound {
			parts = append(parts, sq.Expr(a.Column.Name+" = ?", value))
		} else {
			parts = append(parts, a.Column.Name+" = "+expr)
		}
	}
	return sq.ConcatExpr(parts...), nil
}

// assignment returns either raw SQL (bound false) or a value to bind.
func (s *Specification) assignment(a Assignment, values ValueFunc) (string, any, bool, error) {
	str, ok := a.Value.(string)
	if !ok {
		return "", a.Value, true, nil
	}
	m := triggerSentinel.FindStringSubmatch(str)
	if m == nil {
		return "", a.Value, true, nil
	}
	c, ok := s.entity.ScalarColumn(m[1])
	if !ok {
		return "", nil, false, &metadata.ConfigError{
			Kind:     metadata.PropertyNotFound,
			Entity:   s.entity.Name,
			Property: m[1],
			Message:  fmt.Sprintf("trigger sentinel %s names no property", str),
		}
	}
	trigger, ok := c.Trigger(metadata.TriggerUpdate)
	if !ok {
		if trigger, ok = c.Trigger(metadata.TriggerInsert); !ok {
			return "", nil, false, fmt.Errorf("property %s.%s has no trigger for %s", s.entity.Name, c.Property, str)
		}
	}
	if trigger.ValueType == metadata.DatabaseFunction {
		return trigger.Value, nil, false, nil
	}
	if values == nil {
		return "", nil, false, fmt.Errorf("no value function for code trigger %q", trigger.Value)
	}
	v, err := values(trigger.Value)
	if err != nil {
		return "", nil, false, fmt.Errorf("failed to compute trigger %q: %w", trigger.Value, err)
	}
	return "", v, true, nil
}

// Script is a specification rendered as template nodes whose parameters
// reference Values under a path prefix.
type Script struct {
	Where   []sqlfrag.Node
	Set     []sqlfrag.Node
	OrderBy string
	Values  map[string]any
}

// Script renders the specification as template nodes. Parameters are
// named prefix.p1, prefix.p2 and so on in render order.
func (s *Specification) Script(a Aliases, prefix string, values ValueFunc) (Script, error) {
	r := &scriptRenderer{aliases: a, prefix: prefix, values: map[string]any{}}
	where, err := r.group(s.where)
	if err != nil {
		return Script{}, err
	}
	out := Script{Where: where, Values: r.values}
	for _, as := range s.sets {
		expr, value, bound, err := s.assignment(as, values)
		if err != nil {
			return Script{}, err
		}
		if !bound {
			out.Set = append(out.Set, sqlfrag.Text(as.Column.Name+" = "+expr+","))
			continue
		}
		out.Set = append(out.Set, sqlfrag.Text(as.Column.Name+" = "), r.param(value, sqlfrag.NoWildcard), sqlfrag.Text(","))
	}
	if out.OrderBy, err = s.OrderBy(a); err != nil {
		return Script{}, err
	}
	return out, nil
}

type scriptRenderer struct {
	aliases Aliases
	prefix  string
	values  map[string]any
}

func (r *scriptRenderer) param(v any, w sqlfrag.Wildcard) sqlfrag.Param {
	name := "p" + strconv.Itoa(len(r.values)+1)
	r.values[name] = v
	return sqlfrag.Param{Path: r.prefix + "." + name, Wildcard: w}
}

func (r *scriptRenderer) group(g *Group) ([]sqlfrag.Node, error) {
	var out []sqlfrag.Node
	for _, t := range g.Terms {
		lead := sqlfrag.Text(" " + t.Conj.String() + " ")
		if t.Group != nil {
			inner, err := r.group(t.Group)
			if err != nil {
				return nil, err
			}
			out = append(out, lead, sqlfrag.Trim{Prefix: "(", Suffix: ")", PrefixOverrides: []string{"AND", "OR"}, Body: inner})
			continue
		}
		nodes, err := r.condition(t.Condition)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
		out = append(out, nodes...)
	}
	return out, nil
}

func (r *scriptRenderer) condition(c *Condition) ([]sqlfrag.Node, error) {
	col, err := r.aliases.column(c.Path)
	if err != nil {
		return nil, err
	}
	first := func() any {
		if len(c.Values) == 0 {
			return nil
		}
		return c.Values[0]
	}
	switch c.Op {
	case IsNull, IsNotNull:
		return []sqlfrag.Node{sqlfrag.Text(col + " " + c.Op.String())}, nil
	case Equal, NotEqual:
		if first() == nil {
			if c.Op == Equal {
				return []sqlfrag.Node{sqlfrag.Text(col + " IS NULL")}, nil
			}
			return []sqlfrag.Node{sqlfrag.Text(col + " IS NOT NULL")}, nil
		}
	case In, NotIn:
		if len(c.Values) == 0 {
			if c.Op == In {
				return []sqlfrag.Node{sqlfrag.Text("(1=0)")}, nil
			}
			return []sqlfrag.Node{sqlfrag.Text("(1=1)")}, nil
		}
		p := r.param(c.Values, sqlfrag.NoWildcard)
		return []sqlfrag.Node{
			sqlfrag.Text(col + " " + c.Op.String() + " "),
			sqlfrag.ForEach{Collection: p.Path, Item: "item", Open: "(", Separator: ",", Close: ")", Body: []sqlfrag.Node{sqlfrag.Param{Path: "item"}}},
		}, nil
	case Between:
		if len(c.Values) != 2 {
			return nil, fmt.Errorf("BETWEEN on %s needs 2 values, got %d", col, len(c.Values))
		}
		return []sqlfrag.Node{
			sqlfrag.Text(col + " BETWEEN "), r.param(c.Values[0], sqlfrag.NoWildcard),
			sqlfrag.Text(" AND "), r.param(c.Values[1], sqlfrag.NoWildcard),
		}, nil
	}
	return []sqlfrag.Node{sqlfrag.Text(col + " " + c.Op.String() + " "), r.param(first(), c.Op.wildcard())}, nil
}
