package metadata

import (
	"strings"

	"sqlmapper/internal/naming"
)

// Entity is the metadata of one persistent type.
type Entity struct {
	Name    string
	Table   string
	Alias   string
	IDClass []string

	columns    []*Column
	byProperty map[string]*Column
	primary    []*Column
	relations  []*Relation
}

// Columns returns every column, relation columns included, in declaration order.
func (e *Entity) Columns() []*Column {
	return e.columns
}

// Column looks up a column by property name.
func (e *Entity) Column(property string) (*Column, bool) {
	c, ok := e.byProperty[property]
	return c, ok
}

// ScalarColumn looks up a non-relation column by property name.
func (e *Entity) ScalarColumn(property string) (*Column, bool) {
	c, ok := e.byProperty[property]
	if !ok || c.IsRelation() {
		return nil, false
	}
	return c, true
}

// ScalarColumns returns the non-relation columns in declaration order.
func (e *Entity) ScalarColumns() []*Column {
	out := make([]*Column, 0, len(e.columns))
	for _, c := range e.columns {
		if !c.IsRelation() {
			out = append(out, c)
		}
	}
	return out
}

// PrimaryColumns returns the primary-key columns in declaration order.
func (e *Entity) PrimaryColumns() []*Column {
	return e.primary
}

// PrimaryColumn returns the primary-key column when the key is a single column.
func (e *Entity) PrimaryColumn() *Column {
	if len(e.primary) != 1 {
		return nil
	}
	return e.primary[0]
}

// HasPrimaryKey reports whether any primary-key column is declared.
func (e *Entity) HasPrimaryKey() bool {
	return len(e.primary) > 0
}

// CompositeKey reports whether the primary key spans more than one column.
func (e *Entity) CompositeKey() bool {
	return len(e.primary) > 1
}

// Relations returns the entity's relations in declaration order.
func (e *Entity) Relations() []*Relation {
	return e.relations
}

// Relation looks up a relation by its owning property.
func (e *Entity) Relation(property string) (*Relation, bool) {
	c, ok := e.byProperty[property]
	if !ok || c.Relation == nil {
		return nil, false
	}
	return c.Relation, true
}

// ColumnNames returns the distinct scalar column names in declaration order.
func (e *Entity) ColumnNames() []string {
	seen := make(map[string]struct{}, len(e.columns))
	names := make([]string, 0, len(e.columns))
	for _, c := range e.columns {
		if c.IsRelation() {
			continue
		}
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	return names
}

// ColumnList renders the select list for the entity, qualified by alias when set.
// Example: ColumnList("t_0") -> "t_0.id, t_0.name"
func (e *Entity) ColumnList(alias string) string {
	names := e.ColumnNames()
	if alias == "" {
		return strings.Join(names, ", ")
	}
	qualified := make([]string, len(names))
	for i, name := range names {
		qualified[i] = alias + "." + name
	}
	return strings.Join(qualified, ", ")
}

// PrimaryCondition joins the upper-cased primary-key properties with "And",
// the method-name form of a lookup by key. Example: "UserIdAndRoleId".
func (e *Entity) PrimaryCondition() string {
	parts := make([]string, len(e.primary))
	for i, c := range e.primary {
		parts[i] = naming.UpperFirst(c.Property)
	}
	return strings.Join(parts, "And")
}

// MainAlias is the alias of the entity's own table in compiled statements.
func (e *Entity) MainAlias() string {
	return e.Alias + "_0"
}

func (e *Entity) columnName(property string) (string, bool) {
	c, ok := e.ScalarColumn(property)
	if !ok {
		return "", false
	}
	return c.Name, true
}
