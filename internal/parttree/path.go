package parttree

import (
	"fmt"
	"strings"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
)

// PropertyPath is a property reference resolved against entity metadata.
// Relation is set when the property lives on a related entity reached
// through one of the root entity's relations.
type PropertyPath struct {
	Source   string
	Relation *metadata.Relation
	Entity   *metadata.Entity
	Column   *metadata.Column
}

// String renders the dotted property path, e.g. "roles.roleName".
func (p PropertyPath) String() string {
	if p.Relation != nil {
		return p.Relation.Property + "." + p.Column.Property
	}
	return p.Column.Property
}

// ColumnName returns the database column the path ends at.
func (p PropertyPath) ColumnName() string {
	return p.Column.Name
}

// ResolvePath resolves a capitalized camel-case property reference such as
// "RolesRoleName" against entity. A scalar property matching the whole
// text wins; otherwise the shortest leading words naming a relation select
// the related entity and the remainder must name one of its scalar
// properties.
func ResolvePath(entity *metadata.Entity, source, statement string) (PropertyPath, error) {
	prop := naming.LowerFirst(source)
	if c, ok := entity.ScalarColumn(prop); ok {
		return PropertyPath{Source: source, Entity: entity, Column: c}, nil
	}
	words := naming.SplitCamel(prop)
	for i := 1; i < len(words); i++ {
		head := naming.LowerFirst(strings.Join(words[:i], ""))
		rel, ok := entity.Relation(head)
		if !ok || rel.Target == nil {
			continue
		}
		rest := naming.LowerFirst(strings.Join(words[i:], ""))
		if c, ok := rel.Target.ScalarColumn(rest); ok {
			return PropertyPath{Source: source, Relation: rel, Entity: rel.Target, Column: c}, nil
		}
	}
	msg := fmt.Sprintf("no property %q on %s", prop, entity.Name)
	if c, ok := entity.Column(prop); ok && c.IsRelation() {
		msg = fmt.Sprintf("%q is a relation; reference one of its properties instead", prop)
	}
	return PropertyPath{}, &metadata.ConfigError{
		Kind:      metadata.PropertyNotFound,
		Entity:    entity.Name,
		Property:  prop,
		Statement: statement,
		Message:   msg,
	}
}
