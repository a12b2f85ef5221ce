package mapper

import (
	"log/slog"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
)

// Expand registers a join finder on the target namespace for every relation
// of every mapped entity, and attaches the resulting join to each owner
// query method the relation applies to. Targets without a declared mapper
// get an implicit one holding only their finders.
func (r *Registry) Expand() error {
	if r.expanded {
		return nil
	}
	if !r.meta.Resolved() {
		return &metadata.ConfigError{Kind: metadata.InvalidRelation, Message: "relations must be resolved before expansion"}
	}

	for _, owner := range r.meta.Entities() {
		ownerMapper, ok := r.byEntity[owner.Name]
		if !ok || ownerMapper.Implicit {
			if len(owner.Relations()) > 0 {
				r.logger.Debug("entity has no mapper; skipping relation expansion",
					slog.String("entity", owner.Name))
			}
			continue
		}

		scope := "entity:" + owner.Name
		for _, name := range owner.ColumnNames() {
			r.namer.Resolver().ReserveColumn(scope, name, owner.Name)
		}

		for _, rel := range owner.Relations() {
			finder := r.addFinder(scope, rel)
			join := &JoinStatement{Relation: rel, Finder: finder}
			r.joins[rel] = join

			for _, m := range ownerMapper.Methods {
				if m.CompositeResultMap && rel.Applies(m.Name) {
					m.AttachJoin(join)
				}
			}
		}
	}

	r.expanded = true
	return nil
}

func (r *Registry) addFinder(scope string, rel *metadata.Relation) *MethodDefinition {
	target := rel.Target
	targetMapper, ok := r.byEntity[target.Name]
	if !ok {
		targetMapper = &MapperDefinition{Namespace: target.Name + "Mapper", Entity: target, Implicit: true}
		r.add(targetMapper)
	}

	prefix := "findWith"
	if rel.HasLinkTable() {
		prefix = "findJoinWith"
	}
	source := rel.Owner.Name + "." + rel.Property
	name := r.namer.Resolver().RegisterMethod(targetMapper.Namespace, prefix+naming.UpperFirst(rel.ReferencedProperty), source)

	columns := make([]ColumnDefinition, 0, len(target.Columns()))
	seen := make(map[string]struct{})
	for _, c := range target.ScalarColumns() {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		columns = append(columns, ColumnDefinition{
			Property:       c.Property,
			Column:         r.namer.Resolver().RegisterColumn(scope, c.Name, source),
			OriginalColumn: c.Name,
			Type:           c.Type,
			JDBCType:       c.JDBCType,
			ID:             c.PrimaryKey,
		})
	}

	finder := newMethodDefinition(targetMapper.Namespace, name, KindJoinFinder, target, []ParameterDefinition{
		{Name: rel.ReferencedProperty, Type: rel.PropertyType, Kind: ParamValue},
	})
	finder.BaseResultMap = true
	finder.Relation = rel
	finder.Columns = columns
	finder.ReturnType = "[]" + target.Name
	targetMapper.Methods = append(targetMapper.Methods, finder)
	return finder
}
