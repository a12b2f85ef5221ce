package metadata

import (
	"fmt"
	"log/slog"
	"strconv"

	"sqlmapper/internal/naming"
)

// Resolve computes join columns, aliases and link-table columns for every
// relation of every registered entity. The first inconsistency aborts
// resolution; ambiguous but usable configurations are logged as warnings.
func (r *Registry) Resolve() error {
	if r.resolved {
		return nil
	}

	for _, entity := range r.Entities() {
		for _, rel := range entity.relations {
			target, ok := r.entities[rel.TargetName]
			if !ok {
				return &ConfigError{Kind: UnknownEntity, Entity: entity.Name, Property: rel.Property,
					Message: fmt.Sprintf("relation target %q is not registered", rel.TargetName)}
			}
			rel.Target = target
		}
	}

	for _, entity := range r.Entities() {
		index := 1
		for _, rel := range entity.relations {
			rel.Alias = rel.Target.Alias + "_" + strconv.Itoa(index)
			rel.TableName = rel.Target.Table
			index++

			var err error
			if rel.Kind == ManyToMany {
				err = r.resolveLinked(rel)
			} else {
				err = r.resolveDirect(rel)
			}
			if err != nil {
				return err
			}
			rel.resolved = true
		}
	}

	r.resolved = true
	return nil
}

// resolveDirect resolves one-to-one, many-to-one and one-to-many relations.
// The join is owner.ColumnName = target.ReferencedColumnName.
func (r *Registry) resolveDirect(rel *Relation) error {
	owner, target := rel.Owner, rel.Target

	if rel.Kind == OneToMany && rel.MappedBy == "" {
		r.logger.Warn("one-to-many relation without mapped_by; joining on the target primary key",
			slog.String("entity", owner.Name),
			slog.String("property", rel.Property),
		)
	}

	var prop, refProp string
	if rel.MappedBy == "" {
		var err error
		if rel.JoinColumn != nil {
			prop, refProp = rel.JoinColumn.Property, rel.JoinColumn.ReferencedProperty
		}
		if refProp == "" {
			if refProp, err = primaryProperty(target, rel); err != nil {
				return err
			}
		}
		if prop == "" {
			if prop, err = primaryProperty(target, rel); err != nil {
				return err
			}
		}
	} else {
		opposite, err := r.opposite(rel)
		if err != nil {
			return err
		}
		if opposite.JoinColumn != nil {
			prop, refProp = opposite.JoinColumn.ReferencedProperty, opposite.JoinColumn.Property
		} else {
			r.logger.Warn("mapped_by side declares no join column; joining on the owner primary key",
				slog.String("entity", owner.Name),
				slog.String("property", rel.Property),
				slog.String("mapped_by", rel.MappedBy),
			)
		}
		if prop == "" {
			if prop, err = primaryProperty(owner, rel); err != nil {
				return err
			}
		}
		if refProp == "" {
			refProp = prop
		}
	}

	rel.JoinProperty = prop
	rel.ReferencedProperty = refProp
	rel.ColumnName = firstColumn(prop, owner, target)
	rel.ReferencedColumnName = firstColumn(refProp, target, owner)
	rel.PropertyType = propertyType(refProp, target, owner)
	return nil
}

// resolveLinked resolves many-to-many relations through their link table.
// The owning side declares the join table; the mapped_by side mirrors it with
// the owning and inverse roles swapped.
func (r *Registry) resolveLinked(rel *Relation) error {
	owner, target := rel.Owner, rel.Target

	var declared JoinTable
	if rel.MappedBy == "" {
		if rel.JoinTable != nil {
			declared = *rel.JoinTable
		} else {
			r.logger.Warn("many-to-many relation without join table; using a default link table",
				slog.String("entity", owner.Name),
				slog.String("property", rel.Property),
			)
		}
		if declared.Name == "" {
			declared.Name = owner.Table + "_" + target.Table
		}
	} else {
		opposite, err := r.opposite(rel)
		if err != nil {
			return err
		}
		var mirror JoinTable
		if opposite.JoinTable != nil {
			mirror = *opposite.JoinTable
		} else {
			r.logger.Warn("mapped_by side declares no join table; using a default link table",
				slog.String("entity", owner.Name),
				slog.String("property", rel.Property),
				slog.String("mapped_by", rel.MappedBy),
			)
		}
		declared = JoinTable{
			Name:                      mirror.Name,
			Property:                  mirror.InverseProperty,
			ReferencedProperty:        mirror.InverseReferencedProperty,
			InverseProperty:           mirror.Property,
			InverseReferencedProperty: mirror.ReferencedProperty,
		}
		if declared.Name == "" {
			declared.Name = target.Table + "_" + owner.Table
		}
	}

	ownerDefault, inverseDefault := declared.Property == "", declared.InverseProperty == ""
	var err error
	if declared.Property == "" {
		if declared.Property, err = primaryProperty(owner, rel); err != nil {
			return err
		}
	}
	if declared.ReferencedProperty == "" {
		if declared.ReferencedProperty, err = primaryProperty(owner, rel); err != nil {
			return err
		}
	}
	if declared.InverseProperty == "" {
		if declared.InverseProperty, err = primaryProperty(target, rel); err != nil {
			return err
		}
	}
	if declared.InverseReferencedProperty == "" {
		if declared.InverseReferencedProperty, err = primaryProperty(target, rel); err != nil {
			return err
		}
	}

	refColumn, ok := owner.columnName(declared.ReferencedProperty)
	if !ok {
		return &ConfigError{Kind: PropertyNotFound, Entity: owner.Name, Property: declared.ReferencedProperty,
			Message: fmt.Sprintf("join table %s references a property the owner does not map", declared.Name)}
	}
	invRefColumn, ok := target.columnName(declared.InverseReferencedProperty)
	if !ok {
		return &ConfigError{Kind: PropertyNotFound, Entity: target.Name, Property: declared.InverseReferencedProperty,
			Message: fmt.Sprintf("join table %s references a property the target does not map", declared.Name)}
	}

	link, _ := r.EntityByTable(declared.Name)

	rel.LinkTable = declared.Name
	rel.JoinProperty = declared.Property
	rel.ReferencedProperty = declared.ReferencedProperty
	rel.InverseProperty = declared.InverseProperty
	rel.InverseReferencedProperty = declared.InverseReferencedProperty
	rel.ColumnName = linkColumn(declared.Property, link, owner)
	rel.ReferencedColumnName = refColumn
	rel.InverseColumnName = linkColumn(declared.InverseProperty, link, target)
	if link == nil {
		ownerStem, inverseStem := r.linkStems(rel)
		if ownerDefault {
			rel.ColumnName = ownerStem + "_" + refColumn
		}
		if inverseDefault {
			rel.InverseColumnName = inverseStem + "_" + invRefColumn
		}
	}
	rel.InverseReferencedColumnName = invRefColumn
	rel.PropertyType = propertyType(declared.ReferencedProperty, owner)
	return nil
}

// linkStems names the link-table columns of an unmapped link table. The
// owning side's column is named after the owner entity and the inverse
// column after the singular collection property, so User.roles links
// through user_id and role_id. A mapped_by side uses the same names swapped.
func (r *Registry) linkStems(rel *Relation) (owner, inverse string) {
	if rel.MappedBy == "" {
		return naming.CamelToSnake(rel.Owner.Name), naming.CamelToSnake(r.namer.Singularize(rel.Property))
	}
	return naming.CamelToSnake(r.namer.Singularize(rel.MappedBy)), naming.CamelToSnake(rel.Target.Name)
}

// opposite finds the relation a mapped_by side mirrors.
func (r *Registry) opposite(rel *Relation) (*Relation, error) {
	opposite, ok := rel.Target.Relation(rel.MappedBy)
	if !ok {
		return nil, &ConfigError{Kind: UnresolvedMappedBy, Entity: rel.Owner.Name, Property: rel.Property,
			Message: fmt.Sprintf("%s has no relation %q", rel.Target.Name, rel.MappedBy)}
	}
	if opposite.TargetName != rel.Owner.Name {
		return nil, &ConfigError{Kind: UnresolvedMappedBy, Entity: rel.Owner.Name, Property: rel.Property,
			Message: fmt.Sprintf("%s.%s targets %s, not %s", rel.Target.Name, rel.MappedBy, opposite.TargetName, rel.Owner.Name)}
	}
	if (opposite.Kind == ManyToMany) != (rel.Kind == ManyToMany) {
		return nil, &ConfigError{Kind: UnresolvedMappedBy, Entity: rel.Owner.Name, Property: rel.Property,
			Message: fmt.Sprintf("%s.%s is %s and cannot mirror %s", rel.Target.Name, rel.MappedBy, opposite.Kind, rel.Kind)}
	}
	if opposite.MappedBy != "" {
		return nil, &ConfigError{Kind: UnresolvedMappedBy, Entity: rel.Owner.Name, Property: rel.Property,
			Message: fmt.Sprintf("%s.%s is itself mapped_by %q", rel.Target.Name, rel.MappedBy, opposite.MappedBy)}
	}
	return opposite, nil
}

func primaryProperty(e *Entity, rel *Relation) (string, error) {
	pk := e.PrimaryColumn()
	if pk == nil {
		msg := "relation endpoint has no primary key"
		if e.CompositeKey() {
			msg = "relation endpoint has a composite primary key; declare the join properties explicitly"
		}
		return "", &ConfigError{Kind: MissingPrimaryKey, Entity: e.Name, Property: rel.Owner.Name + "." + rel.Property, Message: msg}
	}
	return pk.Property, nil
}

// firstColumn maps a property to a column on the first entity that declares
// it, falling back to the snake-case form of the property.
func firstColumn(property string, entities ...*Entity) string {
	for _, e := range entities {
		if name, ok := e.columnName(property); ok {
			return name
		}
	}
	return naming.CamelToSnake(property)
}

func linkColumn(property string, link, fallback *Entity) string {
	if link != nil {
		if name, ok := link.columnName(property); ok {
			return name
		}
	}
	return firstColumn(property, fallback)
}

func propertyType(property string, entities ...*Entity) string {
	for _, e := range entities {
		if c, ok := e.ScalarColumn(property); ok {
			return c.Type
		}
	}
	return ""
}
