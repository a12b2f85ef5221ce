package metadata

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"sqlmapper/internal/naming"
)

// Registry holds every registered entity. Entities are registered first and
// their relations resolved in a second pass, because a relation may point at
// an entity registered later. After Resolve the registry is read-only.
type Registry struct {
	namer       *naming.Namer
	logger      *slog.Logger
	entities    map[string]*Entity
	descriptors map[string]EntityDescriptor
	order       []string
	resolved    bool
}

// NewRegistry creates an empty registry.
func NewRegistry(namer *naming.Namer, logger *slog.Logger) *Registry {
	if namer == nil {
		namer = naming.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		namer:       namer,
		logger:      logger,
		entities:    make(map[string]*Entity),
		descriptors: make(map[string]EntityDescriptor),
	}
}

// Register builds the entity for a descriptor. Registering the same
// descriptor again returns the cached entity.
func (r *Registry) Register(d Described) (*Entity, error) {
	desc := d.Describe()
	if desc.Name == "" {
		return nil, &ConfigError{Kind: InvalidRelation, Message: "entity descriptor has no name"}
	}
	if existing, ok := r.entities[desc.Name]; ok {
		if reflect.DeepEqual(r.descriptors[desc.Name], desc) {
			return existing, nil
		}
		return nil, &ConfigError{
			Kind:    DuplicateEntity,
			Entity:  desc.Name,
			Message: "entity registered twice with different descriptors",
		}
	}
	if r.resolved {
		return nil, fmt.Errorf("failed to register %s: registry is already resolved", desc.Name)
	}

	entity, err := r.build(desc)
	if err != nil {
		return nil, err
	}
	r.entities[desc.Name] = entity
	r.descriptors[desc.Name] = desc
	r.order = append(r.order, desc.Name)
	return entity, nil
}

// Entity looks up a registered entity by name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns the registered entities in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// EntityByTable finds the entity mapped to a table.
func (r *Registry) EntityByTable(table string) (*Entity, bool) {
	for _, name := range r.order {
		if e := r.entities[name]; e.Table == table {
			return e, true
		}
	}
	return nil, false
}

// Resolved reports whether Resolve has completed.
func (r *Registry) Resolved() bool {
	return r.resolved
}

func (r *Registry) build(desc EntityDescriptor) (*Entity, error) {
	table := desc.Table
	if table == "" {
		table = r.namer.TableName(desc.Name)
	}
	entity := &Entity{
		Name:       desc.Name,
		Table:      table,
		Alias:      r.namer.TableAlias(desc.Name),
		IDClass:    slices.Clone(desc.IDClass),
		byProperty: make(map[string]*Column, len(desc.Fields)),
	}

	for _, f := range desc.Fields {
		if f.Transient {
			continue
		}
		if f.Name == "" {
			return nil, &ConfigError{Kind: InvalidRelation, Entity: desc.Name, Message: "field has no name"}
		}
		if _, dup := entity.byProperty[f.Name]; dup {
			return nil, &ConfigError{Kind: DuplicateProperty, Entity: desc.Name, Property: f.Name}
		}

		col := &Column{
			Property:    f.Name,
			Type:        f.Type,
			Nullable:    f.Nullable,
			Generation:  f.Generation,
			Generator:   f.Generator,
			Sequence:    f.Sequence,
			TypeHandler: f.TypeHandler,
			JDBCType:    f.JDBCType,
			Triggers:    slices.Clone(f.Triggers),
		}

		if f.Relation != nil {
			rel, err := buildRelation(entity, f)
			if err != nil {
				return nil, err
			}
			col.Relation = rel
			entity.relations = append(entity.relations, rel)
		} else {
			col.Name = f.Column
			if col.Name == "" {
				col.Name = r.namer.ColumnName(f.Name)
			}
			col.PrimaryKey = f.ID
			if f.ID {
				entity.primary = append(entity.primary, col)
			}
		}

		entity.columns = append(entity.columns, col)
		entity.byProperty[f.Name] = col
	}

	if err := checkCompositeKey(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func buildRelation(owner *Entity, f FieldDescriptor) (*Relation, error) {
	d := f.Relation
	if f.ID {
		return nil, &ConfigError{Kind: InvalidRelation, Entity: owner.Name, Property: f.Name,
			Message: "a relation cannot be part of the primary key"}
	}
	if d.Target == "" {
		return nil, &ConfigError{Kind: InvalidRelation, Entity: owner.Name, Property: f.Name,
			Message: "relation has no target entity"}
	}
	if d.Kind < OneToOne || d.Kind > ManyToMany {
		return nil, &ConfigError{Kind: InvalidRelation, Entity: owner.Name, Property: f.Name,
			Message: fmt.Sprintf("unsupported relation kind %d", d.Kind)}
	}
	if d.JoinTable != nil && d.Kind != ManyToMany {
		return nil, &ConfigError{Kind: InvalidRelation, Entity: owner.Name, Property: f.Name,
			Message: "join table is only valid on many-to-many relations"}
	}
	if d.MappedBy != "" && (d.JoinColumn != nil || d.JoinTable != nil) {
		return nil, &ConfigError{Kind: InvalidRelation, Entity: owner.Name, Property: f.Name,
			Message: "the inverse side of a relation cannot declare join columns"}
	}

	collectionType := d.CollectionType
	if d.Kind.ToMany() && collectionType == "" {
		collectionType = "list"
	}
	if !d.Kind.ToMany() {
		collectionType = ""
	}

	rel := &Relation{
		Kind:           d.Kind,
		Owner:          owner,
		Property:       f.Name,
		TargetName:     d.Target,
		CollectionType: collectionType,
		MappedBy:       d.MappedBy,
		Includes:       slices.Clone(d.Includes),
		Excludes:       slices.Clone(d.Excludes),
		JoinNothing:    d.JoinNothing,
	}
	if d.JoinColumn != nil {
		jc := *d.JoinColumn
		rel.JoinColumn = &jc
	}
	if d.JoinTable != nil {
		jt := *d.JoinTable
		rel.JoinTable = &jt
	}
	if d.SubQuery != nil {
		rel.SubQuery = &SubQuery{
			Predicates: slices.Clone(d.SubQuery.Predicates),
			Orders:     slices.Clone(d.SubQuery.Orders),
		}
	}
	return rel, nil
}

func checkCompositeKey(e *Entity) error {
	if len(e.IDClass) == 0 {
		if e.CompositeKey() {
			return &ConfigError{Kind: CompositeKeyMismatch, Entity: e.Name,
				Message: fmt.Sprintf("%d primary key columns declared without an id class", len(e.primary))}
		}
		return nil
	}

	if len(e.IDClass) != len(e.primary) {
		return &ConfigError{Kind: CompositeKeyMismatch, Entity: e.Name,
			Message: fmt.Sprintf("id class declares %d properties but the entity has %d primary key columns",
				len(e.IDClass), len(e.primary))}
	}
	for _, prop := range e.IDClass {
		c, ok := e.byProperty[prop]
		if !ok || !c.PrimaryKey {
			return &ConfigError{Kind: CompositeKeyMismatch, Entity: e.Name, Property: prop,
				Message: "id class property is not a primary key column of the entity"}
		}
	}
	return nil
}
