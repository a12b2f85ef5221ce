package mapping

import (
	"fmt"
	"strings"

	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
)

// Descriptors converts the declared entities into metadata descriptors.
func (f *File) Descriptors() ([]metadata.EntityDescriptor, error) {
	out := make([]metadata.EntityDescriptor, 0, len(f.Entities))
	for _, e := range f.Entities {
		desc := metadata.EntityDescriptor{Name: e.Name, Table: e.Table, IDClass: e.IDClass}
		for _, fd := range e.Fields {
			field, err := fd.descriptor()
			if err != nil {
				return nil, &metadata.ConfigError{Kind: metadata.InvalidRelation, Entity: e.Name,
					Property: fd.Name, Message: err.Error()}
			}
			desc.Fields = append(desc.Fields, field)
		}
		out = append(out, desc)
	}
	return out, nil
}

func (fd Field) descriptor() (metadata.FieldDescriptor, error) {
	gen, err := metadata.ParseGenerationType(fd.Generation)
	if err != nil {
		return metadata.FieldDescriptor{}, err
	}
	out := metadata.FieldDescriptor{
		Name:        fd.Name,
		Column:      fd.Column,
		Type:        fd.Type,
		Nullable:    fd.Nullable,
		ID:          fd.ID,
		Generation:  gen,
		Generator:   fd.Generator,
		Sequence:    fd.Sequence,
		TypeHandler: fd.TypeHandler,
		JDBCType:    fd.JDBCType,
		Transient:   fd.Transient,
	}
	for _, t := range fd.Triggers {
		trig, err := t.trigger()
		if err != nil {
			return metadata.FieldDescriptor{}, err
		}
		out.Triggers = append(out.Triggers, trig)
	}
	if fd.Relation != nil {
		rel, err := fd.Relation.descriptor()
		if err != nil {
			return metadata.FieldDescriptor{}, err
		}
		out.Relation = rel
	}
	return out, nil
}

func (t Trigger) trigger() (metadata.Trigger, error) {
	out := metadata.Trigger{Value: t.Value, Force: t.Force}
	switch strings.ToUpper(t.On) {
	case "INSERT":
		out.Event = metadata.TriggerInsert
	case "UPDATE":
		out.Event = metadata.TriggerUpdate
	default:
		return metadata.Trigger{}, fmt.Errorf("unknown trigger event %q", t.On)
	}
	switch strings.ToUpper(t.ValueType) {
	case "", "DATABASE_FUNCTION":
		out.ValueType = metadata.DatabaseFunction
	case "CODE":
		out.ValueType = metadata.CodeValue
	default:
		return metadata.Trigger{}, fmt.Errorf("unknown trigger value type %q", t.ValueType)
	}
	if out.Value == "" {
		return metadata.Trigger{}, fmt.Errorf("%s trigger has no value", out.Event)
	}
	return out, nil
}

func (r *Relation) descriptor() (*metadata.RelationDescriptor, error) {
	kind, err := metadata.ParseRelationKind(r.Kind)
	if err != nil {
		return nil, err
	}
	if r.Target == "" {
		return nil, fmt.Errorf("%s relation has no target", kind)
	}
	out := &metadata.RelationDescriptor{
		Kind:           kind,
		Target:         r.Target,
		CollectionType: r.CollectionType,
		MappedBy:       r.MappedBy,
		Includes:       r.Includes,
		Excludes:       r.Excludes,
		JoinNothing:    r.JoinNothing,
	}
	if r.JoinColumn != nil {
		out.JoinColumn = &metadata.JoinColumn{
			Property:           r.JoinColumn.Property,
			ReferencedProperty: r.JoinColumn.ReferencedProperty,
		}
	}
	if r.JoinTable != nil {
		jt := metadata.JoinTable(*r.JoinTable)
		out.JoinTable = &jt
	}
	if r.SubQuery != nil {
		sub := &metadata.SubQuery{}
		for _, p := range r.SubQuery.Predicates {
			sub.Predicates = append(sub.Predicates, metadata.SubPredicate(p))
		}
		for _, o := range r.SubQuery.Orders {
			sub.Orders = append(sub.Orders, metadata.SubOrder(o))
		}
		out.SubQuery = sub
	}
	return out, nil
}

// Declarations converts the declared mappers. A mapper without a namespace
// is named prefix + entity + "Mapper".
func (f *File) Declarations(prefix string) ([]mapper.Declaration, error) {
	out := make([]mapper.Declaration, 0, len(f.Mappers))
	for _, m := range f.Mappers {
		decl := mapper.Declaration{Namespace: m.Namespace, Entity: m.Entity, NoBuiltins: m.NoBuiltins}
		if decl.Namespace == "" {
			decl.Namespace = prefix + m.Entity + "Mapper"
		}
		for _, md := range m.Methods {
			method, err := md.declaration()
			if err != nil {
				return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity,
					Statement: decl.Namespace + "." + md.Name, Message: err.Error()}
			}
			decl.Methods = append(decl.Methods, method)
		}
		out = append(out, decl)
	}
	return out, nil
}

func (md Method) declaration() (mapper.MethodDeclaration, error) {
	ifTest, err := parseIfTest(md.IfTest)
	if err != nil {
		return mapper.MethodDeclaration{}, err
	}
	out := mapper.MethodDeclaration{
		Name:       md.Name,
		ReturnType: md.ReturnType,
		IfTest:     ifTest,
		SQL:        strings.TrimSpace(md.SQL),
	}
	for _, p := range md.Params {
		kind, err := parseParameterKind(p.Kind)
		if err != nil {
			return mapper.MethodDeclaration{}, err
		}
		pt, err := parseIfTest(p.IfTest)
		if err != nil {
			return mapper.MethodDeclaration{}, err
		}
		out.Params = append(out.Params, mapper.ParameterDeclaration{Name: p.Name, Type: p.Type, Kind: kind, IfTest: pt})
	}
	return out, nil
}

func parseParameterKind(s string) (mapper.ParameterKind, error) {
	switch strings.ToLower(s) {
	case "", "value":
		return mapper.ParamValue, nil
	case "entity":
		return mapper.ParamEntity, nil
	case "list":
		return mapper.ParamList, nil
	case "page":
		return mapper.ParamPage, nil
	case "sort":
		return mapper.ParamSort, nil
	case "specification":
		return mapper.ParamSpecification, nil
	case "update_specification":
		return mapper.ParamUpdateSpecification, nil
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

func parseIfTest(s string) (mapper.IfTest, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return mapper.IfTestNone, nil
	case "not_null":
		return mapper.IfTestNotNull, nil
	case "not_empty":
		return mapper.IfTestNotEmpty, nil
	}
	return 0, fmt.Errorf("unknown if_test %q", s)
}
