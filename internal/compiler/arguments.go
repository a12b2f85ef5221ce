package compiler

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"sqlmapper/internal/criteria"
	"sqlmapper/internal/mapper"
	"sqlmapper/internal/naming"
	"sqlmapper/internal/parttree"
	"sqlmapper/internal/sqlfrag"
)

// arguments exposes call arguments to a template under their declared
// names, as param1..N and arg0..N-1, and as _parameter when the method has
// a single value argument. Paths not found by name fall back to the
// properties of that single argument, so an entity parameter is addressed
// as #{name} rather than #{entity.name}.
type arguments struct {
	named  sqlfrag.Map
	single any
}

func (a arguments) Lookup(path string) (any, bool) {
	if v, ok := a.named.Lookup(path); ok {
		return v, true
	}
	if sqlfrag.IsNil(a.single) {
		return nil, false
	}
	return sqlfrag.Property(a.single, path)
}

func (s *Statement) arguments(args []any) (arguments, error) {
	m := s.Method
	if len(args) != len(m.Params) {
		return arguments{}, fmt.Errorf("%s takes %d arguments, got %d: %w", s.ID, len(m.Params), len(args), ErrArgumentCount)
	}
	env := arguments{named: sqlfrag.Map{}}
	for i, p := range m.Params {
		v, err := s.convert(p, args[i])
		if err != nil {
			return arguments{}, err
		}
		env.named[p.Name] = v
		env.named["param"+strconv.Itoa(i+1)] = v
		env.named["arg"+strconv.Itoa(i)] = v
		env.named[m.ParamName(i)] = v
		if p.Kind != mapper.ParamPage && m.OneParameter() {
			env.single = v
		}
	}
	return env, nil
}

func (s *Statement) convert(p mapper.ParameterDefinition, v any) (any, error) {
	switch p.Kind {
	case mapper.ParamSort:
		return s.sortArgument(v)
	case mapper.ParamSpecification, mapper.ParamUpdateSpecification:
		return s.specArgument(p, v)
	case mapper.ParamList:
		if sqlfrag.IsNil(v) {
			return nil, fmt.Errorf("%s: argument %s: %w", s.ID, p.Name, ErrEmptyCollection)
		}
		rv := reflect.ValueOf(v)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array || rv.Kind() == reflect.Map) && rv.Len() == 0 {
			return nil, fmt.Errorf("%s: argument %s: %w", s.ID, p.Name, ErrEmptyCollection)
		}
	}
	return v, nil
}

func (s *Statement) sortArgument(v any) (any, error) {
	var sort criteria.Sort
	switch v := v.(type) {
	case nil:
		return nil, nil
	case criteria.Sort:
		sort = v
	case *criteria.Sort:
		if v == nil {
			return nil, nil
		}
		sort = *v
	default:
		return nil, fmt.Errorf("%s: sort argument has type %T", s.ID, v)
	}
	orders := make([]sqlfrag.Map, 0, len(sort.Orders))
	for _, o := range sort.Orders {
		col, err := s.sortColumn(o.Property)
		if err != nil {
			return nil, err
		}
		direction := strings.ToUpper(o.Direction)
		switch direction {
		case "":
			direction = "ASC"
		case "ASC", "DESC":
		default:
			return nil, fmt.Errorf("%s: invalid sort direction %q", s.ID, o.Direction)
		}
		orders = append(orders, sqlfrag.Map{"property": col, "direction": direction})
	}
	return sqlfrag.Map{"orders": orders}, nil
}

// sortColumn translates a sort property to a qualified column. Properties
// may be camel paths ("rolesRoleName"), dotted paths ("roles.roleName") or
// raw column names of the entity.
func (s *Statement) sortColumn(property string) (string, error) {
	source := property
	if strings.Contains(property, ".") {
		segments := strings.Split(property, ".")
		for i := range segments {
			segments[i] = naming.UpperFirst(segments[i])
		}
		source = strings.Join(segments, "")
	}
	if path, err := parttree.ResolvePath(s.Entity, naming.UpperFirst(source), s.ID); err == nil {
		if path.Relation == nil {
			return s.qualify(path.ColumnName()), nil
		}
		if alias, ok := s.relationAlias(path.Relation); ok {
			return alias + "." + path.ColumnName(), nil
		}
		return "", fmt.Errorf("%s: sort on %s: relation %s is not joined: %w",
			s.ID, property, path.Relation.Property, ErrUnknownSortProperty)
	}
	if slices.Contains(s.Entity.ColumnNames(), property) {
		return s.qualify(property), nil
	}
	return "", fmt.Errorf("%s: %q on %s: %w", s.ID, property, s.Entity.Name, ErrUnknownSortProperty)
}

func (s *Statement) specArgument(p mapper.ParameterDefinition, v any) (any, error) {
	spec, ok := v.(*criteria.Specification)
	if !ok && v != nil {
		return nil, fmt.Errorf("%s: specification argument has type %T", s.ID, v)
	}
	if spec == nil {
		if p.Kind == mapper.ParamUpdateSpecification {
			return nil, fmt.Errorf("%s: update specification is required", s.ID)
		}
		return sqlfrag.Map{"where": "", "orderBy": ""}, nil
	}
	if spec.Entity() != s.Entity {
		return nil, fmt.Errorf("%s: specification built for %s, statement queries %s",
			s.ID, spec.Entity().Name, s.Entity.Name)
	}

	if p.Kind == mapper.ParamUpdateSpecification {
		if len(spec.Assignments()) == 0 {
			return nil, fmt.Errorf("%s: update specification sets no columns", s.ID)
		}
		where, err := spec.UpdateWhere()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.ID, err)
		}
		set, err := spec.Set(s.values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.ID, err)
		}
		return sqlfrag.Map{"where": where, "set": set}, nil
	}

	where, err := spec.Where(s.aliases())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.ID, err)
	}
	orderBy, err := spec.OrderBy(s.aliases())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.ID, err)
	}
	return sqlfrag.Map{"where": where, "orderBy": orderBy}, nil
}
