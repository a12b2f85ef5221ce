package sqlfrag

import (
	"reflect"
	"strings"
)

// Params resolves argument paths such as "user.deptNo" or "item".
type Params interface {
	Lookup(path string) (any, bool)
}

// Map is a Params backed by named top-level arguments. Dotted paths walk
// into maps, structs and nested Params values.
type Map map[string]any

// Lookup implements Params.
func (m Map) Lookup(path string) (any, bool) {
	head, rest, _ := strings.Cut(path, ".")
	v, ok := m[head]
	if !ok {
		return nil, false
	}
	if rest == "" {
		return v, true
	}
	return Property(v, rest)
}

type scope struct {
	parent Params
	vars   Map
}

func (s scope) Lookup(path string) (any, bool) {
	head, _, _ := strings.Cut(path, ".")
	if _, ok := s.vars[head]; ok {
		return s.vars.Lookup(path)
	}
	return s.parent.Lookup(path)
}

// Property walks a dotted property path into v. Struct fields match by
// exact name, then by exported camel name ("deptNo" finds DeptNo), then by
// a db or json tag.
func Property(v any, path string) (any, bool) {
	for _, name := range strings.Split(path, ".") {
		if p, ok := v.(Params); ok {
			next, found := p.Lookup(name)
			if !found {
				return nil, false
			}
			v = next
			continue
		}
		next, found := field(reflect.ValueOf(v), name)
		if !found {
			return nil, false
		}
		v = next
	}
	return v, true
}

func field(rv reflect.Value, name string) (any, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		t := rv.Type()
		if f, ok := t.FieldByName(name); ok && f.IsExported() {
			return rv.FieldByIndex(f.Index).Interface(), true
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if strings.EqualFold(f.Name, name) || tagName(f, "db") == name || tagName(f, "json") == name {
				return rv.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

func tagName(f reflect.StructField, key string) string {
	tag, _, _ := strings.Cut(f.Tag.Get(key), ",")
	return tag
}

// IsNil reports whether v is nil or a nil pointer, map, slice or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func isEmpty(v any) bool {
	if IsNil(v) {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}
