package keygen

import (
	"fmt"
	"reflect"
	"strings"

	"sqlmapper/internal/metadata"
)

// Populate fills the primary key (on insert) and code trigger values of
// target, a map[string]any keyed by property or a pointer to a struct.
// Keys are generated only when the key property is empty; trigger values
// replace existing values only when the trigger is forced.
func (r *Registry) Populate(event metadata.TriggerEvent, e *metadata.Entity, target any) error {
	if event == metadata.TriggerInsert && !e.CompositeKey() {
		if pk := e.PrimaryColumn(); pk != nil && isEmpty(get(target, pk.Property)) {
			if g, ok := r.ForColumn(pk); ok {
				key, err := g.Generate(target)
				if err != nil {
					return fmt.Errorf("failed to generate key for %s.%s: %w", e.Name, pk.Property, err)
				}
				if err := set(target, pk.Property, key); err != nil {
					return err
				}
			} else if pk.Generation == metadata.GenerationUUID || pk.Generation == metadata.GenerationCombUUID || pk.Generator != "" {
				r.logger.Warn("no key generator registered",
					"entity", e.Name,
					"property", pk.Property,
					"generator", pk.Generator)
			}
		}
	}
	for _, c := range e.ScalarColumns() {
		t, ok := c.Trigger(event)
		if !ok || t.ValueType != metadata.CodeValue {
			continue
		}
		if !t.Force && !isEmpty(get(target, c.Property)) {
			continue
		}
		v, err := r.Value(t.Value)
		if err != nil {
			return fmt.Errorf("failed to compute trigger for %s.%s: %w", e.Name, c.Property, err)
		}
		if err := set(target, c.Property, v); err != nil {
			return err
		}
	}
	return nil
}

// Assign sets property of target, a map[string]any or a pointer to a
// struct. Executors use it to store keys returned by the database.
func Assign(target any, property string, v any) error {
	if v == nil {
		return nil
	}
	return set(target, property, v)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

func get(target any, property string) any {
	if m, ok := target.(map[string]any); ok {
		return m[property]
	}
	f, ok := structField(target, property)
	if !ok {
		return nil
	}
	return f.Interface()
}

func set(target any, property string, v any) error {
	if m, ok := target.(map[string]any); ok {
		m[property] = v
		return nil
	}
	f, ok := structField(target, property)
	if !ok || !f.CanSet() {
		return fmt.Errorf("cannot set property %s on %T", property, target)
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(f.Type()):
		f.Set(rv)
	case f.Kind() == reflect.Pointer && rv.Type().AssignableTo(f.Type().Elem()):
		p := reflect.New(f.Type().Elem())
		p.Elem().Set(rv)
		f.Set(p)
	case rv.Type().ConvertibleTo(f.Type()) && rv.Kind() != reflect.Struct:
		f.Set(rv.Convert(f.Type()))
	default:
		return fmt.Errorf("cannot assign %T to property %s of type %s", v, property, f.Type())
	}
	return nil
}

func structField(target any, property string) (reflect.Value, bool) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	rv = rv.Elem()
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if f.Name == property || strings.EqualFold(f.Name, property) || tag == property {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}
